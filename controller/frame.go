package controller

const (
	SOF0 = 0xAA
	SOF1 = 0x55

	CmdSetFrequency = 0x20
	CmdSetPulse     = 0x21
	CmdAllOff       = 0x22
)

// Frame is one command for the serial bridge that drives the servo boards.
type Frame struct {
	Cmd     byte
	Payload []byte
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][payload...][CKS]
//
// LEN counts the CMD byte and the payload; CKS is the XOR of LEN, CMD and
// every payload byte.
func (f Frame) Encode() []byte {
	length := byte(len(f.Payload) + 1)
	cks := length ^ f.Cmd
	for _, b := range f.Payload {
		cks ^= b
	}

	out := make([]byte, 0, len(f.Payload)+5)
	out = append(out, SOF0, SOF1, length, f.Cmd)
	out = append(out, f.Payload...)
	out = append(out, cks)
	return out
}

func frequencyFrame(addr, hz int) Frame {
	return Frame{Cmd: CmdSetFrequency, Payload: []byte{byte(addr), byte(hz)}}
}

// pulseFrame sets the off-tick of one PWM channel; the on-tick is always 0.
func pulseFrame(addr, port int, ticks uint16) Frame {
	return Frame{Cmd: CmdSetPulse, Payload: []byte{byte(addr), byte(port), byte(ticks), byte(ticks >> 8)}}
}

func allOffFrame(addr int) Frame {
	return Frame{Cmd: CmdAllOff, Payload: []byte{byte(addr)}}
}
