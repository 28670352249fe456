package controller

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"

	"go.bug.st/serial"
	"go.uber.org/multierr"
	"golang.org/x/exp/constraints"
)

const (
	PortsPerBoard = 16
	pwmSteps      = 4096
)

// Bus is the byte stream to the servo boards.
type Bus io.WriteCloser

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int) (Bus, error) {
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrBusUnavailable, name, err)
	}
	return p, nil
}

// Hardware paces like RealTime and also sets servo pulses on PCA9685-style
// boards reached through a serial bridge. Boards are addressed by their
// index in the configured address list.
type Hardware struct {
	*RealTime
	mu     sync.Mutex
	bus    Bus
	boards []int
	freq   int
	logger *slog.Logger
}

// NewHardware programs every board with the update frequency. Any write
// failure means the bus is unusable.
func NewHardware(bus Bus, boards []int, freq int, logger *slog.Logger) (*Hardware, error) {
	if err := checkFrequency(freq); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	if len(boards) == 0 {
		boards = DefaultBoards
	}
	if err := CheckBoards(boards); err != nil {
		return nil, err
	}
	h := &Hardware{RealTime: NewRealTime(), bus: bus, boards: boards, freq: freq, logger: logger}
	for _, addr := range boards {
		if err := h.send(frequencyFrame(addr, freq)); err != nil {
			return nil, fmt.Errorf("%w: board 0x%02x: %v", ErrBusUnavailable, addr, err)
		}
		logger.Info("controller: board ready", "board", fmt.Sprintf("0x%02x", addr), "hz", freq)
	}
	return h, nil
}

// SetServoPulse sets the pulse width, in milliseconds, on one board port.
// Unconfigured or unknown actuators are skipped with a warning. Only bus
// write failures are returned.
func (h *Hardware) SetServoPulse(board, port int, pulse float64) error {
	if board < 0 || port < 0 {
		h.logger.Warn("controller: no actuator configured", "board", board, "port", port, "value", pulse)
		return nil
	}
	if board >= len(h.boards) || port >= PortsPerBoard {
		h.logger.Warn("controller: actuator out of range", "board", board, "port", port, "value", pulse,
			"boards", len(h.boards), "ports", PortsPerBoard)
		return nil
	}
	ticks := pulseTicks(pulse, h.freq)
	if err := h.send(pulseFrame(h.boards[board], port, ticks)); err != nil {
		return fmt.Errorf("controller: set pulse board %d port %d: %w", board, port, err)
	}
	h.logger.Debug("controller: pulse set", "board", board, "port", port, "value", pulse, "ticks", ticks)
	return nil
}

// Close switches every board off and closes the bus.
func (h *Hardware) Close() error {
	var err error
	for _, addr := range h.boards {
		err = multierr.Append(err, h.send(allOffFrame(addr)))
	}
	h.mu.Lock()
	err = multierr.Append(err, h.bus.Close())
	h.mu.Unlock()
	h.logger.Info("controller: bus closed")
	return err
}

func (h *Hardware) send(f Frame) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.bus.Write(f.Encode())
	return err
}

// pulseTicks converts a pulse width in milliseconds to a PWM off-tick at the
// given update frequency.
func pulseTicks(pulse float64, hz int) uint16 {
	tickUS := 1e6 / float64(hz) / pwmSteps
	ticks := int(math.Round(pulse * 1000 / tickUS))
	return uint16(clamp(ticks, 0, pwmSteps-1))
}

func clamp[T constraints.Ordered](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
