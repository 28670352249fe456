package live

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// PreferredPatterns pick a device first when several inputs are present.
var PreferredPatterns = []string{"Launchkey", "Novation"}

// ExcludedPatterns match virtual or system ports that are never connected.
var ExcludedPatterns = []string{"Midi Through", "Through Port", "Dummy"}

const RescanInterval = time.Second

// Watcher keeps a connection to the preferred MIDI input across hot-plug and
// unplug. onNote is called for every note start and end while a device is
// connected; onDisconnect runs in its own goroutine when the device is lost.
type Watcher struct {
	mu           sync.Mutex
	drv          *rtmididrv.Driver
	inPort       drivers.In
	stopFn       func()
	connected    bool
	selectedName string
	lastRescanAt time.Time
	logger       *slog.Logger

	onNote       func(on bool, pitch int)
	onDisconnect func()
}

// NewWatcher initialises the rtmidi driver. Call Close when done.
func NewWatcher(onNote func(on bool, pitch int), onDisconnect func(), logger *slog.Logger) (*Watcher, error) {
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("live: rtmididrv: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		drv:          drv,
		logger:       logger,
		onNote:       onNote,
		onDisconnect: onDisconnect,
	}, nil
}

// Close shuts down the active connection and the driver.
func (w *Watcher) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closeConn()
	w.drv.Close()
}

// Connected returns the name of the connected device, if any.
func (w *Watcher) Connected() (string, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.selectedName, w.connected
}

// Tick rescans the inputs at most once per RescanInterval, connects to a
// preferred device and notices when the connected one disappears.
func (w *Watcher) Tick() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	if !w.lastRescanAt.IsZero() && now.Sub(w.lastRescanAt) < RescanInterval {
		return
	}
	w.lastRescanAt = now

	inputs := w.listInputs()

	if w.connected {
		for _, n := range inputs {
			if n == w.selectedName {
				return
			}
		}
		w.logger.Warn("live: device disappeared", "device", w.selectedName)
		w.lostLocked()
		return
	}

	cand, ok := pickPreferred(inputs, PreferredPatterns)
	if !ok {
		return
	}
	if err := w.openByName(cand); err != nil {
		w.logger.Error("live: connect failed", "device", cand, "err", err)
	}
}

func (w *Watcher) lostLocked() {
	w.closeConn()
	w.lastRescanAt = time.Time{}
	if w.onDisconnect != nil {
		go w.onDisconnect()
	}
}

func (w *Watcher) listInputs() []string {
	ins, err := w.drv.Ins()
	if err != nil {
		w.logger.Error("live: list inputs failed", "err", err)
		return nil
	}
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	names = filterInputs(names, ExcludedPatterns)
	w.logger.Debug("live: inputs found", "count", len(names), "devices", strings.Join(names, ", "))
	return names
}

func (w *Watcher) closeConn() {
	if w.stopFn != nil {
		w.stopFn()
		w.stopFn = nil
	}
	if w.inPort != nil {
		_ = w.inPort.Close()
		w.inPort = nil
	}
	w.connected = false
	w.selectedName = ""
}

func (w *Watcher) openByName(name string) error {
	ins, err := w.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		var ch, key, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			w.logger.Debug("live: note on", "ch", ch, "key", key, "vel", vel)
			w.onNote(true, int(key))
		case msg.GetNoteEnd(&ch, &key):
			w.logger.Debug("live: note off", "ch", ch, "key", key)
			w.onNote(false, int(key))
		}
	}, midi.HandleError(func(listenErr error) {
		w.logger.Warn("live: listener error", "device", name, "err", listenErr)
		// closeConn stops the listener, so it cannot run on the listener goroutine
		go func() {
			w.mu.Lock()
			defer w.mu.Unlock()
			if w.connected && w.selectedName == name {
				w.lostLocked()
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	w.inPort = found
	w.stopFn = stop
	w.connected = true
	w.selectedName = name
	w.logger.Info("live: connected", "device", name)
	return nil
}

func filterInputs(names, excluded []string) []string {
	out := names[:0:0]
	for _, name := range names {
		skip := false
		for _, pat := range excluded {
			if containsCI(name, pat) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, name)
		}
	}
	return out
}

// pickPreferred returns the first input matching a preferred pattern, or the
// only input when there is exactly one.
func pickPreferred(inputs, preferred []string) (string, bool) {
	for _, pat := range preferred {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
