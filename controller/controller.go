package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"
)

var (
	ErrBusUnavailable = errors.New("controller: hardware bus unavailable")
	ErrFrequency      = errors.New("controller: update frequency out of range")
	ErrUnknownKind    = errors.New("controller: unknown controller kind")
	ErrBoardAddress   = errors.New("controller: board address out of range")
)

const (
	DefaultFrequencyHz = 100
	MaxFrequencyHz     = 200
)

// DefaultBoards are the servo board addresses on the bus, in board-number
// order.
var DefaultBoards = []int{0x40, 0x41, 0x42}

// Timer paces a playback session. Offsets passed to WaitUntil are measured
// from the last Start call. Waits return ctx.Err() when ctx ends early.
type Timer interface {
	Start()
	WaitUntil(ctx context.Context, offset time.Duration) error
	WaitMilliseconds(ctx context.Context, ms int64) error
}

// Actuator drives a servo on one board port. A negative board or port means
// no actuator is configured for the caller's purpose.
type Actuator interface {
	SetServoPulse(board, port int, pulse float64) error
}

// Kind selects a controller variant.
type Kind int

const (
	NoWait Kind = iota
	RealTimeKind
	HardwareKind
)

var kindNames = map[Kind]string{
	NoWait:       "nowait",
	RealTimeKind: "realtime",
	HardwareKind: "hardware",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a configuration name to a Kind.
func ParseKind(name string) (Kind, error) {
	for k, s := range kindNames {
		if strings.EqualFold(s, name) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownKind, name, strings.Join(KindNames(), ", "))
}

func KindNames() []string {
	names := make([]string, 0, len(kindNames))
	for _, s := range kindNames {
		names = append(names, s)
	}
	sort.Strings(names)
	return names
}

// Config carries the hardware settings; only HardwareKind reads them.
type Config struct {
	Kind        Kind
	SerialPort  string
	Baud        int
	FrequencyHz int
	Boards      []int
}

// Controller is the variant chosen at construction. Every variant is a
// Timer; only the hardware variant also has an Actuator.
type Controller struct {
	Timer
	kind     Kind
	actuator Actuator
	close    func() error
}

// Option configures New.
type Option func(*options)

type options struct {
	logger *slog.Logger
	bus    Bus
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithBus makes the hardware variant use bus instead of opening the serial
// port named in Config.
func WithBus(b Bus) Option {
	return func(o *options) { o.bus = b }
}

// New builds the controller selected by cfg.Kind. The hardware variant fails
// when its bus cannot be opened or the frequency is out of range.
func New(cfg Config, opts ...Option) (*Controller, error) {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger.With("component", "controller", "kind", cfg.Kind.String())

	switch cfg.Kind {
	case NoWait:
		logger.Info("controller: starting no-wait controller")
		return &Controller{Timer: NoWaitTimer{}, kind: NoWait, close: noop}, nil
	case RealTimeKind:
		logger.Info("controller: starting real-time controller")
		return &Controller{Timer: NewRealTime(), kind: RealTimeKind, close: noop}, nil
	case HardwareKind:
		logger.Info("controller: starting hardware controller", "device", cfg.SerialPort, "baud", cfg.Baud)
		if err := checkFrequency(cfg.FrequencyHz); err != nil {
			return nil, err
		}
		bus := o.bus
		if bus == nil {
			var err error
			if bus, err = OpenSerial(cfg.SerialPort, cfg.Baud); err != nil {
				logger.Error("controller: failed to open bus", "err", err)
				return nil, err
			}
		}
		hw, err := NewHardware(bus, cfg.Boards, cfg.FrequencyHz, logger)
		if err != nil {
			bus.Close()
			return nil, err
		}
		return &Controller{Timer: hw, kind: HardwareKind, actuator: hw, close: hw.Close}, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrUnknownKind, cfg.Kind)
}

func noop() error { return nil }

func (c *Controller) Kind() Kind { return c.kind }

// Actuator returns the actuation capability, if this variant has one.
func (c *Controller) Actuator() (Actuator, bool) {
	return c.actuator, c.actuator != nil
}

// Close releases the variant's resources. It is safe to call more than once.
func (c *Controller) Close() error {
	f := c.close
	c.close = noop
	return f()
}

// MaxBoardAddress is the highest 7-bit bus address a servo board can take.
const MaxBoardAddress = 0x7f

// CheckBoards rejects addresses that do not fit on the bus. Frames carry the
// address in one byte, so a wider value would silently select another board.
func CheckBoards(boards []int) error {
	for i, addr := range boards {
		if addr < 0 || addr > MaxBoardAddress {
			return fmt.Errorf("%w: board %d is 0x%02x (max 0x%02x)", ErrBoardAddress, i, addr, MaxBoardAddress)
		}
	}
	return nil
}

func checkFrequency(hz int) error {
	if hz <= 0 || hz > MaxFrequencyHz {
		return fmt.Errorf("%w: %d Hz (max %d)", ErrFrequency, hz, MaxFrequencyHz)
	}
	return nil
}
