package signal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/joeycumines/go-catrate"

	"github.com/mattjoyce/sigslot/internal/pool"
)

// Capacities fixes every pool size for the life of a Context.
type Capacities struct {
	Buckets     int
	Groups      int
	Nodes       int
	Completions int
	Signals     int
	Receivers   int
	Packages    pool.AllocatorConfig
}

// DefaultCapacities matches the reference board budget.
func DefaultCapacities() Capacities {
	return Capacities{
		Buckets:     64,
		Groups:      64,
		Nodes:       256,
		Completions: 32,
		Signals:     256,
		Receivers:   256,
		Packages:    pool.DefaultAllocatorConfig(),
	}
}

// Fault describes one failed delivery or an emit that gave up waiting.
type Fault struct {
	Signal     SignalID
	SignalName string
	Receiver   ReceiverID
	Strategy   Strategy
	Err        error
	At         time.Time
}

// FaultSink receives faults after the registry lock has been released.
// Implementations must not block.
type FaultSink interface {
	DispatchFault(f Fault)
}

// FaultSinkFunc adapts a function to FaultSink.
type FaultSinkFunc func(Fault)

func (f FaultSinkFunc) DispatchFault(ft Fault) { f(ft) }

// Stats is a snapshot of registry shape and pool usage.
type Stats struct {
	Registry RegistryStats `json:"registry"`
	Pools    []pool.Stats  `json:"pools"`
}

// Context owns the registry and every pool. All signals and receivers that
// interact must come from the same Context.
type Context struct {
	reg         *registry
	alloc       *pool.Allocator
	completions *completionPool
	signals     *pool.Arena[string]
	receivers   *pool.Arena[struct{}]

	logger      *slog.Logger
	sink        FaultSink
	limiter     *catrate.Limiter
	emitTimeout time.Duration
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used for dispatch diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Context) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithFaultSink forwards every dispatch fault to sink.
func WithFaultSink(sink FaultSink) Option {
	return func(c *Context) { c.sink = sink }
}

// WithEmitTimeout bounds blocking emits whose context carries no deadline.
// Zero waits indefinitely.
func WithEmitTimeout(d time.Duration) Option {
	return func(c *Context) { c.emitTimeout = d }
}

// WithFaultLogRate limits fault log lines to perMinute for each signal and
// error kind. Zero disables the limit.
func WithFaultLogRate(perMinute int) Option {
	return func(c *Context) {
		if perMinute <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = catrate.NewLimiter(map[time.Duration]int{time.Minute: perMinute})
	}
}

// NewContext builds the registry and pools.
func NewContext(caps Capacities, opts ...Option) (*Context, error) {
	if caps.Groups <= 0 || caps.Nodes <= 0 || caps.Completions <= 0 || caps.Signals <= 0 || caps.Receivers <= 0 {
		return nil, fmt.Errorf("capacities must be positive: %+v", caps)
	}
	reg, err := newRegistry(caps.Buckets, caps.Groups, caps.Nodes)
	if err != nil {
		return nil, err
	}
	alloc, err := pool.NewAllocator(caps.Packages)
	if err != nil {
		return nil, fmt.Errorf("package allocator: %w", err)
	}

	c := &Context{
		reg:   reg,
		alloc: alloc,
		// A completion never waits for more receivers than there are nodes.
		completions: newCompletionPool(caps.Completions, caps.Nodes),
		signals:     pool.NewArena[string]("signals", caps.Signals),
		receivers:   pool.NewArena[struct{}]("receivers", caps.Receivers),
		logger:      slog.Default(),
		emitTimeout: 5 * time.Second,
		limiter:     catrate.NewLimiter(map[time.Duration]int{time.Minute: 60}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "signal")
	reg.signalLive = func(id SignalID) bool { return c.signals.Live(pool.Handle(id)) }
	reg.receiverLive = func(id ReceiverID) bool { return c.receivers.Live(pool.Handle(id)) }
	return c, nil
}

// EmitTimeout returns the default blocking-emit bound.
func (c *Context) EmitTimeout() time.Duration { return c.emitTimeout }

// NewReceiverID issues an identity for a custom Receiver implementation.
func (c *Context) NewReceiverID() (ReceiverID, error) {
	h, _, err := c.receivers.Alloc()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	return ReceiverID(h), nil
}

// DestroyReceiver removes every connection that targets id and retires the
// identity. The receiver must already report IsLive false.
func (c *Context) DestroyReceiver(id ReceiverID) (int, error) {
	var freeErr error
	n, err := c.reg.removeReceiver(id, func() {
		freeErr = c.receivers.Free(pool.Handle(id))
	})
	if err != nil {
		return 0, fmt.Errorf("destroy receiver %s: %w", id, err)
	}
	if freeErr != nil {
		return n, fmt.Errorf("destroy receiver %s: %w", id, ErrObjectDestroyed)
	}
	c.logger.Debug("receiver destroyed", "receiver", id.String(), "connections", n)
	return n, nil
}

func (c *Context) newSignalID(name string) (SignalID, error) {
	h, v, err := c.signals.Alloc()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrOutOfMemory, err)
	}
	*v = name
	return SignalID(h), nil
}

func (c *Context) dropSignal(id SignalID) (int, error) {
	var freeErr error
	n, err := c.reg.removeGroup(id, func() {
		freeErr = c.signals.Free(pool.Handle(id))
	})
	if err != nil {
		return 0, err
	}
	if freeErr != nil {
		return n, ErrObjectDestroyed
	}
	return n, nil
}

// Stats returns registry shape and pool usage.
func (c *Context) Stats() Stats {
	pools := []pool.Stats{
		c.reg.groups.Stats(),
		c.reg.nodes.Stats(),
		c.completions.stats(),
		c.signals.Stats(),
		c.receivers.Stats(),
	}
	pools = append(pools, c.alloc.Stats()...)
	return Stats{Registry: c.reg.stats(), Pools: pools}
}

type faultCategory struct {
	signal SignalID
	err    string
}

func (c *Context) report(faults []Fault) {
	for _, f := range faults {
		if c.sink != nil {
			c.sink.DispatchFault(f)
		}
		if _, ok := c.limiter.Allow(faultCategory{signal: f.Signal, err: FaultKind(f.Err)}); !ok {
			continue
		}
		c.logger.Warn("dispatch fault",
			"signal", f.SignalName,
			"signal_id", f.Signal.String(),
			"receiver", f.Receiver.String(),
			"strategy", f.Strategy.String(),
			"error", f.Err,
		)
	}
}

var faultKinds = []error{
	ErrEmitTimeout,
	ErrQueueFull,
	ErrOutOfMemory,
	ErrObjectDestroyed,
	ErrTypeMismatch,
}

// FaultKind names the sentinel a fault error wraps, or its full text when
// it wraps none. Used to group faults for rate limiting and storage.
func FaultKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range faultKinds {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return err.Error()
}
