package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/sigslot/internal/config"
	"github.com/mattjoyce/sigslot/internal/events"
	"github.com/mattjoyce/sigslot/internal/rtos"
	"github.com/mattjoyce/sigslot/internal/signal"
)

// Beat is the payload every probe emits.
type Beat struct {
	Seq     uint64
	TraceID uuid.UUID
	SentAt  time.Time
}

// Stats reports one probe's delivery history.
type Stats struct {
	Name          string    `json:"name"`
	Signal        string    `json:"signal"`
	Mode          string    `json:"mode"`
	Thread        string    `json:"thread,omitempty"`
	Every         string    `json:"every"`
	Sent          uint64    `json:"sent"`
	Delivered     uint64    `json:"delivered"`
	Failures      uint64    `json:"failures"`
	LastError     string    `json:"last_error,omitempty"`
	LastLatencyMS float64   `json:"last_latency_ms"`
	LastBeat      time.Time `json:"last_beat,omitempty"`
}

type probe struct {
	cfg   config.ProbeConfig
	every time.Duration
	sig   *signal.Signal[Beat]
	recv  *receiver

	mu    sync.Mutex
	seq   uint64
	stats Stats
}

// receiver is the slot side of a probe. It embeds the engine Object so it
// can be connected with ConnectMethod.
type receiver struct {
	*signal.Object
	p *probe
}

func (r *receiver) OnBeat(b Beat) {
	r.p.delivered(b, time.Since(b.SentAt))
}

func (p *probe) delivered(b Beat, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Delivered++
	p.stats.LastLatencyMS = float64(latency.Microseconds()) / 1000
	p.stats.LastBeat = b.SentAt
}

func (p *probe) next() Beat {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seq++
	p.stats.Sent++
	return Beat{Seq: p.seq, TraceID: uuid.New(), SentAt: time.Now()}
}

func (p *probe) failed(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stats.Failures++
	p.stats.LastError = err.Error()
}

func (p *probe) snapshot() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// Scheduler emits a Beat on every configured probe's signal at its
// interval. Each probe owns one signal and one receiver.
type Scheduler struct {
	sc     *signal.Context
	probes []*probe
	events Publisher
	logger *slog.Logger
	stopCh chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup

	stopOnce sync.Once
}

// New creates the signal and receiver of every probe and connects them.
// threads maps thread names from the config onto running rtos threads.
func New(sc *signal.Context, cfgs []config.ProbeConfig, threads map[string]*rtos.Thread, pub Publisher, logger *slog.Logger) (*Scheduler, error) {
	if pub == nil {
		pub = events.NewHub(128)
	}
	s := &Scheduler{
		sc:     sc,
		events: pub,
		logger: logger.With("component", "probe"),
		stopCh: make(chan struct{}),
	}
	for _, cfg := range cfgs {
		p, err := s.build(cfg, threads)
		if err != nil {
			s.teardown()
			return nil, fmt.Errorf("probe %q: %w", cfg.Name, err)
		}
		s.probes = append(s.probes, p)
	}
	sort.Slice(s.probes, func(i, j int) bool { return s.probes[i].cfg.Name < s.probes[j].cfg.Name })
	return s, nil
}

func (s *Scheduler) build(cfg config.ProbeConfig, threads map[string]*rtos.Thread) (*probe, error) {
	every, err := parseScheduleEvery(cfg.Every)
	if err != nil {
		return nil, err
	}
	mode, err := signal.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}

	var opts []signal.ObjectOption
	if cfg.Queue > 0 {
		opts = append(opts, signal.WithQueue(cfg.Queue))
	}
	if cfg.Thread != "" {
		t, ok := threads[cfg.Thread]
		if !ok {
			return nil, fmt.Errorf("unknown thread %q", cfg.Thread)
		}
		opts = append(opts, signal.WithThread(t))
	}

	p := &probe{
		cfg:   cfg,
		every: every,
		stats: Stats{Name: cfg.Name, Mode: mode.String(), Thread: cfg.Thread, Every: cfg.Every},
	}

	obj, err := s.sc.NewObject(cfg.Name, opts...)
	if err != nil {
		return nil, err
	}
	p.recv = &receiver{Object: obj, p: p}

	p.sig, err = signal.New[Beat](s.sc, "probe."+cfg.Name)
	if err != nil {
		_, _ = obj.Destroy()
		return nil, err
	}
	p.stats.Signal = p.sig.Name()

	if err := signal.ConnectMethod(p.sig, p.recv, (*receiver).OnBeat, mode); err != nil {
		_, _ = p.sig.Close()
		_, _ = obj.Destroy()
		return nil, err
	}
	return p, nil
}

// Start launches one loop per probe, plus a pump for probes whose receiver
// has its own queue.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Starting probes", "count", len(s.probes))
	// Stop cancels ctx so blocked emits return.
	ctx, s.cancel = context.WithCancel(ctx)
	for _, p := range s.probes {
		if p.recv.HasQueue() && p.cfg.Thread == "" {
			s.wg.Add(1)
			go s.pump(ctx, p)
		}
		s.wg.Add(1)
		go s.tickLoop(ctx, p)
	}
	return nil
}

// Stop ends every loop and releases the probes' signals and receivers.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.logger.Info("Stopping probes")
		close(s.stopCh)
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		s.teardown()
		s.logger.Info("Probes stopped")
	})
}

func (s *Scheduler) teardown() {
	for _, p := range s.probes {
		if _, err := p.sig.Close(); err != nil && !errors.Is(err, signal.ErrObjectDestroyed) {
			s.logger.Warn("close probe signal failed", "probe", p.cfg.Name, "error", err)
		}
		if _, err := p.recv.Destroy(); err != nil && !errors.Is(err, signal.ErrObjectDestroyed) {
			s.logger.Warn("destroy probe receiver failed", "probe", p.cfg.Name, "error", err)
		}
	}
}

// Stats returns per-probe counters, sorted by name.
func (s *Scheduler) Stats() []Stats {
	out := make([]Stats, 0, len(s.probes))
	for _, p := range s.probes {
		out = append(out, p.snapshot())
	}
	return out
}

func (s *Scheduler) tickLoop(ctx context.Context, p *probe) {
	defer s.wg.Done()

	timer := time.NewTimer(calculateJitteredInterval(p.every, p.cfg.Jitter))
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			s.fire(ctx, p)
			timer.Reset(calculateJitteredInterval(p.every, p.cfg.Jitter))
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) fire(ctx context.Context, p *probe) {
	beat := p.next()
	ectx := ctx
	if p.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ectx, cancel = context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
	}

	if err := p.sig.Emit(ectx, beat); err != nil {
		p.failed(err)
		s.logger.Debug("probe emit failed", "probe", p.cfg.Name, "seq", beat.Seq, "error", err)
		s.events.Publish(events.TypeProbeError, map[string]any{
			"probe":    p.cfg.Name,
			"seq":      beat.Seq,
			"trace_id": beat.TraceID.String(),
			"error":    err.Error(),
		})
	}
}

// pump drains a receiver-owned queue for probes not bound to a thread.
func (s *Scheduler) pump(ctx context.Context, p *probe) {
	defer s.wg.Done()

	for {
		if err := p.recv.Process(ctx); err != nil {
			return
		}
	}
}

// calculateJitteredInterval adds a random duration in [0, jitter) to base.
func calculateJitteredInterval(baseInterval time.Duration, jitter time.Duration) time.Duration {
	if jitter <= 0 {
		return baseInterval
	}
	return baseInterval + time.Duration(rand.Int63n(jitter.Nanoseconds()))
}

func parseScheduleEvery(every string) (time.Duration, error) {
	return config.ParseInterval(every)
}
