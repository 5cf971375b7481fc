// Package monitor implements the capture loop that samples a smart plug
// once per interval and distributes each reading to the charts and the
// persistence layer.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mvell/powerlive/internal/metrics"
	"github.com/mvell/powerlive/internal/plug"
	"github.com/mvell/powerlive/internal/series"
	"github.com/mvell/powerlive/internal/store"
)

const (
	defaultInterval = 1 * time.Second
	defaultWindow   = 30 // seconds at the default interval
	powerOffTimeout = 5 * time.Second
)

// ErrStarted is returned when Run is called on a monitor that already ran.
var ErrStarted = errors.New("monitor already started")

// ── Collaborators ────────────────────────────────────────────────────

// Sample is one plug reading taken by the capture loop.
type Sample struct {
	Time  time.Time
	Watts float64
	Valid bool
}

// View identifies which chart a snapshot belongs to.
type View int

const (
	// ViewFull is the unbounded full-history chart.
	ViewFull View = iota
	// ViewWindow is the sliding-window chart.
	ViewWindow
)

// Renderer receives chart snapshots after every sample. Render must not
// block; the capture loop does not wait for drawing to finish.
type Renderer interface {
	Render(view View, pts []series.Point)
}

// NopRenderer discards every snapshot.
type NopRenderer struct{}

func (NopRenderer) Render(View, []series.Point) {}

// ── Monitor ──────────────────────────────────────────────────────────

// State is the monitor lifecycle phase.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

// Options configures a Monitor. The zero value gives a one-second
// interval, a 30-sample window, no persistence and no rendering.
type Options struct {
	Interval   time.Duration
	Window     int
	Store      store.Store // nil disables persistence
	Renderer   Renderer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
	ResetStore bool
	Verbose    bool
}

// Monitor owns the sampling loop for one plug. All per-tick work runs on
// the Run goroutine, so the series need no locking.
type Monitor struct {
	plug     plug.Plug
	store    store.Store
	renderer Renderer
	metrics  *metrics.Metrics
	logger   *slog.Logger

	interval time.Duration
	reset    bool
	verbose  bool

	full   *series.Series
	window *series.Window

	mu    sync.Mutex
	state State

	ticks <-chan time.Time // replaces the ticker in tests
}

// New builds an idle monitor for the given plug.
func New(p plug.Plug, opts Options) (*Monitor, error) {
	if p == nil {
		return nil, errors.New("monitor needs a plug")
	}
	if opts.Interval <= 0 {
		opts.Interval = defaultInterval
	}
	if opts.Window == 0 {
		opts.Window = defaultWindow
	}
	window, err := series.NewWindow(opts.Window)
	if err != nil {
		return nil, err
	}
	if opts.Renderer == nil {
		opts.Renderer = NopRenderer{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Monitor{
		plug:     p,
		store:    opts.Store,
		renderer: opts.Renderer,
		metrics:  opts.Metrics,
		logger:   opts.Logger,
		interval: opts.Interval,
		reset:    opts.ResetStore,
		verbose:  opts.Verbose,
		full:     series.NewSeries(),
		window:   window,
	}, nil
}

// State reports the lifecycle phase. Safe to call from other goroutines.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Monitor) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

// ── Capture loop ─────────────────────────────────────────────────────

// Run powers the plug on and samples it until ctx is canceled or the
// device fails permanently. It returns nil on a clean stop. A monitor
// runs at most once.
func (m *Monitor) Run(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return ErrStarted
	}
	m.state = StateRunning
	m.mu.Unlock()

	defer m.setState(StateStopped)

	if err := m.startUp(ctx); err != nil {
		return err
	}
	defer m.shutDown()

	m.metrics.SetUp(true)
	defer m.metrics.SetUp(false)

	ticks := m.ticks
	if ticks == nil {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	m.logger.Info("capture started", "plug", m.plug.Name(), "interval", m.interval)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("capture stopped")
			return nil
		case now, ok := <-ticks:
			if !ok {
				m.logger.Info("capture stopped")
				return nil
			}
			if err := m.tick(ctx, now); err != nil {
				return err
			}
		}
	}
}

// startUp powers the plug on and prepares the store. A plug that cannot
// be switched on is not worth sampling, so errors here abort the run.
func (m *Monitor) startUp(ctx context.Context) error {
	if err := m.plug.TurnOn(ctx); err != nil {
		return fmt.Errorf("power on %s: %w", m.plug.Name(), err)
	}
	if m.store == nil {
		return nil
	}
	if err := m.store.Init(ctx); err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	if m.reset {
		if err := m.store.Reset(ctx); err != nil {
			return fmt.Errorf("reset store: %w", err)
		}
		m.logger.Info("store reset")
	}
	// Zero row marks the capture start, so saved data never begins empty.
	if err := m.store.Append(ctx, time.Now().UTC(), 0, false); err != nil {
		return fmt.Errorf("bootstrap store: %w", err)
	}
	return nil
}

// shutDown switches the plug off best-effort and closes the store. It
// runs after ctx may already be canceled, hence the fresh context.
func (m *Monitor) shutDown() {
	offCtx, cancel := context.WithTimeout(context.Background(), powerOffTimeout)
	defer cancel()
	if err := m.plug.TurnOff(offCtx); err != nil {
		m.logger.Warn("power off failed", "plug", m.plug.Name(), "err", err)
	}
	if m.store != nil {
		if err := m.store.Close(); err != nil {
			m.logger.Warn("close store failed", "err", err)
		}
	}
}

// tick reads one sample and fans it out. A transient read failure skips
// the tick; a permanent device failure ends the loop.
func (m *Monitor) tick(ctx context.Context, now time.Time) error {
	watts, err := m.plug.ReadPower(ctx)
	if err != nil {
		if errors.Is(err, plug.ErrDeviceFailed) {
			m.logger.Error("plug failed permanently, shutting down", "err", err)
			return err
		}
		m.metrics.RecordReadFailure()
		m.logger.Warn("read failed, sample skipped", "err", err)
		return nil
	}

	sample := Sample{Time: now.UTC(), Watts: watts, Valid: true}

	m.full.Push(sample.Watts)
	m.window.Push(sample.Watts)
	m.metrics.RecordSample(sample.Watts)

	if m.store != nil {
		if err := m.store.Append(ctx, sample.Time, sample.Watts, sample.Valid); err != nil {
			m.metrics.RecordStoreFailure()
			m.logger.Warn("store append failed", "err", err)
		}
	}

	m.renderer.Render(ViewFull, m.full.Snapshot())
	m.renderer.Render(ViewWindow, m.window.Snapshot())

	if m.verbose {
		m.logger.Info("sample",
			"time", sample.Time.Format(time.RFC3339),
			"watts", sample.Watts,
			"valid", sample.Valid)
	}
	return nil
}
