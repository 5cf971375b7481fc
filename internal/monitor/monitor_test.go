package monitor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mvell/powerlive/internal/plug"
	"github.com/mvell/powerlive/internal/series"
	"github.com/mvell/powerlive/internal/store"
)

// ── Fakes ────────────────────────────────────────────────────────────

type readResult struct {
	watts float64
	err   error
}

type fakePlug struct {
	mu       sync.Mutex
	script   []readResult
	reads    int
	onCalls  int
	offCalls int
	onErr    error
}

func (p *fakePlug) Name() string { return "fake" }

func (p *fakePlug) ReadPower(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.reads
	p.reads++
	if i < len(p.script) {
		return p.script[i].watts, p.script[i].err
	}
	return 0, nil
}

func (p *fakePlug) TurnOn(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onCalls++
	return p.onErr
}

func (p *fakePlug) TurnOff(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.offCalls++
	return nil
}

type storeRow struct {
	time  time.Time
	watts float64
	valid bool
}

type fakeStore struct {
	mu         sync.Mutex
	rows       []storeRow
	ops        []string
	appends    int
	failAppend int // 1-based append call to fail, 0 for never
}

var _ store.Store = (*fakeStore)(nil)

func (s *fakeStore) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "init")
	return nil
}

func (s *fakeStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "reset")
	s.rows = nil
	return nil
}

func (s *fakeStore) Append(ctx context.Context, t time.Time, watts float64, valid bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends++
	if s.failAppend != 0 && s.appends == s.failAppend {
		return store.ErrUnavailable
	}
	s.ops = append(s.ops, "append")
	s.rows = append(s.rows, storeRow{time: t, watts: watts, valid: valid})
	return nil
}

func (s *fakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, "close")
	return nil
}

type renderCall struct {
	view View
	pts  []series.Point
}

type fakeRenderer struct {
	mu    sync.Mutex
	calls []renderCall
}

func (r *fakeRenderer) Render(v View, pts []series.Point) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{view: v, pts: pts})
}

// ── Helpers ──────────────────────────────────────────────────────────

func startMonitor(t *testing.T, m *Monitor) (chan time.Time, context.CancelFunc, <-chan error) {
	t.Helper()
	ticks := make(chan time.Time)
	m.ticks = ticks

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	return ticks, cancel, done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("monitor did not stop")
		return nil
	}
}

// ── Tests ────────────────────────────────────────────────────────────

func TestRunPowersOnAndStopsCleanly(t *testing.T) {
	p := &fakePlug{script: []readResult{{watts: 10}, {watts: 20}}}
	m, err := New(p, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, cancel, done := startMonitor(t, m)
	ticks <- time.Now()
	ticks <- time.Now()
	cancel()

	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run returned %v, want nil", err)
	}
	if p.onCalls != 1 {
		t.Errorf("TurnOn calls = %d, want 1", p.onCalls)
	}
	if p.offCalls != 1 {
		t.Errorf("TurnOff calls = %d, want 1", p.offCalls)
	}
	if got := m.State(); got != StateStopped {
		t.Errorf("state after Run = %v, want StateStopped", got)
	}
}

func TestRunRefusesSecondStart(t *testing.T) {
	m, err := New(&fakePlug{}, Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := m.State(); got != StateIdle {
		t.Fatalf("fresh monitor state = %v, want StateIdle", got)
	}

	_, cancel, done := startMonitor(t, m)
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if err := m.Run(context.Background()); !errors.Is(err, ErrStarted) {
		t.Errorf("second Run = %v, want ErrStarted", err)
	}
}

func TestFiveTicksPersistFiveSamples(t *testing.T) {
	p := &fakePlug{script: []readResult{
		{watts: 10}, {watts: 20}, {watts: 30}, {watts: 40}, {watts: 50},
	}}
	st := &fakeStore{}
	r := &fakeRenderer{}
	m, err := New(p, Options{Window: 3, Store: st, Renderer: r})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, cancel, done := startMonitor(t, m)
	for i := 0; i < 5; i++ {
		ticks <- time.Now()
	}
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Bootstrap row plus one row per tick, in arrival order.
	if len(st.rows) != 6 {
		t.Fatalf("stored rows = %d, want 6", len(st.rows))
	}
	if st.rows[0].watts != 0 || st.rows[0].valid {
		t.Errorf("bootstrap row = %+v, want zero watts and valid=false", st.rows[0])
	}
	for i, want := range []float64{10, 20, 30, 40, 50} {
		row := st.rows[i+1]
		if row.watts != want || !row.valid {
			t.Errorf("row %d = %+v, want %v watts valid=true", i+1, row, want)
		}
	}

	if got := m.full.Len(); got != 5 {
		t.Errorf("full series length = %d, want 5", got)
	}
	win := m.window.Snapshot()
	for i, want := range []float64{30, 40, 50} {
		if win[i].Watts != want {
			t.Errorf("window[%d] = %v, want %v", i, win[i].Watts, want)
		}
	}

	// Two render calls per tick, one per view.
	if len(r.calls) != 10 {
		t.Fatalf("render calls = %d, want 10", len(r.calls))
	}
	if r.calls[0].view != ViewFull || r.calls[1].view != ViewWindow {
		t.Errorf("render order = %v, %v, want ViewFull then ViewWindow", r.calls[0].view, r.calls[1].view)
	}
}

func TestFailedReadSkipsTick(t *testing.T) {
	p := &fakePlug{script: []readResult{
		{watts: 10},
		{err: plug.ErrUnreachable},
		{watts: 30},
	}}
	st := &fakeStore{}
	r := &fakeRenderer{}
	m, err := New(p, Options{Store: st, Renderer: r})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, cancel, done := startMonitor(t, m)
	for i := 0; i < 3; i++ {
		ticks <- time.Now()
	}
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := m.full.Len(); got != 2 {
		t.Errorf("full series length = %d, want 2", got)
	}
	if len(st.rows) != 3 { // bootstrap + two good ticks
		t.Errorf("stored rows = %d, want 3", len(st.rows))
	}
	if len(r.calls) != 4 {
		t.Errorf("render calls = %d, want 4", len(r.calls))
	}
	win := m.window.Snapshot()
	if last := win[len(win)-1].Watts; last != 30 {
		t.Errorf("newest window value = %v, want 30", last)
	}
}

func TestPermanentFailureShutsDown(t *testing.T) {
	p := &fakePlug{script: []readResult{
		{watts: 10},
		{err: plug.ErrDeviceFailed},
	}}
	st := &fakeStore{}
	m, err := New(p, Options{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, _, done := startMonitor(t, m)
	ticks <- time.Now()
	ticks <- time.Now()

	if err := waitRun(t, done); !errors.Is(err, plug.ErrDeviceFailed) {
		t.Fatalf("Run = %v, want ErrDeviceFailed", err)
	}
	if p.offCalls != 1 {
		t.Errorf("TurnOff calls = %d, want best-effort power off", p.offCalls)
	}
	if st.ops[len(st.ops)-1] != "close" {
		t.Errorf("last store op = %q, want close", st.ops[len(st.ops)-1])
	}
	if got := m.State(); got != StateStopped {
		t.Errorf("state = %v, want StateStopped", got)
	}
}

func TestStoreFailureDoesNotStopSampling(t *testing.T) {
	p := &fakePlug{script: []readResult{{watts: 10}, {watts: 20}, {watts: 30}}}
	st := &fakeStore{failAppend: 2} // first real sample fails to persist
	m, err := New(p, Options{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, cancel, done := startMonitor(t, m)
	for i := 0; i < 3; i++ {
		ticks <- time.Now()
	}
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if got := m.full.Len(); got != 3 {
		t.Errorf("full series length = %d, want all 3 samples despite store failure", got)
	}
	if len(st.rows) != 3 { // bootstrap + ticks 2 and 3
		t.Errorf("stored rows = %d, want 3", len(st.rows))
	}
	if st.rows[1].watts != 20 || st.rows[2].watts != 30 {
		t.Errorf("stored rows = %+v, want 20 then 30 after the failed append", st.rows[1:])
	}
}

func TestResetClearsPriorRows(t *testing.T) {
	p := &fakePlug{script: []readResult{{watts: 10}, {watts: 20}}}
	st := &fakeStore{rows: []storeRow{
		{watts: 99, valid: true},
		{watts: 98, valid: true},
	}}
	m, err := New(p, Options{Store: st, ResetStore: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, cancel, done := startMonitor(t, m)
	ticks <- time.Now()
	ticks <- time.Now()
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(st.ops) < 2 || st.ops[0] != "init" || st.ops[1] != "reset" {
		t.Fatalf("store ops = %v, want init then reset first", st.ops)
	}
	if len(st.rows) != 3 {
		t.Fatalf("stored rows = %d, want bootstrap plus 2 samples", len(st.rows))
	}
	if st.rows[0].valid {
		t.Errorf("first row after reset = %+v, want the bootstrap row", st.rows[0])
	}
	if st.rows[1].watts != 10 || st.rows[2].watts != 20 {
		t.Errorf("sample rows = %+v, want 10 then 20", st.rows[1:])
	}
}

func TestTurnOnFailureAborts(t *testing.T) {
	p := &fakePlug{onErr: plug.ErrUnreachable}
	st := &fakeStore{}
	m, err := New(p, Options{Store: st})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	err = m.Run(context.Background())
	if !errors.Is(err, plug.ErrUnreachable) {
		t.Fatalf("Run = %v, want ErrUnreachable", err)
	}
	if len(st.ops) != 0 {
		t.Errorf("store ops = %v, want none when power on fails", st.ops)
	}
	if p.offCalls != 0 {
		t.Errorf("TurnOff calls = %d, want 0 when the plug never powered on", p.offCalls)
	}
	if got := m.State(); got != StateStopped {
		t.Errorf("state = %v, want StateStopped", got)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New(nil, Options{}); err == nil {
		t.Error("New(nil plug) should fail")
	}
	if _, err := New(&fakePlug{}, Options{Window: 1}); !errors.Is(err, series.ErrCapacity) {
		t.Errorf("New(window 1) = %v, want ErrCapacity", err)
	}
}

func TestVerboseLogsEachSample(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	p := &fakePlug{script: []readResult{{watts: 41.5}}}
	m, err := New(p, Options{Verbose: true, Logger: logger})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ticks, cancel, done := startMonitor(t, m)
	ticks <- time.Now()
	cancel()
	if err := waitRun(t, done); err != nil {
		t.Fatalf("Run: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "sample") || !strings.Contains(out, "watts=41.5") {
		t.Errorf("verbose log missing sample line:\n%s", out)
	}
}
