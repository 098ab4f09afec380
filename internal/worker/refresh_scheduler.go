// Package worker runs the periodic wallet refresh cycle.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kol-dashboard/internal/logging"
	"github.com/kol-dashboard/internal/service"
)

// DefaultInterval is the refresh period when none is configured
const DefaultInterval = 12 * time.Hour

var (
	// ErrCycleInProgress is returned when a trigger arrives while a cycle runs
	ErrCycleInProgress = errors.New("refresh cycle already in progress")
	// ErrNotRunning is returned when triggering a stopped scheduler
	ErrNotRunning = errors.New("refresh scheduler is not running")
)

// CycleRunner runs one full refresh cycle
type CycleRunner interface {
	RunCycle(ctx context.Context) service.CycleReport
}

// RefreshScheduler triggers refresh cycles on a fixed period and guarantees
// at most one cycle in flight
type RefreshScheduler struct {
	runner     CycleRunner
	interval   time.Duration
	runOnStart bool

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cycles  sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc

	inFlight      atomic.Bool
	lastStarted   time.Time
	lastReport    *service.CycleReport
	cyclesRun     int
	cyclesSkipped int
}

// RefreshSchedulerConfig holds configuration for the scheduler
type RefreshSchedulerConfig struct {
	Runner     CycleRunner
	Interval   time.Duration
	RunOnStart bool
}

// NewRefreshScheduler creates a new refresh scheduler
func NewRefreshScheduler(cfg *RefreshSchedulerConfig) (*RefreshScheduler, error) {
	if cfg.Runner == nil {
		return nil, fmt.Errorf("cycle runner cannot be nil")
	}

	interval := cfg.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	if interval < 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %v", interval)
	}

	return &RefreshScheduler{
		runner:     cfg.Runner,
		interval:   interval,
		runOnStart: cfg.RunOnStart,
	}, nil
}

// Start begins the scheduling loop
func (s *RefreshScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("refresh scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.ctx, s.cancel = context.WithCancel(ctx)
	loopCtx, stopCh, doneCh := s.ctx, s.stopCh, s.doneCh
	s.mu.Unlock()

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"interval":     s.interval.String(),
		"run_on_start": s.runOnStart,
	}).Info("Starting refresh scheduler")

	if s.runOnStart {
		s.launch(loopCtx, "start")
	}

	go s.loop(loopCtx, stopCh, doneCh)
	return nil
}

// Stop signals the loop to exit and waits for the in-flight cycle. When ctx
// expires first the cycle is cancelled.
func (s *RefreshScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	stopCh, doneCh, cancel := s.stopCh, s.doneCh, s.cancel
	s.mu.Unlock()

	logger := logging.FromContext(ctx)
	logger.Info("Stopping refresh scheduler")
	close(stopCh)

	finished := make(chan struct{})
	go func() {
		<-doneCh
		s.cycles.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		cancel()
		logger.Info("Refresh scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		cancel()
		logger.Warn("Refresh scheduler stop timed out, cancelling in-flight cycle")
		return ctx.Err()
	}
}

// TriggerNow starts a cycle in the background
func (s *RefreshScheduler) TriggerNow(ctx context.Context) error {
	s.mu.RLock()
	running, cycleCtx := s.running, s.ctx
	s.mu.RUnlock()
	if !running {
		return ErrNotRunning
	}
	if s.inFlight.Load() {
		s.recordSkip(ctx, "manual")
		return ErrCycleInProgress
	}
	if !s.launch(cycleCtx, "manual") {
		return ErrCycleInProgress
	}
	return nil
}

// RunOnce runs a cycle in the caller's goroutine
func (s *RefreshScheduler) RunOnce(ctx context.Context) (*service.CycleReport, error) {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.recordSkip(ctx, "once")
		return nil, ErrCycleInProgress
	}
	report := s.run(ctx, "once")
	return &report, nil
}

// InFlight reports whether a cycle is running
func (s *RefreshScheduler) InFlight() bool {
	return s.inFlight.Load()
}

func (s *RefreshScheduler) loop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.FromContext(ctx).Info("Refresh scheduler context cancelled")
			return
		case <-stopCh:
			return
		case <-ticker.C:
			s.launch(ctx, "interval")
		}
	}
}

// launch claims the in-flight slot and runs a cycle in a new goroutine
func (s *RefreshScheduler) launch(ctx context.Context, trigger string) bool {
	if !s.inFlight.CompareAndSwap(false, true) {
		s.recordSkip(ctx, trigger)
		return false
	}
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		s.run(ctx, trigger)
	}()
	return true
}

// run executes a cycle; the caller holds the in-flight slot
func (s *RefreshScheduler) run(ctx context.Context, trigger string) service.CycleReport {
	defer s.inFlight.Store(false)

	s.mu.Lock()
	s.lastStarted = time.Now()
	s.mu.Unlock()

	logging.FromContext(ctx).WithField("trigger", trigger).Info("Refresh cycle triggered")
	report := s.runner.RunCycle(ctx)

	s.mu.Lock()
	s.lastReport = &report
	s.cyclesRun++
	s.mu.Unlock()
	return report
}

func (s *RefreshScheduler) recordSkip(ctx context.Context, trigger string) {
	s.mu.Lock()
	s.cyclesSkipped++
	s.mu.Unlock()
	logging.FromContext(ctx).WithField("trigger", trigger).Warn("Refresh cycle still running, skipping trigger")
}

// GetStatus returns the current status of the scheduler
func (s *RefreshScheduler) GetStatus() *SchedulerStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status := &SchedulerStatus{
		Running:       s.running,
		InFlight:      s.inFlight.Load(),
		Interval:      s.interval.String(),
		CyclesRun:     s.cyclesRun,
		CyclesSkipped: s.cyclesSkipped,
	}
	if !s.lastStarted.IsZero() {
		t := s.lastStarted
		status.LastStarted = &t
	}
	if s.lastReport != nil {
		status.LastCycleID = s.lastReport.CycleID
		status.LastSucceeded = len(s.lastReport.Succeeded)
		status.LastFailed = len(s.lastReport.Failed)
	}
	return status
}

// SchedulerStatus represents the status of the refresh scheduler
type SchedulerStatus struct {
	Running       bool       `json:"running"`
	InFlight      bool       `json:"inFlight"`
	Interval      string     `json:"interval"`
	LastStarted   *time.Time `json:"lastStarted,omitempty"`
	LastCycleID   string     `json:"lastCycleId,omitempty"`
	LastSucceeded int        `json:"lastSucceeded"`
	LastFailed    int        `json:"lastFailed"`
	CyclesRun     int        `json:"cyclesRun"`
	CyclesSkipped int        `json:"cyclesSkipped"`
}
