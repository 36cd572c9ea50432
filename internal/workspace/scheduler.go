package workspace

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// RescanFunc runs one rescan over the given paths.
type RescanFunc func(ctx context.Context, paths []string) (*ScanReport, error)

// ReportFunc receives the outcome of every rescan that was not superseded.
type ReportFunc func(rep *ScanReport, err error)

// Scheduler coalesces rescan requests. Requests merge into a pending set;
// a scan starts once no request arrived for the debounce window. A request
// arriving while a scan runs cancels it, and the cancelled scan's paths are
// queued again with the new ones. At most one scan runs at a time.
type Scheduler struct {
	rescan   RescanFunc
	onReport ReportFunc
	debounce time.Duration
	log      *slog.Logger
	metrics  *Metrics

	mu      sync.Mutex
	pending map[string]struct{}
	kick    chan struct{}
}

// NewScheduler returns a Scheduler that runs rescan. onReport may be nil.
func NewScheduler(rescan RescanFunc, debounce time.Duration, onReport ReportFunc, logger *slog.Logger, metrics *Metrics) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Scheduler{
		rescan:   rescan,
		onReport: onReport,
		debounce: debounce,
		log:      logger,
		metrics:  metrics,
		pending:  make(map[string]struct{}),
		kick:     make(chan struct{}, 1),
	}
}

// Scheduler returns a Scheduler wired to this workspace's Rescan.
func (w *Workspace) Scheduler(onReport ReportFunc) *Scheduler {
	return NewScheduler(w.Rescan, w.cfg.Debounce(), onReport, w.log, w.metrics)
}

// Request queues paths for the next rescan. It never blocks.
func (s *Scheduler) Request(paths ...string) {
	if len(paths) == 0 {
		return
	}
	s.mu.Lock()
	for _, p := range paths {
		s.pending[p] = struct{}{}
	}
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Pending returns the number of distinct queued paths.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Scheduler) take() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.pending))
	for p := range s.pending {
		out = append(out, p)
	}
	clear(s.pending)
	sort.Strings(out)
	return out
}

type scanResult struct {
	rep *ScanReport
	err error
}

// Run processes requests until ctx is done. A scan in flight when ctx ends
// is cancelled and awaited.
func (s *Scheduler) Run(ctx context.Context) error {
	var (
		timer    = time.NewTimer(s.debounce)
		timerC   <-chan time.Time
		done     chan scanResult
		cancel   context.CancelFunc
		inFlight []string
	)
	if !timer.Stop() {
		<-timer.C
	}
	arm := func() {
		timer.Reset(s.debounce)
		timerC = timer.C
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			if cancel != nil {
				cancel()
				<-done
			}
			return ctx.Err()

		case <-s.kick:
			if cancel != nil {
				s.log.Debug("rescan superseded", slog.Int("paths", len(inFlight)))
				cancel()
			}
			arm()

		case <-timerC:
			timerC = nil
			if done != nil {
				// Still winding down a cancelled scan; it re-arms on exit.
				continue
			}
			paths := s.take()
			if len(paths) == 0 {
				continue
			}
			var scanCtx context.Context
			scanCtx, cancel = context.WithCancel(ctx)
			inFlight = paths
			done = make(chan scanResult, 1)
			go func(ch chan<- scanResult) {
				rep, err := s.rescan(scanCtx, paths)
				ch <- scanResult{rep, err}
			}(done)

		case res := <-done:
			cancel()
			cancel, done = nil, nil
			if errors.Is(res.err, context.Canceled) && ctx.Err() == nil {
				s.metrics.RescansCancelled.Inc()
				s.log.Info("rescan cancelled, requeueing", slog.Int("paths", len(inFlight)))
				s.Request(inFlight...)
				inFlight = nil
				continue
			}
			inFlight = nil
			if res.err != nil {
				s.log.Error("rescan failed", slog.String("err", res.err.Error()))
			}
			if s.onReport != nil {
				s.onReport(res.rep, res.err)
			}
			if s.Pending() > 0 && timerC == nil {
				arm()
			}
		}
	}
}
