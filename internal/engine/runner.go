package engine

import (
	"context"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Adaptive tick rate windows.
const (
	activePlayerWindow = 5 * time.Minute
	idleAfter          = 30 * time.Minute
	idleErrorCount     = 3
)

type tickReply struct {
	report *TickReport
	err    error
}

type tickRequest struct {
	reply chan tickReply
}

// runner owns one campaign. Its goroutine is the only place ticks execute,
// which keeps at most one tick in flight per campaign.
type runner struct {
	id string
	s  *Scheduler

	mu               sync.Mutex
	mode             campaign.TickMode
	active           bool
	inFlight         bool
	tickCount        uint64
	avgTickMs        float64
	lastTickDur      time.Duration
	lastTickAt       time.Time
	errorCount       int
	nextTickAt       time.Time
	queue            []campaign.Action
	players          map[string]time.Time
	lastPlayerAction time.Time
	registeredAt     time.Time
	latest           *TickReport
	retry            *backoff.ExponentialBackOff

	// Owned by the run goroutine.
	dedup       *hybrid.Deduper
	memories    []hybrid.TickMemory // newest first
	memoryReady bool

	wake      chan struct{} // schedule changed
	immediate chan struct{} // pending out-of-band tick
	manual    chan tickRequest
	cancel    context.CancelFunc
	done      chan struct{}
}

func newRunner(s *Scheduler, id string, mode campaign.TickMode) *runner {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = s.cfg.RetryBaseDelay
	retry.RandomizationFactor = 0
	retry.Multiplier = 2
	retry.MaxInterval = s.cfg.Interval(campaign.ModeIdle)
	retry.Reset()

	return &runner{
		id:           id,
		s:            s,
		mode:         mode,
		players:      make(map[string]time.Time),
		registeredAt: s.now(),
		retry:        retry,
		dedup:        hybrid.NewDeduper(s.cfg.Dedup),
		wake:         make(chan struct{}, 1),
		immediate:    make(chan struct{}, 1),
		manual:       make(chan tickRequest),
		done:         make(chan struct{}),
	}
}

// run is the campaign goroutine. It exits when ctx is canceled; a tick that
// is already executing finishes first.
func (r *runner) run(ctx context.Context) {
	defer close(r.done)

	timer := time.NewTimer(time.Hour)
	defer timer.Stop()

	for {
		r.arm(timer)

		select {
		case <-ctx.Done():
			return
		case <-r.wake:
		case <-timer.C:
			if r.due() {
				r.tick(ctx, TriggerScheduled)
			}
		case <-r.immediate:
			r.tick(ctx, TriggerImmediate)
		case req := <-r.manual:
			report, err := r.tick(ctx, TriggerManual)
			req.reply <- tickReply{report: report, err: err}
		}
	}
}

// arm points timer at nextTickAt, or parks it while the campaign is stopped.
func (r *runner) arm(timer *time.Timer) {
	r.mu.Lock()
	active, next := r.active, r.nextTickAt
	r.mu.Unlock()

	if !active {
		timer.Stop()
		return
	}
	timer.Reset(max(next.Sub(r.s.now()), 0))
}

func (r *runner) due() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active && !r.s.now().Before(r.nextTickAt)
}

func (r *runner) poke() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// trigger requests an out-of-band tick. Requests made while one is pending
// collapse into it.
func (r *runner) trigger() {
	select {
	case r.immediate <- struct{}{}:
	default:
	}
}

func (r *runner) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return newError(CodeAlreadyActive, r.id, nil)
	}
	r.active = true
	r.nextTickAt = r.s.now().Add(r.s.cfg.Interval(r.mode))
	r.poke()
	return nil
}

// stop reports whether the campaign was active.
func (r *runner) stop() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	was := r.active
	r.active = false
	r.nextTickAt = time.Time{}
	r.poke()
	return was
}

func (r *runner) setMode(mode campaign.TickMode) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.mode == mode {
		return false
	}
	r.mode = mode
	if r.active {
		r.nextTickAt = r.s.now().Add(r.s.cfg.Interval(mode))
		r.poke()
	}
	return true
}

func (r *runner) enqueue(a campaign.Action) {
	now := r.s.now()
	r.mu.Lock()
	r.queue = append(r.queue, a)
	r.players[a.PlayerID] = now
	r.lastPlayerAction = now
	r.mu.Unlock()
}

// takeQueue snapshots and clears the queue for a tick.
func (r *runner) takeQueue() []campaign.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	batch := r.queue
	r.queue = nil
	r.inFlight = true
	return batch
}

// finish records the outcome of a tick and schedules the next one.
func (r *runner) finish(report *TickReport, batch []campaign.Action, tickErr error, elapsed time.Duration) (modeChanged bool) {
	now := r.s.now()
	cfg := r.s.cfg

	r.mu.Lock()
	defer r.mu.Unlock()

	r.inFlight = false
	if tickErr == nil {
		r.tickCount++
		ms := float64(elapsed) / float64(time.Millisecond)
		r.avgTickMs = (r.avgTickMs*float64(r.tickCount-1) + ms) / float64(r.tickCount)
		r.lastTickDur = elapsed
		r.lastTickAt = now
		r.latest = report
		r.retry.Reset()
	} else {
		r.errorCount++
		if cfg.RequeueOnFailure {
			r.queue = slices.Concat(batch, r.queue)
		}
	}

	if cfg.Adaptive {
		if mode := r.adaptiveMode(now); mode != r.mode {
			slog.Info("tick mode adapted", "campaign_id", r.id, "from", r.mode, "to", mode)
			r.mode = mode
			modeChanged = true
		}
	}

	if r.active {
		next := cfg.Interval(r.mode)
		if tickErr != nil && cfg.RetryBaseDelay > 0 {
			next = min(next, r.retry.NextBackOff())
		}
		r.nextTickAt = now.Add(next)
	}
	return modeChanged
}

// adaptiveMode picks a cadence from recent player activity and error history.
// Caller holds r.mu.
func (r *runner) adaptiveMode(now time.Time) campaign.TickMode {
	for _, seen := range r.players {
		if now.Sub(seen) <= activePlayerWindow {
			return campaign.ModeStrategic
		}
	}
	if r.errorCount > idleErrorCount {
		return campaign.ModeIdle
	}
	last := r.lastPlayerAction
	if last.IsZero() {
		last = r.registeredAt
	}
	if now.Sub(last) > idleAfter {
		return campaign.ModeIdle
	}
	return campaign.ModeStrategic
}

func (r *runner) status() Status {
	now := r.s.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		CampaignID:         r.id,
		Mode:               r.mode,
		Active:             r.active,
		InFlight:           r.inFlight,
		TickCount:          r.tickCount,
		AverageTickTimeMs:  r.avgTickMs,
		LastTickDurationMs: float64(r.lastTickDur) / float64(time.Millisecond),
		LastTickAt:         r.lastTickAt,
		ErrorCount:         r.errorCount,
		QueuedActions:      len(r.queue),
		ActivePlayers:      slices.Sorted(maps.Keys(r.players)),
		LastPlayerAction:   r.lastPlayerAction,
	}
	if r.active {
		st.NextTickAt = r.nextTickAt
		st.TimeUntilNextTick = max(r.nextTickAt.Sub(now), 0)
	}
	return st
}

func (r *runner) queued() []campaign.Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.queue)
}

func (r *runner) latestReport() *TickReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest
}

func (r *runner) currentMode() campaign.TickMode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mode
}
