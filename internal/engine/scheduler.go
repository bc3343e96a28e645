// Package engine schedules campaign ticks. Each registered campaign gets its
// own goroutine that runs ticks on its cadence, on demand, or when a critical
// action asks for an immediate one; ticks of one campaign never overlap.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

const tracerName = "github.com/talgya/hybrid-sim/internal/engine"

// SeedFunc adapts a function to SeedSource.
type SeedFunc func() int64

func (f SeedFunc) Seed() int64 { return f() }

// Scheduler runs the tick pipeline for every registered campaign.
type Scheduler struct {
	cfg        Config
	sim        DeterministicSimulator
	analyzer   NarrativeAnalyzer
	store      StateStore
	integrator *hybrid.Integrator
	seeds      SeedSource
	bus        *Bus
	tracer     trace.Tracer
	now        func() time.Time

	mu      sync.RWMutex
	runners map[string]*runner
	pending map[string]struct{} // registrations doing I/O outside mu
	closed  bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithSeedSource sets where new campaigns draw their seed from.
func WithSeedSource(src SeedSource) Option {
	return func(s *Scheduler) { s.seeds = src }
}

// WithTracerProvider sets the provider for tick spans. The global provider
// is used otherwise.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Scheduler) { s.tracer = tp.Tracer(tracerName) }
}

// WithClock overrides time.Now for cadence bookkeeping.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler. analyzer may be nil, in which case every tick uses
// the neutral narrative.
func New(cfg Config, sim DeterministicSimulator, analyzer NarrativeAnalyzer, store StateStore, integrator *hybrid.Integrator, opts ...Option) *Scheduler {
	s := &Scheduler{
		cfg:        cfg,
		sim:        sim,
		analyzer:   analyzer,
		store:      store,
		integrator: integrator,
		seeds:      SeedFunc(rand.Int64),
		bus:        NewBus(cfg.SubscriberBuffer),
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		runners:    make(map[string]*runner),
		pending:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds a campaign in the stopped state. The persisted campaign is
// created with a fresh seed unless it already exists.
func (s *Scheduler) Register(ctx context.Context, campaignID string, mode campaign.TickMode) error {
	campaignID = strings.TrimSpace(campaignID)
	if campaignID == "" {
		return errors.New("campaign id is required")
	}
	mode, err := campaign.ParseTickMode(string(mode))
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return newError(CodeShutdown, campaignID, nil)
	}
	_, running := s.runners[campaignID]
	_, reserved := s.pending[campaignID]
	if running || reserved {
		s.mu.Unlock()
		return newError(CodeAlreadyRegistered, campaignID, nil)
	}
	s.pending[campaignID] = struct{}{}
	s.mu.Unlock()

	// The seed source and the store may block; other campaigns keep running.
	initial := campaign.NewState(campaignID, s.seeds.Seed())
	err = s.store.EnsureCampaign(ctx, campaignID, mode, initial)

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, campaignID)
	if err != nil {
		return newError(CodePersistenceFailure, campaignID, err)
	}
	if s.closed {
		return newError(CodeShutdown, campaignID, nil)
	}

	r := newRunner(s, campaignID, mode)
	rctx, cancel := context.WithCancel(context.Background())
	r.cancel = cancel
	s.runners[campaignID] = r
	go r.run(rctx)

	slog.Info("campaign registered", "campaign_id", campaignID, "mode", mode)
	s.bus.Publish(Notification{Kind: NotifyRegistered, CampaignID: campaignID, Mode: mode})
	return nil
}

// Start activates the campaign's cadence. The first scheduled tick is one
// interval away.
func (s *Scheduler) Start(campaignID string) error {
	r, err := s.runner(campaignID)
	if err != nil {
		return err
	}
	if err := r.start(); err != nil {
		return err
	}
	slog.Info("campaign started", "campaign_id", campaignID, "mode", r.currentMode())
	s.bus.Publish(Notification{Kind: NotifyStarted, CampaignID: campaignID, Mode: r.currentMode()})
	return nil
}

// Stop pauses the cadence. A tick already in flight completes and queued
// actions are kept.
func (s *Scheduler) Stop(campaignID string) error {
	r, err := s.runner(campaignID)
	if err != nil {
		return err
	}
	if r.stop() {
		slog.Info("campaign stopped", "campaign_id", campaignID)
		s.bus.Publish(Notification{Kind: NotifyStopped, CampaignID: campaignID})
	}
	return nil
}

// Unregister stops the campaign, waits for any in-flight tick, and drops its
// scheduler state and queue. Persisted data is kept.
func (s *Scheduler) Unregister(campaignID string) error {
	s.mu.Lock()
	r, ok := s.runners[campaignID]
	delete(s.runners, campaignID)
	s.mu.Unlock()
	if !ok {
		return newError(CodeNotRegistered, campaignID, nil)
	}

	r.stop()
	r.cancel()
	<-r.done

	slog.Info("campaign unregistered", "campaign_id", campaignID)
	s.bus.Publish(Notification{Kind: NotifyUnregistered, CampaignID: campaignID})
	return nil
}

// Delete unregisters the campaign and removes its persisted data. A
// simulator that caches per-seed data is told to drop it.
func (s *Scheduler) Delete(ctx context.Context, campaignID string) error {
	if err := s.Unregister(campaignID); err != nil && !errors.Is(err, ErrNotRegistered) {
		return err
	}
	st, loadErr := s.store.LoadState(ctx, campaignID)
	if err := s.store.DeleteCampaign(ctx, campaignID); err != nil {
		return newError(CodePersistenceFailure, campaignID, err)
	}
	if f, ok := s.sim.(SeedForgetter); ok && loadErr == nil {
		f.Forget(st.Seed)
	}
	return nil
}

// Enqueue validates and queues an action for the campaign's next tick. A
// missing ID, timestamp, type or priority is filled in. A critical action
// that requires an immediate response triggers an out-of-band tick.
func (s *Scheduler) Enqueue(campaignID string, a campaign.Action) (campaign.Action, error) {
	r, err := s.runner(campaignID)
	if err != nil {
		return campaign.Action{}, err
	}

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.Timestamp.IsZero() {
		a.Timestamp = s.now()
	}
	if a.Type == "" && a.Data != nil {
		a.Type = a.Data.ActionType()
	}
	if a.Priority == "" {
		a.Priority = campaign.PriorityMedium
	}
	if err := a.Validate(); err != nil {
		return campaign.Action{}, newError(CodeInvalidAction, campaignID, err)
	}

	r.enqueue(a)
	slog.Debug("action queued", "campaign_id", campaignID, "action_id", a.ID, "type", a.Type, "priority", a.Priority)
	s.bus.Publish(Notification{Kind: NotifyActionQueued, CampaignID: campaignID, Action: &a})

	if a.Urgent() {
		r.trigger()
	}
	return a, nil
}

// Tick runs a tick now and waits for it. It queues behind any tick already
// in flight for the campaign. ctx bounds only the wait: once started, the
// tick runs to completion.
func (s *Scheduler) Tick(ctx context.Context, campaignID string) (*TickReport, error) {
	r, err := s.runner(campaignID)
	if err != nil {
		return nil, err
	}

	req := tickRequest{reply: make(chan tickReply, 1)}
	select {
	case r.manual <- req:
	case <-r.done:
		return nil, newError(CodeNotRegistered, campaignID, nil)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case rep := <-req.reply:
		return rep.report, rep.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SetMode changes the campaign's cadence. An active campaign's next tick is
// rescheduled one new interval from now.
func (s *Scheduler) SetMode(campaignID string, mode campaign.TickMode) error {
	mode, err := campaign.ParseTickMode(string(mode))
	if err != nil {
		return err
	}
	r, err := s.runner(campaignID)
	if err != nil {
		return err
	}
	if r.setMode(mode) {
		slog.Info("tick mode changed", "campaign_id", campaignID, "mode", mode)
		s.bus.Publish(Notification{Kind: NotifyModeChanged, CampaignID: campaignID, Mode: mode})
	}
	return nil
}

// Status returns the campaign's scheduler state.
func (s *Scheduler) Status(campaignID string) (Status, error) {
	r, err := s.runner(campaignID)
	if err != nil {
		return Status{}, err
	}
	return r.status(), nil
}

// Statuses returns every registered campaign's state, ordered by ID.
func (s *Scheduler) Statuses() []Status {
	s.mu.RLock()
	runners := make([]*runner, 0, len(s.runners))
	for _, r := range s.runners {
		runners = append(runners, r)
	}
	s.mu.RUnlock()

	out := make([]Status, 0, len(runners))
	for _, r := range runners {
		out = append(out, r.status())
	}
	slices.SortFunc(out, func(a, b Status) int { return strings.Compare(a.CampaignID, b.CampaignID) })
	return out
}

// QueuedActions returns a copy of the campaign's pending actions in order.
func (s *Scheduler) QueuedActions(campaignID string) ([]campaign.Action, error) {
	r, err := s.runner(campaignID)
	if err != nil {
		return nil, err
	}
	return r.queued(), nil
}

// Latest returns the campaign's most recent committed tick, or nil before
// the first one.
func (s *Scheduler) Latest(campaignID string) (*TickReport, error) {
	r, err := s.runner(campaignID)
	if err != nil {
		return nil, err
	}
	return r.latestReport(), nil
}

// Registered reports whether the campaign is registered.
func (s *Scheduler) Registered(campaignID string) bool {
	_, err := s.runner(campaignID)
	return err == nil
}

// Subscribe opens a notification stream.
func (s *Scheduler) Subscribe() (int, <-chan Notification) {
	return s.bus.Subscribe()
}

// Unsubscribe closes a notification stream.
func (s *Scheduler) Unsubscribe(id int) {
	s.bus.Unsubscribe(id)
}

// Shutdown stops every campaign and waits for in-flight ticks, then closes
// all notification streams. Register fails afterwards.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	runners := s.runners
	s.runners = make(map[string]*runner)
	s.mu.Unlock()

	var g errgroup.Group
	for id, r := range runners {
		g.Go(func() error {
			r.stop()
			r.cancel()
			select {
			case <-r.done:
				return nil
			case <-ctx.Done():
				return fmt.Errorf("campaign %s: %w", id, ctx.Err())
			}
		})
	}
	err := g.Wait()
	s.bus.Close()
	slog.Info("scheduler shut down", "campaigns", len(runners))
	return err
}

func (s *Scheduler) runner(campaignID string) (*runner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runners[campaignID]
	if !ok {
		return nil, newError(CodeNotRegistered, campaignID, nil)
	}
	return r, nil
}
