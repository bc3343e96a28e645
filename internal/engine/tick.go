package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// tick runs one full tick on the campaign goroutine and publishes the
// outcome. The tick is detached from ctx so that unregistering a campaign
// waits for it instead of interrupting it.
func (r *runner) tick(ctx context.Context, trigger Trigger) (*TickReport, error) {
	start := r.s.now()
	batch := r.takeQueue()

	tctx, span := r.s.tracer.Start(context.WithoutCancel(ctx), "campaign.tick",
		trace.WithAttributes(
			attribute.String("campaign.id", r.id),
			attribute.String("tick.trigger", string(trigger)),
			attribute.Int("tick.actions", len(batch)),
		))
	defer span.End()

	report, err := r.execute(tctx, trigger, batch, start)
	elapsed := r.s.now().Sub(start)
	modeChanged := r.finish(report, batch, err, elapsed)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())

		var tickNo uint64
		var te *Error
		if errors.As(err, &te) {
			tickNo = te.Tick
		}
		slog.Error("tick failed", "campaign_id", r.id, "tick", tickNo, "trigger", trigger, "error", err)
		r.s.bus.Publish(Notification{Kind: NotifyTickFailed, CampaignID: r.id, Tick: tickNo, Error: err.Error()})
	} else {
		span.SetAttributes(attribute.Int64("tick.number", int64(report.Tick)))
		slog.Info("tick completed",
			"campaign_id", r.id,
			"tick", report.Tick,
			"trigger", trigger,
			"actions", len(batch),
			"events", len(report.Results.EmergentEvents),
			"alerts", len(report.Results.CrisisAlerts),
			"duration", elapsed,
		)
		r.s.bus.Publish(Notification{Kind: NotifyTickComplete, CampaignID: r.id, Tick: report.Tick, Report: report})
	}

	if modeChanged {
		r.s.bus.Publish(Notification{Kind: NotifyModeChanged, CampaignID: r.id, Mode: r.currentMode()})
	}
	return report, err
}

// execute loads state, runs both producers and the integrator, and commits
// the result. Nothing is persisted unless every phase succeeds.
func (r *runner) execute(ctx context.Context, trigger Trigger, batch []campaign.Action, start time.Time) (*TickReport, error) {
	timeout := r.s.cfg.tickTimeout()
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prev, err := r.s.store.LoadState(pctx, r.id)
	if err != nil {
		return nil, newError(CodePersistenceFailure, r.id, fmt.Errorf("load state: %w", err))
	}
	tickNo := prev.Tick + 1
	r.loadMemories(pctx)

	report := &TickReport{
		CampaignID: r.id,
		TickID:     uuid.NewString(),
		Tick:       tickNo,
		Seed:       fmt.Sprintf("campaign_%s_tick_%d_%d", r.id, tickNo, start.UnixMilli()),
		Trigger:    trigger,
		Actions:    batch,
		StartedAt:  start,
	}
	if report.Actions == nil {
		report.Actions = []campaign.Action{}
	}

	// Deterministic phase.
	var det *hybrid.DeterministicResults
	err = r.phase(pctx, "deterministic", &report.Phases.Deterministic, func(ctx context.Context) error {
		det, err = within(ctx, func(ctx context.Context) (*hybrid.DeterministicResults, error) {
			return r.s.sim.Compute(ctx, r.id, prev, batch)
		})
		if err == nil && det == nil {
			err = errors.New("simulator returned no results")
		}
		return err
	})
	if err != nil {
		return nil, tickError(CodeProducerUnavailable, r.id, tickNo, fmt.Errorf("deterministic: %w", err))
	}

	// Narrative phase.
	var nl *hybrid.NaturalLanguageResults
	err = r.phase(pctx, "natural_language", &report.Phases.NaturalLanguage, func(ctx context.Context) error {
		if r.s.cfg.DisableNarrative || r.s.analyzer == nil {
			nl = hybrid.NeutralNarrative()
			return nil
		}
		nl, err = within(ctx, func(ctx context.Context) (*hybrid.NaturalLanguageResults, error) {
			return r.s.analyzer.Analyze(ctx, r.id, batch, det)
		})
		if err == nil && nl == nil {
			nl = hybrid.NeutralNarrative()
		}
		return err
	})
	if err != nil {
		return nil, tickError(CodeProducerUnavailable, r.id, tickNo, fmt.Errorf("narrative: %w", err))
	}

	// Integration phase.
	var res *hybrid.HybridResults
	err = r.phase(ctx, "integration", &report.Phases.Integration, func(context.Context) error {
		res, err = r.s.integrator.Integrate(det, nl)
		return err
	})
	if err != nil {
		return nil, tickError(CodeIntegrationFailure, r.id, tickNo, err)
	}
	res.FinalCampaignState.Tick = tickNo
	report.Results = r.dedup.Filter(tickNo, res)
	hybrid.RecordOffers(&report.Results.FinalCampaignState, tickNo,
		report.Results.EmergentEvents, report.Results.PolicyRecommendations)
	report.Memory = r.buildMemory(tickNo, nl, report.Results)
	report.CompletedAt = r.s.now()
	report.Duration = report.CompletedAt.Sub(start)

	// Persistence phase. It gets its own budget so that slow producers do not
	// starve the commit.
	sctx, scancel := context.WithTimeout(ctx, timeout)
	defer scancel()
	err = r.phase(sctx, "persistence", &report.Phases.Persistence, func(ctx context.Context) error {
		return r.s.store.SaveTick(ctx, report)
	})
	if err != nil {
		return nil, tickError(CodePersistenceFailure, r.id, tickNo, err)
	}
	r.dedup.Record(tickNo, report.Results)
	if report.Memory != nil {
		r.memories = append([]hybrid.TickMemory{*report.Memory}, r.memories[:min(len(r.memories), hybrid.MemoryWindow-1)]...)
	}
	return report, nil
}

// loadMemories seeds continuity scoring from the store on the campaign's
// first tick. A failure only costs continuity.
func (r *runner) loadMemories(ctx context.Context) {
	if r.memoryReady {
		return
	}
	r.memoryReady = true
	reader, ok := r.s.store.(MemoryReader)
	if !ok {
		return
	}
	mems, err := reader.RecentMemories(ctx, r.id, hybrid.MemoryWindow)
	if err != nil {
		slog.Warn("failed to load tick memories", "campaign_id", r.id, "error", err)
		return
	}
	r.memories = mems
}

// buildMemory summarizes the tick for the campaign's memory. It never fails
// the tick: a panic yields no memory.
func (r *runner) buildMemory(tick uint64, nl *hybrid.NaturalLanguageResults, res *hybrid.HybridResults) (m *hybrid.TickMemory) {
	defer func() {
		if p := recover(); p != nil {
			slog.Warn("tick memory skipped", "campaign_id", r.id, "tick", tick, "panic", p)
			m = nil
		}
	}()
	mem := hybrid.BuildMemory(r.id, tick, nl, res, r.memories)
	return &mem
}

// phase runs fn under a child span and records its duration in into.
func (r *runner) phase(ctx context.Context, name string, into *time.Duration, fn func(context.Context) error) error {
	ctx, span := r.s.tracer.Start(ctx, "tick."+name)
	defer span.End()

	t0 := r.s.now()
	err := fn(ctx)
	*into = r.s.now().Sub(t0)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// within runs fn on its own goroutine and gives up when ctx is done. A
// producer that ignores ctx is left to finish in the background; its result
// is dropped. Panics are returned as errors.
func within[T any](ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				ch <- result{err: fmt.Errorf("panic: %v", p)}
			}
		}()
		v, err := fn(ctx)
		ch <- result{v: v, err: err}
	}()

	select {
	case res := <-ch:
		return res.v, res.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
