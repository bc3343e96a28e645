package llm

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

const (
	sectionTokens = 1000
	overallTokens = 200
)

// Analyzer turns deterministic results into the narrative bundle. With a
// configured client it asks the model for each section in parallel;
// otherwise, and for any section the model fails, it reads the metrics by
// rule.
type Analyzer struct {
	client *Client
	budget time.Duration // analyses slower than this lose confidence
}

// NewAnalyzer creates an Analyzer. client may be nil.
func NewAnalyzer(client *Client, budget time.Duration) *Analyzer {
	return &Analyzer{client: client, budget: budget}
}

// Enabled reports whether the model is used.
func (a *Analyzer) Enabled() bool {
	return a != nil && a.client.Enabled()
}

// Analyze produces the narrative bundle for one tick. Model failures degrade
// to rule-based sections; only a done ctx fails the call.
func (a *Analyzer) Analyze(ctx context.Context, campaignID string, actions []campaign.Action, det *hybrid.DeterministicResults) (*hybrid.NaturalLanguageResults, error) {
	start := time.Now()
	base := Heuristic(det, actions)
	if !a.Enabled() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return base, nil
	}

	out := *base
	var answered atomic.Int32
	log := slog.With("campaign_id", campaignID, "tick", det.CampaignState.Tick)

	section := func(name, prompt string, apply func(response string) error) func() error {
		return func() error {
			resp, err := a.client.Complete(ctx, analystSystem, prompt, sectionTokens)
			if err == nil {
				err = apply(resp)
			}
			if err != nil {
				log.Warn("narrative section fell back to rules", "section", name, "error", err)
				return nil
			}
			answered.Add(1)
			return nil
		}
	}

	var g errgroup.Group
	g.Go(section("population_mood", buildMoodPrompt(det, actions), func(resp string) error {
		mood, err := parseMood(resp, base.PopulationMood)
		if err == nil {
			mood.TrendDirection = moodTrend(det, mood.Sentiment.OverallSentiment)
			out.PopulationMood = mood
		}
		return err
	}))
	g.Go(section("economy", buildEconomicPrompt(det), func(resp string) error {
		story, err := parseEconomy(resp, base.EconomicStory)
		if err == nil {
			out.EconomicStory = story
		}
		return err
	}))
	g.Go(section("military", buildMilitaryPrompt(det), func(resp string) error {
		status, err := parseMilitary(resp, base.MilitaryStatus)
		if err == nil {
			out.MilitaryStatus = status
		}
		return err
	}))
	g.Go(section("diplomacy", buildDiplomaticPrompt(det), func(resp string) error {
		sit, err := parseDiplomacy(resp, base.DiplomaticSituation)
		if err == nil {
			out.DiplomaticSituation = sit
		}
		return err
	}))
	g.Go(section("research", buildResearchPrompt(det), func(resp string) error {
		r, err := parseResearch(resp, base.ResearchNarrative)
		if err == nil {
			out.ResearchNarrative = r
		}
		return err
	}))
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out.OverallNarrative = heuristicOverall(&out)
	if resp, err := a.client.Complete(ctx, chroniclerSystem, buildOverallPrompt(&out), overallTokens); err == nil {
		if s := strings.TrimSpace(resp); s != "" {
			out.OverallNarrative = s
		}
	} else {
		log.Warn("overall narrative fell back to rules", "error", err)
	}

	slow := a.budget > 0 && time.Since(start) > a.budget
	out.ConfidenceScore = confidence(int(answered.Load()), slow)

	log.Debug("narrative analysis complete",
		"model_sections", answered.Load(),
		"confidence", out.ConfidenceScore,
		"elapsed", time.Since(start),
	)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &out, nil
}
