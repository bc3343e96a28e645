package steward

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
	"github.com/talgya/hybrid-sim/internal/llm"
)

// Decision kinds.
const (
	ActionNone    = "none"
	ActionResolve = "resolve_event"
	ActionAdopt   = "adopt_policy"
)

const systemPrompt = `You are the Steward, an autonomous advisor governing a strategy campaign on behalf of an absent player.

Each cycle you see the campaign's resources, crisis alerts, open emergent events with their choices, and pending policy recommendations. Recommend zero or one action.

## Priorities (in order)

1. SURVIVAL: answer critical alerts and major crises first.
2. THRIFT: never spend more than the stated budget. Prefer cheaper choices when outcomes are similar.
3. RESTRAINT: when the campaign is healthy, do nothing. The player should make the interesting decisions.

## Available Actions

- "none": no action. This is the RIGHT choice most of the time.
- "resolve_event": answer an open event. Set "event_id" and "choice_id".
- "adopt_policy": adopt a pending recommendation. Set "recommendation_id".

## Response Format

Respond with ONLY valid JSON (no markdown, no explanation outside the JSON):
{"action": "none", "rationale": "Brief assessment.", "event_id": "", "choice_id": "", "recommendation_id": ""}

Only use IDs that appear in the campaign report.`

// Decision is the steward's chosen action for one cycle.
type Decision struct {
	Action           string `json:"action"`
	Rationale        string `json:"rationale"`
	EventID          string `json:"event_id,omitempty"`
	ChoiceID         string `json:"choice_id,omitempty"`
	RecommendationID string `json:"recommendation_id,omitempty"`
	Source           string `json:"source"` // model or rules
}

// Budget caps what one decision may spend, per resource.
type Budget map[string]int64

// NewBudget allows fraction of each resource the campaign holds.
func NewBudget(st campaign.State, fraction float64) Budget {
	b := make(Budget, len(st.Resources))
	for k, v := range st.Resources {
		b[k] = int64(math.Floor(float64(v) * fraction))
	}
	return b
}

// Covers reports whether every entry of cost fits in the budget.
func (b Budget) Covers(cost map[string]int64) bool {
	for k, v := range cost {
		if v > b[k] {
			return false
		}
	}
	return true
}

// Decide picks an action for the snapshot. The model is consulted when the
// client is configured; a model failure or a decision that breaks the
// guardrails falls back to the rules.
func Decide(ctx context.Context, client *llm.Client, snap *Snapshot, h *Health, mem *CycleMemory, budget Budget) *Decision {
	if h.Level == LevelHealthy && len(h.OpenEvents) == 0 {
		return &Decision{Action: ActionNone, Rationale: "campaign healthy", Source: "rules"}
	}

	if client.Enabled() {
		d, err := decideWithModel(ctx, client, snap, h, mem, budget)
		if err == nil {
			err = enforceGuardrails(d, snap, h, budget)
		}
		if err == nil {
			return d
		}
		slog.Warn("steward model decision rejected, using rules", "campaign_id", snap.CampaignID, "error", err)
	}
	return decideByRules(h, budget)
}

func decideWithModel(ctx context.Context, client *llm.Client, snap *Snapshot, h *Health, mem *CycleMemory, budget Budget) (*Decision, error) {
	prompt := formatSnapshot(snap, h, budget) + mem.FormatForPrompt(snap.CampaignID)
	slog.Debug("steward prompt", "length", len(prompt))

	resp, err := client.Complete(ctx, systemPrompt, prompt, 400)
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}
	start, end := strings.Index(resp, "{"), strings.LastIndex(resp, "}")
	if start == -1 || end <= start || !gjson.Valid(resp[start:end+1]) {
		return nil, fmt.Errorf("no JSON decision in response")
	}
	r := gjson.Parse(resp[start : end+1])
	return &Decision{
		Action:           r.Get("action").String(),
		Rationale:        r.Get("rationale").String(),
		EventID:          r.Get("event_id").String(),
		ChoiceID:         r.Get("choice_id").String(),
		RecommendationID: r.Get("recommendation_id").String(),
		Source:           "model",
	}, nil
}

// decideByRules answers the most severe open event with its best affordable
// choice. Without one, an unhealthy campaign adopts its most urgent
// affordable recommendation.
func decideByRules(h *Health, budget Budget) *Decision {
	events := slices.Clone(h.OpenEvents)
	slices.SortStableFunc(events, func(a, b hybrid.EmergentEvent) int {
		return cmp.Compare(severityRank(a.Severity), severityRank(b.Severity))
	})
	for _, ev := range events {
		if c, ok := bestChoice(ev, budget); ok {
			return &Decision{
				Action:    ActionResolve,
				Rationale: fmt.Sprintf("%s: responding with %q", ev.Title, c.Title),
				EventID:   ev.ID,
				ChoiceID:  c.ID,
				Source:    "rules",
			}
		}
	}

	if h.Level != LevelHealthy {
		recs := slices.Clone(h.Pending)
		slices.SortStableFunc(recs, func(a, b hybrid.PolicyRecommendation) int {
			return cmp.Compare(priorityRank(a.Priority), priorityRank(b.Priority))
		})
		for _, rec := range recs {
			if budget.Covers(rec.ResourceRequirements) {
				return &Decision{
					Action:           ActionAdopt,
					Rationale:        fmt.Sprintf("%s campaign: adopting %q", strings.ToLower(h.Level), rec.Title),
					RecommendationID: rec.ID,
					Source:           "rules",
				}
			}
		}
	}
	return &Decision{Action: ActionNone, Rationale: "nothing affordable to do", Source: "rules"}
}

// bestChoice returns the affordable choice with the largest net consequence,
// preferring the cheaper one on ties.
func bestChoice(ev hybrid.EmergentEvent, budget Budget) (hybrid.PlayerChoice, bool) {
	var (
		best  hybrid.PlayerChoice
		found bool
	)
	for _, c := range ev.PlayerChoices {
		if !budget.Covers(c.Cost) {
			continue
		}
		if !found || netEffect(c) > netEffect(best) ||
			(netEffect(c) == netEffect(best) && totalCost(c.Cost) < totalCost(best.Cost)) {
			best, found = c, true
		}
	}
	return best, found
}

func netEffect(c hybrid.PlayerChoice) float64 {
	var sum float64
	for _, e := range c.Consequences {
		sum += e.Modifier
	}
	return sum
}

func totalCost(cost map[string]int64) int64 {
	var sum int64
	for _, v := range cost {
		sum += v
	}
	return sum
}

func severityRank(s string) int {
	switch s {
	case "critical":
		return 0
	case "major":
		return 1
	case "moderate":
		return 2
	}
	return 3
}

// enforceGuardrails checks that a decision names things that exist, are
// still open, and fit the budget.
func enforceGuardrails(d *Decision, snap *Snapshot, h *Health, budget Budget) error {
	switch d.Action {
	case ActionNone:
		d.EventID, d.ChoiceID, d.RecommendationID = "", "", ""
		return nil

	case ActionResolve:
		i := slices.IndexFunc(h.OpenEvents, func(ev hybrid.EmergentEvent) bool { return ev.ID == d.EventID })
		if i < 0 {
			return fmt.Errorf("event %q is not open", d.EventID)
		}
		c, ok := h.OpenEvents[i].Choice(d.ChoiceID)
		if !ok {
			return fmt.Errorf("event %q has no choice %q", d.EventID, d.ChoiceID)
		}
		if !budget.Covers(c.Cost) || !snap.State.CanAfford(c.Cost) {
			return fmt.Errorf("choice %q exceeds the spending cap", d.ChoiceID)
		}
		d.RecommendationID = ""
		return nil

	case ActionAdopt:
		i := slices.IndexFunc(h.Pending, func(r hybrid.PolicyRecommendation) bool { return r.ID == d.RecommendationID })
		if i < 0 {
			return fmt.Errorf("recommendation %q is not pending", d.RecommendationID)
		}
		if !budget.Covers(h.Pending[i].ResourceRequirements) {
			return fmt.Errorf("recommendation %q exceeds the spending cap", d.RecommendationID)
		}
		d.EventID, d.ChoiceID = "", ""
		return nil
	}
	return fmt.Errorf("unknown action %q", d.Action)
}

// BuildAction turns a decision into the action to enqueue. Answers given
// while a critical alert is open ask for an immediate tick.
func BuildAction(d *Decision, h *Health, playerID string) (campaign.Action, bool) {
	priority := campaign.PriorityHigh
	if h.Level == LevelCritical {
		priority = campaign.PriorityCritical
	}

	var a campaign.Action
	switch d.Action {
	case ActionResolve:
		i := slices.IndexFunc(h.OpenEvents, func(ev hybrid.EmergentEvent) bool { return ev.ID == d.EventID })
		if i < 0 {
			return campaign.Action{}, false
		}
		if _, ok := h.OpenEvents[i].Choice(d.ChoiceID); !ok {
			return campaign.Action{}, false
		}
		a = campaign.NewAction(playerID, campaign.ResolveEvent{EventID: d.EventID, ChoiceID: d.ChoiceID}, priority)

	case ActionAdopt:
		i := slices.IndexFunc(h.Pending, func(r hybrid.PolicyRecommendation) bool { return r.ID == d.RecommendationID })
		if i < 0 {
			return campaign.Action{}, false
		}
		a = campaign.NewAction(playerID, campaign.AdoptPolicy{RecommendationID: h.Pending[i].ID}, priority)

	default:
		return campaign.Action{}, false
	}
	a.RequiresImmediate = priority == campaign.PriorityCritical
	return a, true
}

// formatSnapshot builds a concise prompt from the snapshot.
func formatSnapshot(snap *Snapshot, h *Health, budget Budget) string {
	var b strings.Builder
	st := snap.State

	fmt.Fprintf(&b, "## Campaign %s (tick %d, %s)\n", snap.CampaignID, st.Tick, h.Level)
	fmt.Fprintf(&b, "Population: %d | Tax rate: %.0f%% | Forces: %d | Tech: %.2f | Standing: %+.2f\n",
		st.Population, st.TaxRate*100, st.Forces, st.TechLevel, st.Standing)
	keys := make([]string, 0, len(st.Resources))
	for k := range st.Resources {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	b.WriteString("Resources (budget this cycle):")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s %d (%d)", k, st.Resources[k], budget[k])
	}
	b.WriteString("\n")
	if len(h.WeakFactors) > 0 {
		fmt.Fprintf(&b, "Weak sentiment factors: %s\n", strings.Join(h.WeakFactors, ", "))
	}
	b.WriteString("\n")

	if res := snap.Results; res != nil && len(res.CrisisAlerts) > 0 {
		b.WriteString("## Crisis Alerts\n")
		for _, a := range res.CrisisAlerts {
			fmt.Fprintf(&b, "- [%s] %s: %s\n", a.Severity, a.Title, a.Description)
		}
		b.WriteString("\n")
	}

	if len(h.OpenEvents) > 0 {
		b.WriteString("## Open Events\n")
		for _, ev := range h.OpenEvents {
			fmt.Fprintf(&b, "- event_id=%s [%s] %s: %s\n", ev.ID, ev.Severity, ev.Title, ev.Description)
			for _, c := range ev.PlayerChoices {
				fmt.Fprintf(&b, "  - choice_id=%s %s (cost %v, net effect %+.2f)\n", c.ID, c.Title, c.Cost, netEffect(c))
			}
		}
		b.WriteString("\n")
	}

	if len(h.Pending) > 0 {
		b.WriteString("## Pending Recommendations\n")
		for _, rec := range h.Pending {
			fmt.Fprintf(&b, "- recommendation_id=%s [%s] %s (cost %v)\n", rec.ID, rec.Priority, rec.Title, rec.ResourceRequirements)
		}
		b.WriteString("\n")
	}
	return b.String()
}
