package simulation

import (
	"math"

	"github.com/talgya/hybrid-sim/internal/campaign"
	"github.com/talgya/hybrid-sim/internal/hybrid"
)

// Economy tuning.
const (
	outputPerCapita = 2.0   // GDP units per person at tech level 1
	baseGrowth      = 2.0   // percent per tick
	neutralTaxRate  = 0.15  // tax rate with no growth drag
	stimulusUnit    = 10000 // credits of economy budget per +0.5% growth
	taxYield        = 0.02  // share of taxed GDP collected per tick
	foodPerCapita   = 1.0 / 500
)

// Military tuning.
const (
	readinessDecay = 0.02
	upkeepDivisor  = 10 // credits of upkeep per this many units
)

// advanceEconomy collects income, feeds the population and reports the
// economic picture for the tick.
func advanceEconomy(state *campaign.State, l ledger, drift func(int) float64) hybrid.EconomicAnalytics {
	econEffect := state.EffectTotal("economic")
	popEffect := state.EffectTotal("population")

	stimulus := math.Min(3, float64(l.budget["economy"])/stimulusUnit*0.5)
	growth := baseGrowth + 4*drift(chanGrowth) + 25*econEffect + stimulus - 10*(state.TaxRate-neutralTaxRate)
	unemployment := clamp(6-0.5*(growth-baseGrowth)-5*popEffect+2*drift(chanLabor), 0, 60)
	inflation := 2 + 0.3*math.Max(growth, 0) + float64(l.budget["welfare"])/50000 + drift(chanPrices)

	gdp := float64(state.Population) * outputPerCapita * state.TechLevel * (1 + growth/100)

	trade := state.Standing*1000 + 500*drift(chanTrade)
	if state.Modifiers != nil {
		trade *= 1 + state.Modifiers.TradeEfficiency
	}

	employed := 1 - unemployment/100
	production := map[string]int64{
		campaign.ResourceCredits:   int64(math.Floor(gdp * state.TaxRate * taxYield)),
		campaign.ResourceMaterials: int64(math.Floor(2000 * state.TechLevel * employed * (1 + econEffect))),
		campaign.ResourceEnergy:    int64(math.Floor(1500 * state.TechLevel * (1 + econEffect))),
		campaign.ResourceFood:      int64(math.Floor(2500 * employed * (1 + econEffect))),
	}
	for name, amount := range production {
		state.Resources[name] += amount
	}

	// Feed the population; shortages shrink it, surpluses let it grow.
	eaten := int64(math.Ceil(float64(state.Population) * foodPerCapita))
	if state.Resources[campaign.ResourceFood] >= eaten {
		state.Resources[campaign.ResourceFood] -= eaten
		rate := 0.001 * (1 + popEffect + float64(l.budget["welfare"])/100000)
		state.Population += int64(math.Floor(float64(state.Population) * math.Max(rate, 0)))
	} else {
		state.Resources[campaign.ResourceFood] = 0
		state.Population -= int64(math.Floor(float64(state.Population) * 0.005))
	}

	return hybrid.EconomicAnalytics{
		GDP:                gdp,
		GDPGrowth:          growth,
		Inflation:          inflation,
		Unemployment:       unemployment,
		TradeBalance:       trade,
		ResourceProduction: production,
	}
}

// advanceMilitary pays upkeep and moves readiness toward what the budget and
// morale support.
func advanceMilitary(state *campaign.State, l ledger, drift func(int) float64) hybrid.MilitaryAnalytics {
	upkeep := state.Forces / upkeepDivisor
	if state.Resources[campaign.ResourceCredits] >= upkeep {
		state.Resources[campaign.ResourceCredits] -= upkeep
	} else {
		// Unpaid troops lose readiness on top of the usual decay.
		state.Resources[campaign.ResourceCredits] = 0
		state.Readiness -= 0.05
	}

	readiness := state.Readiness - readinessDecay +
		float64(l.budget["military"])/50000 +
		0.1*state.EffectTotal("military")
	if state.Modifiers != nil {
		readiness += 0.05 * state.Modifiers.MilitaryMorale
	}
	if l.offensive {
		readiness += 0.05
	}
	if l.mobilized > 0 && state.Forces > 0 {
		// Fresh recruits dilute readiness.
		readiness -= 0.1 * float64(l.mobilized) / float64(state.Forces)
	}
	state.Readiness = clamp(readiness, 0, 1)

	threat := clamp(0.3+0.3*drift(chanThreat)-0.2*state.Standing, 0, 1)

	return hybrid.MilitaryAnalytics{
		TotalForces:    state.Forces,
		ReadinessLevel: state.Readiness,
		ThreatLevel:    threat,
	}
}

// advanceResearch progresses every queue and retires finished entries.
// Research queues move at the tick's research efficiency; the others move
// one unit per tick.
func advanceResearch(state *campaign.State, l ledger, drift func(int) float64) hybrid.ResearchAnalytics {
	efficiency := clamp(0.65+float64(l.budget["research"])/40000+state.EffectTotal("research")+0.1*drift(chanResearch), 0, 1)

	completed := 0
	active := state.Queues[:0]
	for _, q := range state.Queues {
		step := 1.0
		if q.Kind == campaign.QueueResearch {
			step = efficiency
		}
		q.Progress = math.Min(q.TotalTime, q.Progress+step)
		if q.Complete() {
			if q.Kind == campaign.QueueResearch {
				completed++
				state.TechLevel += 0.1
			}
			continue
		}
		active = append(active, q)
	}
	state.Queues = active

	open := 0
	for _, q := range state.Queues {
		if q.Kind == campaign.QueueResearch {
			open++
		}
	}

	breakthrough := clamp(0.5*efficiency+0.05*float64(open)+0.15*float64(completed)+0.1*drift(chanResearch), 0, 1)

	return hybrid.ResearchAnalytics{
		TotalProjects:           open,
		CompletedProjects:       completed,
		ResearchEfficiency:      efficiency,
		BreakthroughProbability: breakthrough,
		TechnologyLevel:         state.TechLevel,
	}
}

// advanceDiplomacy applies this tick's overtures to standing.
func advanceDiplomacy(state *campaign.State, l ledger, _ func(int) float64) hybrid.DiplomaticAnalytics {
	adj := l.standingAdj
	if state.Modifiers != nil {
		adj += 0.02 * state.Modifiers.DiplomaticInfluence
	}
	state.Standing = clamp(state.Standing+adj, -1, 1)

	return hybrid.DiplomaticAnalytics{
		ActiveNegotiations: l.overtures,
		Standing:           state.Standing,
	}
}
