package hybrid

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Rules holds every threshold the integrator evaluates. DefaultRules matches
// the documented game balance; a rules file may override individual values.
type Rules struct {
	Narrative struct {
		StrongGrowthGDP       float64 `yaml:"strong_growth_gdp"`
		ContractionGDP        float64 `yaml:"contraction_gdp"`
		ProductionAttribution float64 `yaml:"production_attribution"`
		HighReadiness         float64 `yaml:"high_readiness"`
		TaxComplianceShift    float64 `yaml:"tax_compliance_shift"`
		FeedbackLoopGDP       float64 `yaml:"feedback_loop_gdp"`
		DeterrentReadiness    float64 `yaml:"deterrent_readiness"`
		SummaryThreshold      float64 `yaml:"summary_threshold"`
	} `yaml:"narrative"`

	Events struct {
		CrisisGDP               float64 `yaml:"crisis_gdp"`
		BreakthroughProbability float64 `yaml:"breakthrough_probability"`
		UnrestTaxCompliance     float64 `yaml:"unrest_tax_compliance"`
		OpportunityReadiness    float64 `yaml:"opportunity_readiness"`
	} `yaml:"events"`

	Alerts struct {
		EconomicGDP          float64 `yaml:"economic_gdp"`
		EconomicUnemployment float64 `yaml:"economic_unemployment"`
		SocialTaxCompliance  float64 `yaml:"social_tax_compliance"`
	} `yaml:"alerts"`

	Recommendations struct {
		Unemployment       float64 `yaml:"unemployment"`
		Readiness          float64 `yaml:"readiness"`
		ResearchEfficiency float64 `yaml:"research_efficiency"`
	} `yaml:"recommendations"`
}

// DefaultRules returns the standard thresholds.
func DefaultRules() Rules {
	var r Rules

	r.Narrative.StrongGrowthGDP = 3
	r.Narrative.ContractionGDP = -2
	r.Narrative.ProductionAttribution = 0.1
	r.Narrative.HighReadiness = 0.8
	r.Narrative.TaxComplianceShift = 0.2
	r.Narrative.FeedbackLoopGDP = 5
	r.Narrative.DeterrentReadiness = 0.7
	r.Narrative.SummaryThreshold = 0.05

	r.Events.CrisisGDP = -5
	r.Events.BreakthroughProbability = 0.8
	r.Events.UnrestTaxCompliance = -0.3
	r.Events.OpportunityReadiness = 0.8

	r.Alerts.EconomicGDP = -10
	r.Alerts.EconomicUnemployment = 20
	r.Alerts.SocialTaxCompliance = -0.4

	r.Recommendations.Unemployment = 10
	r.Recommendations.Readiness = 0.5
	r.Recommendations.ResearchEfficiency = 0.6

	return r
}

// LoadRules reads a YAML rules file on top of DefaultRules. Keys missing from
// the file keep their default value.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return rules, fmt.Errorf("read rules: %w", err)
	}
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return rules, fmt.Errorf("parse rules %s: %w", path, err)
	}
	return rules, nil
}
