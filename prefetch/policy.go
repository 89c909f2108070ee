package prefetch

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Decision reasons.
const (
	ReasonNoHistory      = "no-history"
	ReasonUnmapped       = "unmapped-artifact"
	ReasonLowConfidence  = "low-confidence"
	ReasonCostExceedsGap = "cost-exceeds-gap"
	ReasonCostFitsGap    = "cost-fits-gap"
	ReasonNeverPrefetch  = "never-prefetch"
)

// Decision is the outcome of one prefetch query. Predicted and Artifact are
// empty when no prediction or no artifact is available.
type Decision struct {
	Current             OperationID
	Predicted           OperationID
	Artifact            string
	EstimatedBuildCost  time.Duration
	EstimatedTimeToNext time.Duration
	Confidence          float64
	ShouldPrefetch      bool
	Reason              string
}

func (d Decision) String() string {
	if d.Predicted == "" {
		return fmt.Sprintf("%s → ? prefetch=%v (%s)", d.Current, d.ShouldPrefetch, d.Reason)
	}
	return fmt.Sprintf("%s → %s [%s] cost=%v gap=%v conf=%.2f prefetch=%v (%s)",
		d.Current, d.Predicted, d.Artifact, d.EstimatedBuildCost, d.EstimatedTimeToNext,
		d.Confidence, d.ShouldPrefetch, d.Reason)
}

// PrefetchPolicy decides whether the artifact serving the predicted next
// operation should be rebuilt now. Implementations must not block on the store.
type PrefetchPolicy interface {
	ShouldPrefetch(current OperationID, timeToNext time.Duration) Decision
}

// CostEstimator returns the expected rebuild duration of an artifact.
type CostEstimator interface {
	CostOf(artifact string) time.Duration
}

// PolicyConfig holds the tunables of CostGapPolicy.
type PolicyConfig struct {
	// SafetyMargin is added to the build cost before comparing with the gap.
	SafetyMargin time.Duration // default: 0

	// MinConfidence gates the decision when > 0. Confidence is always reported.
	MinConfidence float64 // default: 0 (not gating), range: [0, 1]
}

// DefaultPolicyConfig returns a config that prefetches whenever the cached
// cost is strictly below the gap, regardless of confidence.
func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{}
}

// CostGapPolicy prefetches when the predicted artifact can be rebuilt before
// the next operation is expected to arrive:
//
//	cost(artifact(predictNext(current))) + SafetyMargin < timeToNext
//
// The transition model is read through an atomic pointer so a model rebuilt
// from a longer history can be swapped in without pausing decisions.
type CostGapPolicy struct {
	model    atomic.Pointer[TransitionModel]
	registry *ArtifactRegistry
	costs    CostEstimator
	config   PolicyConfig
}

// NewCostGapPolicy creates a cost-vs-gap prefetch policy.
func NewCostGapPolicy(model *TransitionModel, registry *ArtifactRegistry, costs CostEstimator, cfg PolicyConfig) *CostGapPolicy {
	p := &CostGapPolicy{registry: registry, costs: costs, config: cfg}
	p.model.Store(model)
	return p
}

// SetModel replaces the transition model used by subsequent decisions.
func (p *CostGapPolicy) SetModel(m *TransitionModel) {
	p.model.Store(m)
}

// Model returns the transition model currently in use.
func (p *CostGapPolicy) Model() *TransitionModel {
	return p.model.Load()
}

// ShouldPrefetch implements PrefetchPolicy.
func (p *CostGapPolicy) ShouldPrefetch(current OperationID, timeToNext time.Duration) Decision {
	d := Decision{Current: current, EstimatedTimeToNext: timeToNext}
	defer func() { logrus.Debugf("decision: %s", d) }()
	model := p.model.Load()

	predicted, ok := model.PredictNext(current)
	if !ok {
		d.Reason = ReasonNoHistory
		return d
	}
	d.Predicted = predicted
	d.Confidence = model.Confidence(current, predicted)

	artifact, ok := p.registry.Lookup(predicted)
	if !ok {
		d.Reason = ReasonUnmapped
		return d
	}
	d.Artifact = artifact
	d.EstimatedBuildCost = p.costs.CostOf(artifact)

	if p.config.MinConfidence > 0 && d.Confidence < p.config.MinConfidence {
		d.Reason = ReasonLowConfidence
		return d
	}
	if d.EstimatedBuildCost+p.config.SafetyMargin < timeToNext {
		d.ShouldPrefetch = true
		d.Reason = ReasonCostFitsGap
	} else {
		d.Reason = ReasonCostExceedsGap
	}
	return d
}

// NeverPrefetch declines every prefetch. It is the baseline in replay runs.
type NeverPrefetch struct{}

// ShouldPrefetch implements PrefetchPolicy.
func (NeverPrefetch) ShouldPrefetch(current OperationID, timeToNext time.Duration) Decision {
	return Decision{Current: current, EstimatedTimeToNext: timeToNext, Reason: ReasonNeverPrefetch}
}

// ValidPrefetchPolicies is the set of recognized prefetch policy names.
// Shared by Bundle.Validate() and NewPrefetchPolicy().
var ValidPrefetchPolicies = map[string]bool{"": true, "cost-gap": true, "never": true}

// IsValidPrefetchPolicy returns true if name is a recognized policy name.
func IsValidPrefetchPolicy(name string) bool {
	return ValidPrefetchPolicies[name]
}

// NewPrefetchPolicy creates a prefetch policy by name.
// An empty string defaults to cost-gap. Panics on unrecognized names.
func NewPrefetchPolicy(name string, model *TransitionModel, registry *ArtifactRegistry, costs CostEstimator, cfg PolicyConfig) PrefetchPolicy {
	if !IsValidPrefetchPolicy(name) {
		panic(fmt.Sprintf("unknown prefetch policy %q", name))
	}
	switch name {
	case "", "cost-gap":
		return NewCostGapPolicy(model, registry, costs, cfg)
	case "never":
		return NeverPrefetch{}
	default:
		panic(fmt.Sprintf("unhandled prefetch policy %q", name))
	}
}
