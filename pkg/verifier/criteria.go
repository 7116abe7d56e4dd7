package verifier

import (
	"fmt"
	"slices"

	"github.com/siwa-id/siwa-go/pkg/siwa"
)

// Criteria are optional checks applied to the agent's registry profile
// after ownership has been established. Checks run in a fixed order -
// active flag, services, trust models, reputation, custom predicate -
// and the first failure decides the result code.
type Criteria struct {
	// RequireActive rejects agents whose profile is not marked active.
	RequireActive bool

	// RequiredServices must all appear in the profile's service list.
	RequiredServices []string

	// RequiredTrustModels must all appear in the profile's trust models.
	RequiredTrustModels []string

	// MinReputationScore, when non-nil, is the minimum accepted score.
	MinReputationScore *float64

	// MinFeedbackCount, when non-nil, is the minimum accepted feedback
	// count backing the score.
	MinFeedbackCount *int

	// Custom is an arbitrary final predicate over the profile.
	Custom func(profile *siwa.AgentProfile) bool
}

// evaluate returns the first failing code, or "" if all checks pass.
func (c *Criteria) evaluate(profile *siwa.AgentProfile) (siwa.ErrorCode, string) {
	if c.RequireActive && !profile.Active {
		return siwa.CodeAgentNotActive, "agent is not active"
	}

	for _, service := range c.RequiredServices {
		if !slices.Contains(profile.Services, service) {
			return siwa.CodeMissingService, fmt.Sprintf("agent does not provide required service %q", service)
		}
	}

	for _, model := range c.RequiredTrustModels {
		if !slices.Contains(profile.TrustModels, model) {
			return siwa.CodeMissingTrustModel, fmt.Sprintf("agent does not support required trust model %q", model)
		}
	}

	if c.MinReputationScore != nil && profile.ReputationScore < *c.MinReputationScore {
		return siwa.CodeLowReputation, fmt.Sprintf("reputation score %.2f below required %.2f", profile.ReputationScore, *c.MinReputationScore)
	}
	if c.MinFeedbackCount != nil && profile.FeedbackCount < *c.MinFeedbackCount {
		return siwa.CodeLowReputation, fmt.Sprintf("feedback count %d below required %d", profile.FeedbackCount, *c.MinFeedbackCount)
	}

	if c.Custom != nil && !c.Custom(profile) {
		return siwa.CodeCustomCheckFailed, "custom check rejected the agent"
	}

	return "", ""
}
