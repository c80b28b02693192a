package ai

import (
	"fmt"
	"strings"

	"github.com/noah-isme/labgrade-api/pkg/grading"
)

// Provider names accepted by NewPredictor.
const (
	ProviderOpenAI    = "openai"
	ProviderHeuristic = "heuristic"
)

// Config selects and configures a grade predictor.
type Config struct {
	Provider        string
	OpenAI          OpenAIConfig
	FallbackWeights grading.Weights
}

// NewPredictor builds the predictive policy named by cfg.Provider. The
// heuristic provider needs no credentials and is the default.
func NewPredictor(cfg Config) (grading.PredictivePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case ProviderOpenAI:
		predictor, err := NewOpenAIPredictor(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return predictor, nil
	case "", ProviderHeuristic:
		weights := cfg.FallbackWeights
		if weights == (grading.Weights{}) {
			weights = grading.DefaultWeights()
		}
		return grading.NewTrendPolicy(weights), nil
	default:
		return nil, fmt.Errorf("unknown ai provider %q", cfg.Provider)
	}
}

// ProviderName reports which backend serves a policy.
func ProviderName(policy grading.PredictivePolicy) string {
	switch policy.(type) {
	case *OpenAIPredictor:
		return ProviderOpenAI
	case *grading.TrendPolicy:
		return ProviderHeuristic
	default:
		return "unknown"
	}
}
