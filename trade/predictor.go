package trade

import (
	"encoding/json"
	"fmt"
	"os"

	"sentitrade/market"
)

// Predictor estimates the next-period open price from a feature vector. The
// vector's ordering and length are fixed at training time; a mismatch is a
// hard error, never silently padded.
type Predictor interface {
	Predict(features []float64) (float64, error)
	NumFeatures() int
}

// FeatureNames is the feature-vector contract, in order. Vector and every
// trained model follow it.
var FeatureNames = []string{
	"open", "high", "low", "close", "volume",
	"sma_20", "sma_50", "sma_100", "volatility",
	"bollinger_upper", "bollinger_lower", "momentum_5", "sentiment",
}

// Vector flattens a merged row into the model's feature ordering. A nil
// Momentum5 contributes zero, matching how the model was trained on early
// history.
func Vector(r market.MergedRow) []float64 {
	mom := 0.0
	if r.Momentum5 != nil {
		mom = *r.Momentum5
	}
	return []float64{
		r.Open, r.High, r.Low, r.Close, r.Volume,
		r.SMA20, r.SMA50, r.SMA100, r.Volatility,
		r.BollingerUpper, r.BollingerLower, mom, r.Sentiment,
	}
}

// ContractError reports a feature vector that does not match the model's
// expectation.
type ContractError struct {
	Want int
	Got  int
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("feature vector length %d does not match model expectation %d", e.Got, e.Want)
}

// LinearModel is a standardized linear regression: features are scaled with
// the training-time mean and scale, then dotted with the weights.
type LinearModel struct {
	Features  []string  `json:"features"`
	Weights   []float64 `json:"weights"`
	Means     []float64 `json:"means"`
	Scales    []float64 `json:"scales"`
	Intercept float64   `json:"intercept"`
}

// LoadModel reads a LinearModel from a JSON file and validates its shape.
func LoadModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}

	var m LinearModel
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model %q: %w", path, err)
	}
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("invalid model %q: %w", path, err)
	}
	return &m, nil
}

func (m *LinearModel) validate() error {
	n := len(m.Weights)
	if n == 0 {
		return fmt.Errorf("model has no weights")
	}
	if len(m.Features) != n || len(m.Means) != n || len(m.Scales) != n {
		return fmt.Errorf("features/means/scales must all have length %d", n)
	}
	for i, s := range m.Scales {
		if s == 0 {
			return fmt.Errorf("scale for %q is zero", m.Features[i])
		}
	}
	return nil
}

func (m *LinearModel) NumFeatures() int { return len(m.Weights) }

func (m *LinearModel) Predict(features []float64) (float64, error) {
	if len(features) != len(m.Weights) {
		return 0, &ContractError{Want: len(m.Weights), Got: len(features)}
	}

	sum := m.Intercept
	for i, x := range features {
		sum += m.Weights[i] * (x - m.Means[i]) / m.Scales[i]
	}
	return sum, nil
}
