// Package models discovers trained prediction artifacts on disk and exposes
// them through an immutable registry with a deterministic fallback chain.
// Artifacts are parameter exports produced by the offline training pipeline;
// serving only evaluates them, it never trains.
package models

import (
	"errors"
	"fmt"

	"github.com/epitrack/epitrack/internal/domain"
)

// FeatureSize is the length of the feature vector the prediction engine
// feeds every artifact: seven daily lags (t-1 .. t-7), the 7-day mean and
// the day-over-day growth rate. Artifacts may use a prefix of it.
const FeatureSize = 9

// ErrInference signals a malformed feature vector or a corrupt artifact at
// evaluation time. Callers treat it like a lookup miss and fall through to
// synthetic generation.
var ErrInference = errors.New("model inference failed")

// Artifact evaluates one trained predictor for a single day.
type Artifact interface {
	Infer(features []float64) (float64, error)
}

// artifactFile is the on-disk JSON schema. Exactly one parameter block is
// set, matching the kind.
type artifactFile struct {
	Kind         string               `json:"kind"`
	Metrics      domain.ModelMetrics  `json:"metrics"`
	Coefficients *coefficientParams   `json:"coefficients,omitempty"`
	Ensemble     *ensembleParams      `json:"ensemble,omitempty"`
	Recurrent    *recurrentParams     `json:"recurrent,omitempty"`
}

// coefficientParams backs the linear family (linear, ridge, lasso).
type coefficientParams struct {
	Intercept float64   `json:"intercept"`
	Weights   []float64 `json:"weights"`
}

type coefficientModel struct {
	params coefficientParams
}

func (m *coefficientModel) Infer(features []float64) (float64, error) {
	if len(m.params.Weights) > len(features) {
		return 0, fmt.Errorf("%w: %d weights but %d features", ErrInference, len(m.params.Weights), len(features))
	}
	sum := m.params.Intercept
	for i, w := range m.params.Weights {
		sum += w * features[i]
	}
	return sum, nil
}

// TreeNode is one node of an exported decision tree. Leaf nodes set Leaf;
// interior nodes route on features[Feature] <= Threshold.
type TreeNode struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      *TreeNode `json:"left,omitempty"`
	Right     *TreeNode `json:"right,omitempty"`
	Leaf      *float64  `json:"leaf,omitempty"`
}

func (n *TreeNode) eval(features []float64) (float64, error) {
	node := n
	for {
		if node == nil {
			return 0, fmt.Errorf("%w: truncated tree", ErrInference)
		}
		if node.Leaf != nil {
			return *node.Leaf, nil
		}
		if node.Feature < 0 || node.Feature >= len(features) {
			return 0, fmt.Errorf("%w: feature index %d out of range", ErrInference, node.Feature)
		}
		if features[node.Feature] <= node.Threshold {
			node = node.Left
		} else {
			node = node.Right
		}
	}
}

// ensembleParams backs the tree families. Forests average their trees;
// boosted ensembles (gradient_boosting, xgboost) sum scaled residual trees
// on top of a base score.
type ensembleParams struct {
	BaseScore    float64     `json:"base_score"`
	LearningRate float64     `json:"learning_rate"`
	Trees        []*TreeNode `json:"trees"`
}

type ensembleModel struct {
	params  ensembleParams
	average bool
}

func (m *ensembleModel) Infer(features []float64) (float64, error) {
	if len(m.params.Trees) == 0 {
		return 0, fmt.Errorf("%w: empty ensemble", ErrInference)
	}
	var sum float64
	for _, tree := range m.params.Trees {
		v, err := tree.eval(features)
		if err != nil {
			return 0, err
		}
		sum += v
	}
	if m.average {
		return sum / float64(len(m.params.Trees)), nil
	}
	rate := m.params.LearningRate
	if rate == 0 {
		rate = 1
	}
	return m.params.BaseScore + rate*sum, nil
}

// recurrentParams backs the deep-learning kinds (lstm, enhanced). Training
// distills the network into an autoregressive surrogate over the last
// Window daily values; that is what serving evaluates.
type recurrentParams struct {
	Window  int       `json:"window"`
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

type recurrentModel struct {
	params recurrentParams
}

func (m *recurrentModel) Infer(features []float64) (float64, error) {
	w := m.params.Window
	if w <= 0 || w > len(m.params.Weights) {
		return 0, fmt.Errorf("%w: window %d with %d weights", ErrInference, w, len(m.params.Weights))
	}
	if w > len(features) {
		return 0, fmt.Errorf("%w: window %d but %d features", ErrInference, w, len(features))
	}
	sum := m.params.Bias
	for i := 0; i < w; i++ {
		sum += m.params.Weights[i] * features[i]
	}
	return sum, nil
}

// buildArtifact materializes the predictor declared by an artifact file.
func buildArtifact(file artifactFile, kind domain.ModelKind) (Artifact, error) {
	switch kind {
	case domain.KindLinearRegression, domain.KindRidgeRegression, domain.KindLassoRegression:
		if file.Coefficients == nil {
			return nil, fmt.Errorf("artifact %s missing coefficients block", kind)
		}
		return &coefficientModel{params: *file.Coefficients}, nil
	case domain.KindRandomForest, domain.KindGradientBoosting, domain.KindXGBoost:
		if file.Ensemble == nil {
			return nil, fmt.Errorf("artifact %s missing ensemble block", kind)
		}
		return &ensembleModel{params: *file.Ensemble, average: kind == domain.KindRandomForest}, nil
	case domain.KindLSTM, domain.KindEnhanced:
		if file.Recurrent == nil {
			return nil, fmt.Errorf("artifact %s missing recurrent block", kind)
		}
		return &recurrentModel{params: *file.Recurrent}, nil
	default:
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}
}
