package ensemble

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// Artifact is the serialized form of a trained model.
type Artifact struct {
	Kind    string          `json:"kind"`
	Version string          `json:"version,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type celParams struct {
	Expression string `json:"expression"`
}

// LoadArtifact builds a model from an artifact.
func LoadArtifact(a *Artifact) (*Model, error) {
	if a == nil {
		return nil, fmt.Errorf("%w: artifact is required", domain.ErrModelValidation)
	}

	var scorer Scorer
	switch a.Kind {
	case KindHeuristicAnomaly:
		scorer = HeuristicAnomaly{}

	case KindHeuristicClassifier:
		scorer = HeuristicClassifier{}

	case KindLogistic:
		var l Logistic
		if err := decodeParams(a.Params, &l); err != nil {
			return nil, err
		}
		if err := checkFeatureNames(l.Coefficients); err != nil {
			return nil, err
		}
		scorer = &l

	case KindZScoreAnomaly:
		var z ZScoreAnomaly
		if err := decodeParams(a.Params, &z); err != nil {
			return nil, err
		}
		if len(z.Weights) == 0 {
			return nil, fmt.Errorf("%w: zscore_anomaly needs weights", domain.ErrModelValidation)
		}
		if err := checkFeatureNames(z.Weights); err != nil {
			return nil, err
		}
		for name, w := range z.Weights {
			if w < 0 {
				return nil, fmt.Errorf("%w: negative weight for %s", domain.ErrModelValidation, name)
			}
		}
		scorer = &z

	case KindCEL:
		var p celParams
		if err := decodeParams(a.Params, &p); err != nil {
			return nil, err
		}
		c, err := NewCELScorer(p.Expression)
		if err != nil {
			return nil, err
		}
		scorer = c

	default:
		return nil, fmt.Errorf("%w: unknown model kind %q", domain.ErrModelValidation, a.Kind)
	}

	return NewModel(a.Kind, a.Version, scorer), nil
}

// ParseArtifact decodes a JSON artifact and builds its model.
func ParseArtifact(data []byte) (*Model, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: malformed artifact: %v", domain.ErrModelValidation, err)
	}
	return LoadArtifact(&a)
}

// LoadArtifactFile reads and builds an artifact from disk.
func LoadArtifactFile(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	return ParseArtifact(data)
}

// DefaultModel returns the built-in heuristic model for role.
func DefaultModel(role domain.ModelRole) *Model {
	if role == domain.RoleUnsupervised {
		return NewModel(KindHeuristicAnomaly, "1.0.0", HeuristicAnomaly{})
	}
	return NewModel(KindHeuristicClassifier, "1.0.0", HeuristicClassifier{})
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("%w: params are required", domain.ErrModelValidation)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: malformed params: %v", domain.ErrModelValidation, err)
	}
	return nil
}

func checkFeatureNames(m map[string]float64) error {
	for name := range m {
		if _, ok := domain.FeatureDefaults[name]; !ok {
			return fmt.Errorf("%w: unknown feature %q", domain.ErrModelValidation, name)
		}
	}
	return nil
}
