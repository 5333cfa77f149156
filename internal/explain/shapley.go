package explain

import (
	"context"
	"hash/fnv"
	"math/rand"

	"github.com/opensource-finance/osprey-risk/internal/domain"
)

// ModelFunc evaluates the model being explained.
type ModelFunc func(ctx context.Context, fv *domain.FeatureVector) (float64, error)

// Attributor assigns each feature a share of f(x) - f(reference).
type Attributor interface {
	Attribute(ctx context.Context, f ModelFunc, x, reference *domain.FeatureVector) (map[string]float64, error)
}

// PermutationShapley estimates Shapley values by sampling feature orderings.
// Along each ordering features are switched from the reference to x one at
// a time, and each feature is credited with the change it causes. Every
// ordering telescopes, so the attributions always sum to f(x) - f(reference).
type PermutationShapley struct {
	Permutations int
}

// Method names the attribution method in explanations.
func (p PermutationShapley) Method() string {
	return "permutation_shapley"
}

// Attribute implements Attributor. The sampled orderings depend only on
// x.TxID, so repeated calls for one transaction agree.
func (p PermutationShapley) Attribute(ctx context.Context, f ModelFunc, x, reference *domain.FeatureVector) (map[string]float64, error) {
	m := p.Permutations
	if m <= 0 {
		m = 16
	}
	names := domain.FeatureNames
	rng := rand.New(rand.NewSource(seed(x.TxID)))

	phi := make(map[string]float64, len(names))
	for _, name := range names {
		phi[name] = 0
	}

	// z carries x's flags so that the last step of every ordering is f(x).
	z := x.Clone()
	for i := 0; i < m; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		for _, name := range names {
			z.Values[name] = reference.Values[name]
		}
		prev, err := f(ctx, z)
		if err != nil {
			return nil, err
		}
		for _, idx := range rng.Perm(len(names)) {
			name := names[idx]
			z.Values[name] = x.Values[name]
			cur, err := f(ctx, z)
			if err != nil {
				return nil, err
			}
			phi[name] += cur - prev
			prev = cur
		}
	}

	for name := range phi {
		phi[name] /= float64(m)
	}
	return phi, nil
}

func seed(txID string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(txID))
	return int64(h.Sum64())
}
