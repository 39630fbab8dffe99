package melody

import (
	"math"
	"math/rand/v2"
	"sync"
)

// Sampler draws codes from a probability distribution after temperature rescaling.
// A Sampler is safe for concurrent use.
type Sampler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSampler wraps rng. A nil rng uses a randomly seeded PCG source.
func NewSampler(rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Sampler{rng: rng}
}

// NewSeededSampler returns a sampler whose draws are reproducible for a given seed.
func NewSeededSampler(seed uint64) *Sampler {
	return NewSampler(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Sample rescales dist by temperature and draws one index from the result.
func (s *Sampler) Sample(dist []float64, temperature float64) (int, error) {
	weights, err := Rescale(dist, temperature)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	r := s.rng.Float64()
	s.mu.Unlock()

	last := -1
	cumulative := 0.0
	for i, w := range weights {
		if w == 0 {
			continue
		}
		last = i
		cumulative += w
		if r < cumulative {
			return i, nil
		}
	}
	// Rounding can leave the cumulative sum just under 1.
	return last, nil
}

// Rescale applies softmax-with-temperature in the log domain:
// exp(log(p)/T) renormalized. Zero-probability entries stay exactly zero.
// T -> 0 approaches arg-max, T = 1 reproduces dist, T -> +Inf approaches
// uniform over the entries with positive mass.
func Rescale(dist []float64, temperature float64) ([]float64, error) {
	if math.IsNaN(temperature) || temperature <= 0 {
		return nil, &InvalidParameterError{Name: "temperature", Value: temperature, Reason: "must be strictly positive"}
	}
	if len(dist) == 0 {
		return nil, &InvalidParameterError{Name: "distribution", Value: dist, Reason: "is empty"}
	}

	logits := make([]float64, len(dist))
	maxLogit := math.Inf(-1)
	argmax := -1
	for i, p := range dist {
		if math.IsNaN(p) || p < 0 {
			return nil, &InvalidParameterError{Name: "distribution", Value: p, Reason: "probabilities must be non-negative numbers"}
		}
		if p == 0 {
			logits[i] = math.Inf(-1)
			continue
		}
		if argmax < 0 || p > dist[argmax] {
			argmax = i
		}
		logits[i] = math.Log(p) / temperature
		if logits[i] > maxLogit {
			maxLogit = logits[i]
		}
	}
	if argmax < 0 {
		return nil, &InvalidParameterError{Name: "distribution", Value: dist, Reason: "has no positive probability mass"}
	}

	weights := make([]float64, len(dist))
	if math.IsInf(maxLogit, -1) {
		// Temperature so small that every log-weight underflowed: the limit is arg-max.
		weights[argmax] = 1
		return weights, nil
	}

	sum := 0.0
	for i, l := range logits {
		if math.IsInf(l, -1) {
			continue
		}
		weights[i] = math.Exp(l - maxLogit)
		sum += weights[i]
	}
	for i := range weights {
		weights[i] /= sum
	}
	return weights, nil
}
