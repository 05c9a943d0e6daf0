package worker

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"

	"distributed-actor-rl/internal/cartpole"
)

var ErrBadWeights = errors.New("malformed policy weights")

type PolicyWeights struct {
	W  [][]float64 `json:"w"`  // shape: [2][4]
	B  []float64   `json:"b"`  // shape: [2]
	VW []float64   `json:"vw"` // shape: [4]
	VB float64     `json:"vb"`
}

func DefaultWeights() PolicyWeights {
	return PolicyWeights{
		W: [][]float64{
			{0.01, 0.01, 0.01, 0.01},
			{-0.01, -0.01, -0.01, -0.01},
		},
		B:  []float64{0, 0},
		VW: []float64{0, 0, 0, 0},
		VB: 0,
	}
}

// Validate checks the weight shapes against the cart-pole spaces.
func (w PolicyWeights) Validate() error {
	if len(w.W) != cartpole.NumActions || len(w.B) != cartpole.NumActions {
		return fmt.Errorf("%w: want %d action rows, got w=%d b=%d", ErrBadWeights, cartpole.NumActions, len(w.W), len(w.B))
	}
	for i, row := range w.W {
		if len(row) != cartpole.ObsSize {
			return fmt.Errorf("%w: row %d has %d columns", ErrBadWeights, i, len(row))
		}
	}
	if len(w.VW) != cartpole.ObsSize {
		return fmt.Errorf("%w: value head has %d weights", ErrBadWeights, len(w.VW))
	}
	return nil
}

// Policy is a linear softmax policy with a linear value head.
type Policy struct {
	Weights PolicyWeights
	Version int64

	src rand.Source
}

func NewPolicy(weights PolicyWeights, src rand.Source) *Policy {
	return &Policy{
		Weights: weights,
		src:     src,
	}
}

// Action returns chosen action, log-probability, and value estimate
func (p *Policy) Action(state []float64) (int, float64, float64) {
	logProbs := p.logProbs(state)
	probs := make([]float64, len(logProbs))
	for i, lp := range logProbs {
		probs[i] = math.Exp(lp)
	}

	choice, ok := sampleuv.NewWeighted(probs, p.src).Take()
	if !ok {
		choice = len(probs) - 1
	}
	value := p.Weights.VB + floats.Dot(p.Weights.VW, state)
	return choice, logProbs[choice], value
}

// Probabilities returns the action distribution for state.
func (p *Policy) Probabilities(state []float64) []float64 {
	probs := p.logProbs(state)
	for i, lp := range probs {
		probs[i] = math.Exp(lp)
	}
	return probs
}

func (p *Policy) logProbs(state []float64) []float64 {
	logits := make([]float64, len(p.Weights.B))
	for i := range logits {
		logits[i] = p.Weights.B[i] + floats.Dot(p.Weights.W[i], state)
	}
	floats.AddConst(-floats.LogSumExp(logits), logits)
	return logits
}
