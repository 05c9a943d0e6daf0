package cartpole

import (
	"fmt"
	"math"
	"math/rand"

	"distributed-actor-rl/internal/env"
)

const (
	gravity        = 9.81
	massCart       = 1.0
	massPole       = 0.1
	length         = 0.5
	totalMass      = massCart + massPole
	poleMassLength = massPole * length
	forceMax       = 10.0
	tau            = 0.02

	xThreshold     = 2.4
	thetaThreshold = 12.0 * math.Pi / 180.0
	maxSteps       = 500

	// ObsSize is the length of the observation vector.
	ObsSize = 4
	// NumActions is the number of discrete actions (push left, push right).
	NumActions = 2
)

type State struct {
	X        float64 `json:"x"`
	XDot     float64 `json:"x_dot"`
	Theta    float64 `json:"theta"`
	ThetaDot float64 `json:"theta_dot"`
}

// Vector returns the observation layout handed to agents.
func (s State) Vector() []float64 {
	return []float64{s.X, s.XDot, s.Theta, s.ThetaDot}
}

// Env is the cart-pole physics simulation. It implements env.Manager with
// []float64 observations and int actions.
type Env struct {
	State State
	Steps int
	Rand  *rand.Rand

	done bool
}

var _ env.Manager = (*Env)(nil)

func NewEnv(rng *rand.Rand) *Env {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	e := &Env{Rand: rng}
	e.reset()
	return e
}

// Reset reseeds the simulation and starts a new episode.
func (e *Env) Reset(seed int64) error {
	e.Rand.Seed(seed)
	e.reset()
	return nil
}

func (e *Env) reset() {
	e.State = State{
		X:        e.Rand.Float64()*0.1 - 0.05,
		XDot:     e.Rand.Float64()*0.1 - 0.05,
		Theta:    e.Rand.Float64()*0.1 - 0.05,
		ThetaDot: e.Rand.Float64()*0.1 - 0.05,
	}
	e.Steps = 0
	e.done = false
}

func (e *Env) NextObs() env.Observation {
	return e.State.Vector()
}

func (e *Env) Done() bool {
	return e.done
}

func (e *Env) Step(action env.Action) (env.Timestep, error) {
	a, ok := action.(int)
	if !ok || a < 0 || a >= NumActions {
		return env.Timestep{}, fmt.Errorf("cartpole: invalid action %v", action)
	}
	if e.done {
		return env.Timestep{}, fmt.Errorf("cartpole: step after episode end")
	}
	reward, done := e.advance(a)
	e.done = done
	return env.Timestep{
		Obs:    e.State.Vector(),
		Reward: reward,
		Done:   done,
		Info:   map[string]any{"steps": e.Steps},
	}, nil
}

func (e *Env) advance(action int) (float64, bool) {
	force := forceMax
	if action == 0 {
		force = -forceMax
	}

	x := e.State.X
	xDot := e.State.XDot
	theta := e.State.Theta
	thetaDot := e.State.ThetaDot

	cosTheta := math.Cos(theta)
	sinTheta := math.Sin(theta)

	temp := (force + poleMassLength*thetaDot*thetaDot*sinTheta) / totalMass
	thetaAcc := (gravity*sinTheta - cosTheta*temp) / (length * (4.0/3.0 - massPole*cosTheta*cosTheta/totalMass))
	xAcc := temp - poleMassLength*thetaAcc*cosTheta/totalMass
	x += tau * xDot
	xDot += tau * xAcc
	theta += tau * thetaDot
	thetaDot += tau * thetaAcc

	e.State = State{
		X:        x,
		XDot:     xDot,
		Theta:    theta,
		ThetaDot: thetaDot,
	}
	e.Steps++

	done := x < -xThreshold || x > xThreshold || theta < -thetaThreshold || theta > thetaThreshold || e.Steps >= maxSteps
	reward := 1.0
	if done && e.Steps < maxSteps {
		reward = 0.0
	}
	return reward, done
}

func (e *Env) Info() env.Info {
	return env.Info{
		Obs: env.ElementInfo{
			Name:  "cartpole_state",
			Shape: []int{ObsSize},
			Low:   []float64{-xThreshold, -math.MaxFloat32, -thetaThreshold, -math.MaxFloat32},
			High:  []float64{xThreshold, math.MaxFloat32, thetaThreshold, math.MaxFloat32},
		},
		Action: env.ElementInfo{
			Name:     "push",
			Shape:    []int{1},
			Discrete: NumActions,
		},
	}
}

func MaxSteps() int {
	return maxSteps
}
