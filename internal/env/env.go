// Package env defines what the actor needs from an environment.
package env

// Observation is whatever the environment hands to the agent. Concrete
// environments document their own layout.
type Observation any

// Action is the agent's decision applied to the environment.
type Action any

// Timestep is the environment feedback for one step.
type Timestep struct {
	Obs    Observation    `json:"obs"`
	Reward float64        `json:"reward"`
	Done   bool           `json:"done"`
	Info   map[string]any `json:"info,omitempty"`
}

// ElementInfo describes one side of the agent/environment boundary, e.g.
// the observation or the action space.
type ElementInfo struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Low   []float64 `json:"low,omitempty"`
	High  []float64 `json:"high,omitempty"`
	// Discrete is the number of choices for categorical elements, 0 otherwise.
	Discrete int `json:"discrete,omitempty"`
}

// Info groups the element descriptions of an environment.
type Info struct {
	Obs    ElementInfo `json:"obs"`
	Action ElementInfo `json:"action"`
}

// Manager drives one environment instance on behalf of an actor.
//
// All methods are called from the actor's goroutine only.
type Manager interface {
	// NextObs returns the observation the agent should act on.
	NextObs() Observation
	// Step applies action and returns the resulting timestep.
	Step(action Action) (Timestep, error)
	// Done reports whether the current episode has finished.
	Done() bool
	// Reset starts a new episode with the given seed.
	Reset(seed int64) error
	Info() Info
}
