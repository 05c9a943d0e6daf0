package cartpole

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodeTerminates(t *testing.T) {
	e := NewEnv(rand.New(rand.NewSource(1)))
	require.NoError(t, e.Reset(7))

	steps := 0
	for !e.Done() {
		obs, ok := e.NextObs().([]float64)
		require.True(t, ok)
		require.Len(t, obs, ObsSize)
		ts, err := e.Step(1)
		require.NoError(t, err)
		assert.Equal(t, ts.Done, e.Done())
		steps++
		require.LessOrEqual(t, steps, MaxSteps())
	}

	_, err := e.Step(0)
	assert.Error(t, err, "stepping a finished episode must fail")
}

func TestResetIsDeterministic(t *testing.T) {
	a := NewEnv(rand.New(rand.NewSource(1)))
	b := NewEnv(rand.New(rand.NewSource(2)))
	require.NoError(t, a.Reset(42))
	require.NoError(t, b.Reset(42))
	assert.Equal(t, a.State, b.State)
	assert.False(t, a.Done())
}

func TestInvalidAction(t *testing.T) {
	e := NewEnv(nil)
	_, err := e.Step(5)
	assert.Error(t, err)
	_, err = e.Step("left")
	assert.Error(t, err)
}

func TestInfo(t *testing.T) {
	info := NewEnv(nil).Info()
	assert.Equal(t, []int{ObsSize}, info.Obs.Shape)
	assert.Equal(t, NumActions, info.Action.Discrete)
}
