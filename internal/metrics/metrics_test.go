package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerMeasuresBlock(t *testing.T) {
	timer := NewTimer()
	err := timer.Time(func() error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, timer.Value(), 0.005)
}

func TestTimerOnErrorAndPanic(t *testing.T) {
	timer := NewTimer()
	boom := errors.New("boom")
	err := timer.Time(func() error {
		time.Sleep(time.Millisecond)
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Greater(t, timer.Value(), 0.0)

	panicking := NewTimer()
	assert.Panics(t, func() {
		_ = panicking.Time(func() error {
			time.Sleep(time.Millisecond)
			panic("stage failed")
		})
	})
	assert.Greater(t, panicking.Value(), 0.0)
}

func TestTimerNestedOrdering(t *testing.T) {
	outer, inner := NewTimer(), NewTimer()
	_ = outer.Time(func() error {
		return inner.Time(func() error {
			time.Sleep(2 * time.Millisecond)
			return nil
		})
	})
	assert.GreaterOrEqual(t, inner.Value(), 0.0)
	assert.GreaterOrEqual(t, outer.Value(), inner.Value())
}

func TestRecordRegister(t *testing.T) {
	r := NewVariableRecord(10)
	require.NoError(t, r.Register("agent_time"))
	err := r.Register("agent_time")
	assert.ErrorIs(t, err, ErrDuplicateVariable)
	assert.Equal(t, []string{"agent_time"}, r.Names())
}

func TestRecordUnknownVariable(t *testing.T) {
	r := NewVariableRecord(10)
	assert.ErrorIs(t, r.Update(map[string]float64{"x": 1}), ErrUnknownVariable)

	require.NoError(t, r.Register("a"))
	err := r.Update(map[string]float64{"a": 1, "b": 2})
	assert.ErrorIs(t, err, ErrUnknownVariable)
	// rejected updates leave registered variables untouched
	assert.Equal(t, 0, r.Len("a"))
}

func TestRecordRollingWindow(t *testing.T) {
	r := NewVariableRecord(3)
	require.NoError(t, r.Register("a"))
	for _, v := range []float64{1, 2, 3, 4, 5} {
		require.NoError(t, r.Update(map[string]float64{"a": v}))
	}
	mean, err := r.Mean("a")
	require.NoError(t, err)
	assert.InDelta(t, 4.0, mean, 1e-9)
	assert.Equal(t, 3, r.Len("a"))

	// reading does not reset
	again, _ := r.Mean("a")
	assert.Equal(t, mean, again)
}

func TestRecordSummaryText(t *testing.T) {
	r := NewVariableRecord(2)
	assert.Equal(t, "", r.SummaryText())
	require.NoError(t, r.Register("env_time"))
	require.NoError(t, r.Register("agent_time"))
	require.NoError(t, r.Update(map[string]float64{"env_time": 0.5}))

	text := r.SummaryText()
	assert.Contains(t, text, "env_time: avg=0.500000")
	assert.Contains(t, text, "agent_time: avg=0.000000")
	assert.Less(t, strings.Index(text, "env_time"), strings.Index(text, "agent_time"))
}

func TestRecordPlot(t *testing.T) {
	r := NewVariableRecord(4)
	require.NoError(t, r.Register("a"))
	require.NoError(t, r.Register("b"))
	for i := 0; i < 10; i++ {
		require.NoError(t, r.Update(map[string]float64{"a": float64(i), "b": float64(10 - i)}))
	}
	file := filepath.Join(t.TempDir(), "metrics.png")
	require.NoError(t, r.Plot("test", file))
	info, err := os.Stat(file)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}
