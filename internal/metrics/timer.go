package metrics

import "time"

// Timer measures the wall-clock duration of a block of work.
//
// A Timer keeps only the last measurement, so one instance must not be
// shared between overlapping measurements.
type Timer struct {
	start time.Time
	last  time.Duration
}

func NewTimer() *Timer {
	return &Timer{}
}

// Start begins a measurement and returns the function that ends it.
// Intended to be deferred:
//
//	defer t.Start()()
func (t *Timer) Start() func() {
	t.start = time.Now()
	return t.stop
}

func (t *Timer) stop() {
	t.last = time.Since(t.start)
}

// Time runs fn and records its duration, including when fn returns an
// error or panics.
func (t *Timer) Time(fn func() error) error {
	defer t.Start()()
	return fn()
}

// Value returns the last measured duration in seconds.
func (t *Timer) Value() float64 {
	return t.last.Seconds()
}
