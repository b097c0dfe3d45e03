package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManual_AdvanceFiresInOrder(t *testing.T) {
	m := NewManual()
	var fired []string

	m.AfterFunc(30*time.Millisecond, func() { fired = append(fired, "c") })
	m.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "a") })
	m.AfterFunc(10*time.Millisecond, func() { fired = append(fired, "b") })

	m.Advance(20 * time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, 1, m.Pending())
	assert.Equal(t, 20*time.Millisecond, m.Now())

	m.Advance(10 * time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, fired)
	assert.Equal(t, 0, m.Pending())
}

func TestManual_RearmWithinWindow(t *testing.T) {
	m := NewManual()
	count := 0

	var tick func()
	tick = func() {
		count++
		if count < 5 {
			m.AfterFunc(50*time.Millisecond, tick)
		}
	}
	m.AfterFunc(50*time.Millisecond, tick)

	m.Advance(120 * time.Millisecond)
	assert.Equal(t, 2, count)

	m.RunAll()
	assert.Equal(t, 5, count)
	assert.Equal(t, 250*time.Millisecond, m.Now())
}

func TestManual_Stop(t *testing.T) {
	m := NewManual()
	fired := false

	timer := m.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	m.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestReal_AfterFunc(t *testing.T) {
	done := make(chan struct{})
	Real{}.AfterFunc(time.Millisecond, func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("real timer did not fire")
	}
}
