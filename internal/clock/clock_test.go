package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceFiresInOrder(t *testing.T) {
	clk := NewFake()

	var order []int
	clk.AfterFunc(300*time.Millisecond, func() { order = append(order, 3) })
	clk.AfterFunc(100*time.Millisecond, func() { order = append(order, 1) })
	clk.AfterFunc(200*time.Millisecond, func() { order = append(order, 2) })

	clk.Advance(250 * time.Millisecond)
	assert.Equal(t, []int{1, 2}, order)

	clk.Advance(100 * time.Millisecond)
	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestFakeStopPreventsFire(t *testing.T) {
	clk := NewFake()

	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports already stopped")

	clk.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFakeNestedTimers(t *testing.T) {
	clk := NewFake()

	var fired []string
	clk.AfterFunc(100*time.Millisecond, func() {
		fired = append(fired, "outer")
		clk.AfterFunc(100*time.Millisecond, func() {
			fired = append(fired, "inner")
		})
	})

	clk.Advance(500 * time.Millisecond)
	assert.Equal(t, []string{"outer", "inner"}, fired)
}

func TestDeferredCancelOnSupersede(t *testing.T) {
	clk := NewFake()
	def := NewDeferred(clk)

	count := 0
	def.Arm(500*time.Millisecond, func() { count++ })
	clk.Advance(300 * time.Millisecond)

	// Re-arming supersedes the pending run.
	def.Arm(500*time.Millisecond, func() { count++ })
	clk.Advance(400 * time.Millisecond)
	assert.Equal(t, 0, count)

	clk.Advance(100 * time.Millisecond)
	assert.Equal(t, 1, count)
}

func TestDeferredConcurrentArmCancel(t *testing.T) {
	def := NewDeferred(New())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			def.Arm(time.Millisecond, func() {})
		}
	}()
	for i := 0; i < 200; i++ {
		def.Cancel()
	}
	<-done
	def.Cancel()
}

func TestDeferredCancelIdempotent(t *testing.T) {
	clk := NewFake()
	def := NewDeferred(clk)

	def.Cancel() // nothing armed
	def.Arm(time.Second, func() { t.Fatal("should not fire") })
	def.Cancel()
	def.Cancel()
	clk.Advance(2 * time.Second)
}
