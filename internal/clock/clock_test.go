package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestVirtualEveryAndCancel(t *testing.T) {
	v := NewVirtual(epoch)
	n := 0
	cancel := v.Every(500*time.Millisecond, func() { n++ })

	v.Advance(499 * time.Millisecond)
	assert.Equal(t, 0, n)
	v.Advance(time.Millisecond)
	assert.Equal(t, 1, n)
	v.Advance(2 * time.Second)
	assert.Equal(t, 5, n)
	assert.Equal(t, epoch.Add(2500*time.Millisecond), v.Now())

	cancel()
	cancel()
	v.Advance(time.Minute)
	assert.Equal(t, 5, n)
	assert.Equal(t, 0, v.Pending())
}

func TestVirtualAfterFiresOnce(t *testing.T) {
	v := NewVirtual(epoch)
	var at []time.Time
	v.After(2*time.Second, func() { at = append(at, v.Now()) })
	v.Advance(10 * time.Second)
	require.Len(t, at, 1)
	assert.Equal(t, epoch.Add(2*time.Second), at[0])
}

func TestVirtualOrderingAndNestedScheduling(t *testing.T) {
	v := NewVirtual(epoch)
	var order []string
	v.After(time.Second, func() {
		order = append(order, "a")
		v.After(time.Second, func() { order = append(order, "c") })
	})
	v.After(time.Second, func() { order = append(order, "b") })
	v.After(3*time.Second, func() { order = append(order, "d") })

	v.Advance(5 * time.Second)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
}

func TestVirtualCancelFromCallback(t *testing.T) {
	v := NewVirtual(epoch)
	n := 0
	var cancel CancelFunc
	cancel = v.Every(time.Second, func() {
		n++
		if n == 3 {
			cancel()
		}
	})
	v.Advance(10 * time.Second)
	assert.Equal(t, 3, n)
}

func TestVirtualCancelledPeerDoesNotFire(t *testing.T) {
	v := NewVirtual(epoch)
	fired := false
	var cancelB CancelFunc
	v.After(time.Second, func() { cancelB() })
	cancelB = v.After(time.Second, func() { fired = true })
	v.Advance(time.Second)
	assert.False(t, fired)
}

func TestLoopRunsCallbacksSerially(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLoop()
	go l.Run(ctx)

	ticks := make(chan struct{}, 10)
	stop := l.Every(5*time.Millisecond, func() { ticks <- struct{}{} })
	for i := 0; i < 3; i++ {
		select {
		case <-ticks:
		case <-time.After(2 * time.Second):
			t.Fatal("ticker did not fire")
		}
	}
	stop()

	fired := make(chan struct{})
	l.After(5*time.Millisecond, func() { close(fired) })
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("after did not fire")
	}

	value := 0
	require.True(t, l.Do(ctx, func() { value = 42 }))
	assert.Equal(t, 42, value)
}

func TestLoopAfterCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l := NewLoop()
	go l.Run(ctx)

	fired := make(chan struct{}, 1)
	stop := l.After(20*time.Millisecond, func() { fired <- struct{}{} })
	stop()
	select {
	case <-fired:
		t.Fatal("cancelled timer fired")
	case <-time.After(60 * time.Millisecond):
	}
}

func TestLoopDoAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	l := NewLoop()
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	<-done
	assert.False(t, l.Do(context.Background(), func() {}))
}
