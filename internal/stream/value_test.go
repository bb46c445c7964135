package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscribeReplaysCurrent(t *testing.T) {
	v := New("initial")
	v.Set("latest")

	ch, cancel := v.Subscribe()
	defer cancel()

	assert.Equal(t, "latest", <-ch)
}

func TestSlowSubscriberSeesLatestOnly(t *testing.T) {
	v := New(0)
	ch, cancel := v.Subscribe()
	defer cancel()

	for i := 1; i <= 5; i++ {
		v.Set(i)
	}

	assert.Equal(t, 5, <-ch)
	select {
	case got := <-ch:
		t.Fatalf("unexpected pending value %d", got)
	default:
	}
}

func TestVersionCountsSets(t *testing.T) {
	v := New("a")
	assert.Equal(t, uint64(0), v.Version())

	v.Set("b")
	v.Set("b")
	assert.Equal(t, uint64(2), v.Version())
	assert.Equal(t, "b", v.Get())
}

func TestCancelClosesChannel(t *testing.T) {
	v := New(1)
	ch, cancel := v.Subscribe()
	<-ch

	cancel()
	cancel()

	_, ok := <-ch
	assert.False(t, ok)

	// publishing after cancel must not panic on the closed channel
	v.Set(2)
}

func TestCloseEndsSubscriptions(t *testing.T) {
	v := New("x")
	ch, cancel := v.Subscribe()
	defer cancel()
	<-ch

	v.Close()
	_, ok := <-ch
	require.False(t, ok)

	v.Set("ignored")
	assert.Equal(t, "x", v.Get())

	late, lateCancel := v.Subscribe()
	defer lateCancel()
	_, ok = <-late
	assert.False(t, ok)
}

func TestFanOut(t *testing.T) {
	v := New("")
	a, cancelA := v.Subscribe()
	defer cancelA()
	b, cancelB := v.Subscribe()
	defer cancelB()
	<-a
	<-b

	v.Set("hello")

	assert.Equal(t, "hello", <-a)
	assert.Equal(t, "hello", <-b)
}
