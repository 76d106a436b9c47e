package progress

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardMonotonicAndClamped(t *testing.T) {
	var got []int
	g := NewGuard(ReporterFunc(func(e Event) { got = append(got, e.Percent) }))
	for _, p := range []int{-5, 20, 10, 70, 150, 90} {
		g.Report(Event{Percent: p})
	}
	assert.Equal(t, []int{0, 20, 20, 70, 100, 100}, got)
}

func TestGuardStagePercentages(t *testing.T) {
	var events []Event
	g := NewGuard(ReporterFunc(func(e Event) { events = append(events, e) }))
	for _, s := range []string{StageParse, StageDedupe, StageClassify, StageExclude, StageAggregate, StageFinalize} {
		g.Stage(s)
	}
	require.Len(t, events, 6)
	want := []int{20, 30, 70, 80, 95, 100}
	for i, e := range events {
		assert.Equal(t, want[i], e.Percent, e.Stage)
	}
	assert.Equal(t, StageFinalize, events[5].Stage)
}

func TestGuardRecoversPanics(t *testing.T) {
	var calls int
	g := NewGuard(ReporterFunc(func(Event) {
		calls++
		panic("boom")
	}))
	assert.NotPanics(t, func() { g.Stage(StageParse) })
	assert.NotPanics(t, func() { g.Stage(StageDedupe) })
	assert.Equal(t, 2, calls)

	assert.NotPanics(t, func() { NewGuard(nil).Stage(StageFinalize) })
}

func TestChannelDropsWhenFull(t *testing.T) {
	c := NewChannel(1)
	c.Report(Event{Percent: 20})
	c.Report(Event{Percent: 30})
	assert.Equal(t, 1, c.Dropped())
	e := <-c.C
	assert.Equal(t, 20, e.Percent)
}

func TestChannelDrainUntilClosed(t *testing.T) {
	c := NewChannel(8)
	done := make(chan []int)
	go func() {
		var got []int
		for e := range c.C {
			got = append(got, e.Percent)
		}
		done <- got
	}()
	g := NewGuard(c)
	g.Stage(StageParse)
	g.Stage(StageFinalize)
	c.Close()
	c.Close()
	assert.Equal(t, []int{20, 100}, <-done)

	assert.NotPanics(t, func() { g.Stage(StageFinalize) })
	assert.Equal(t, 1, c.Dropped())
}
