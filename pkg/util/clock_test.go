package util

import (
	"testing"
	"time"
)

func TestRealClockNowAdvances(t *testing.T) {
	var c Clock = RealClock{}
	first := c.Now()
	time.Sleep(time.Millisecond)
	second := c.Now()
	if !second.After(first) {
		t.Errorf("RealClock.Now() should advance between calls: %v then %v", first, second)
	}
}

func TestRealClockAfterFires(t *testing.T) {
	var c Clock = RealClock{}
	select {
	case <-c.After(time.Millisecond):
	case <-time.After(time.Second):
		t.Fatal("RealClock.After did not fire within 1s")
	}
}
