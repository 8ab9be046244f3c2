// Copyright 2026 The WaterCI Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestFakeStandsStill(t *testing.T) {
	c := Fake(epoch)
	if !c.Now().Equal(epoch) || !c.Now().Equal(epoch) {
		t.Fatal("fake clock moved without Advance")
	}
}

func TestFakeAdvance(t *testing.T) {
	c := Fake(epoch)
	c.Advance(90 * time.Second)
	if got := c.Now(); !got.Equal(epoch.Add(90 * time.Second)) {
		t.Errorf("Now() = %v, want %v", got, epoch.Add(90*time.Second))
	}
}

func TestFakeStep(t *testing.T) {
	c := Fake(epoch)
	c.SetStep(250 * time.Millisecond)

	start := c.Now()
	if !start.Equal(epoch) {
		t.Errorf("first Now() = %v, want %v", start, epoch)
	}
	if elapsed := Since(c, start); elapsed != 250*time.Millisecond {
		t.Errorf("Since() = %v, want 250ms", elapsed)
	}
}

func TestRealMovesForward(t *testing.T) {
	c := Real()
	first := c.Now()
	if Since(c, first) < 0 {
		t.Error("real clock went backwards")
	}
}
