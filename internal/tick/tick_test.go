package tick

import (
	"testing"
	"time"
)

func TestInterval(t *testing.T) {
	i := NewInterval(100 * time.Millisecond)
	i.Update(60 * time.Millisecond)
	if i.Passed() {
		t.Fatalf("Passed() = true after 60ms; want false")
	}
	i.Update(70 * time.Millisecond)
	if !i.Passed() {
		t.Fatalf("Passed() = false after 130ms; want true")
	}
	i.Reset()
	if got := i.Current(); got != 30*time.Millisecond {
		t.Errorf("Current() after Reset = %v; want 30ms", got)
	}
}

func TestCountdown(t *testing.T) {
	c := NewCountdown(time.Second)
	c.Update(999 * time.Millisecond)
	if c.Passed() {
		t.Errorf("Passed() = true with 1ms left; want false")
	}
	c.Update(time.Millisecond)
	if !c.Passed() {
		t.Errorf("Passed() = false at zero; want true")
	}
	c.Reset(5 * time.Second)
	if got := c.Remaining(); got != 5*time.Second {
		t.Errorf("Remaining() = %v; want 5s", got)
	}
}
