package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestBurstFiresOnce(t *testing.T) {
	var calls atomic.Int32
	var firedAt atomic.Int64
	d := New(150*time.Millisecond, func() {
		calls.Add(1)
		firedAt.Store(time.Now().UnixNano())
	})

	var last time.Time
	for i := 0; i < 5; i++ {
		last = time.Now()
		d.Trigger()
		time.Sleep(40 * time.Millisecond)
	}

	time.Sleep(400 * time.Millisecond)

	if got := calls.Load(); got != 1 {
		t.Fatalf("calls = %d, want 1", got)
	}
	if elapsed := time.Duration(firedAt.Load() - last.UnixNano()); elapsed < 150*time.Millisecond {
		t.Errorf("fired %v after last trigger, want >= 150ms", elapsed)
	}
	if d.Pending() {
		t.Error("Pending() = true after run")
	}
}

func TestSeparateBurstsFireSeparately(t *testing.T) {
	var calls atomic.Int32
	d := New(50*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	time.Sleep(200 * time.Millisecond)
	d.Trigger()
	time.Sleep(200 * time.Millisecond)

	if got := calls.Load(); got != 2 {
		t.Errorf("calls = %d, want 2", got)
	}
}

func TestCancelAndStop(t *testing.T) {
	var calls atomic.Int32
	d := New(50*time.Millisecond, func() { calls.Add(1) })

	d.Trigger()
	if !d.Pending() {
		t.Error("Pending() = false after Trigger")
	}
	d.Cancel()
	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("calls after Cancel = %d, want 0", got)
	}

	d.Stop()
	d.Trigger()
	time.Sleep(150 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("calls after Stop = %d, want 0", got)
	}
}

func TestRunsNeverOverlap(t *testing.T) {
	var mu sync.Mutex
	active, maxActive := 0, 0
	d := New(10*time.Millisecond, func() {
		mu.Lock()
		active++
		if active > maxActive {
			maxActive = active
		}
		mu.Unlock()

		time.Sleep(30 * time.Millisecond)

		mu.Lock()
		active--
		mu.Unlock()
	})

	for i := 0; i < 10; i++ {
		d.Trigger()
		time.Sleep(15 * time.Millisecond)
	}
	time.Sleep(200 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if maxActive > 1 {
		t.Errorf("max concurrent runs = %d, want 1", maxActive)
	}
}

func TestDefaultWait(t *testing.T) {
	if got := New(0, func() {}).Wait(); got != DefaultWait {
		t.Errorf("Wait() = %v, want %v", got, DefaultWait)
	}
}
