package clock

import (
	"testing"
	"time"
)

func TestFakeNowReportsStartUntilAdvanced(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	if !f.Now().Equal(start) {
		t.Fatalf("expected Now() to equal start, got %v", f.Now())
	}

	f.Advance(time.Hour)
	if !f.Now().Equal(start.Add(time.Hour)) {
		t.Fatalf("expected Now() to advance by 1h, got %v", f.Now())
	}
}

func TestFakeAfterFiresOnlyOnceDeadlineElapses(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ch := f.After(10 * time.Second)

	select {
	case <-ch:
		t.Fatal("After channel must not fire before the fake clock advances")
	default:
	}

	f.Advance(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After channel must not fire before its full duration elapses")
	default:
	}

	f.Advance(5 * time.Second)
	select {
	case <-ch:
	default:
		t.Fatal("After channel must fire once the deadline has fully elapsed")
	}
}

func TestFakeAfterWithNonPositiveDurationFiresImmediately(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ch := f.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("After(0) must fire immediately without requiring Advance")
	}
}

func TestFakeSleepBlocksUntilAdvanced(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	done := make(chan struct{})

	go func() {
		f.Sleep(time.Second)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Sleep must not return before the clock is advanced")
	case <-time.After(20 * time.Millisecond):
	}

	f.Advance(time.Second)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Sleep must return once the clock advances past the requested duration")
	}
}

func TestFakeTickerFiresOnEachElapsedPeriod(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ticker := f.NewTicker(time.Second)

	f.Advance(time.Second)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker must fire after one period elapses")
	}

	f.Advance(3 * time.Second)
	fired := 0
	for i := 0; i < 3; i++ {
		select {
		case <-ticker.C():
			fired++
		default:
		}
	}
	if fired == 0 {
		t.Fatal("ticker must fire for elapsed periods after a multi-period advance")
	}
}

func TestFakeTickerStopSuppressesFurtherTicks(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	ticker := f.NewTicker(time.Second)
	ticker.Stop()

	f.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("a stopped ticker must not deliver further ticks")
	default:
	}
}
