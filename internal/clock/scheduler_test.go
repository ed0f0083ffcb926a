package clock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestIntervalDuration(t *testing.T) {
	cases := []struct {
		iv      Interval
		want    time.Duration
		wantErr bool
	}{
		{Interval{Value: 15, Unit: UnitMinute}, 15 * time.Minute, false},
		{Interval{Value: 1, Unit: UnitDay}, 24 * time.Hour, false},
		{Interval{Value: 30, Unit: UnitSecond}, 30 * time.Second, false},
		{Interval{Value: 0, Unit: UnitMinute}, 0, true},
		{Interval{Value: 1, Unit: "fortnight"}, 0, true},
	}
	for _, c := range cases {
		got, err := c.iv.Duration()
		if c.wantErr {
			if err == nil {
				t.Errorf("%+v: expected error", c.iv)
			}
			continue
		}
		if err != nil {
			t.Errorf("%+v: unexpected error: %v", c.iv, err)
		}
		if got != c.want {
			t.Errorf("%+v: got %v, want %v", c.iv, got, c.want)
		}
	}
}

func TestParseInterval(t *testing.T) {
	cases := []struct {
		in      string
		want    Interval
		wantErr bool
	}{
		{"15m", Interval{Value: 15, Unit: UnitMinute}, false},
		{"1h", Interval{Value: 1, Unit: UnitHour}, false},
		{"2d", Interval{Value: 2, Unit: UnitDay}, false},
		{"30s", Interval{Value: 30, Unit: UnitSecond}, false},
		{"", Interval{}, true},
		{"m", Interval{}, true},
		{"15x", Interval{}, true},
		{"-5m", Interval{}, true},
	}
	for _, c := range cases {
		got, err := ParseInterval(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("%q: expected error", c.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("%q: got %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParseClockTime(t *testing.T) {
	if _, _, err := parseClockTime("07:30"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if _, _, err := parseClockTime("24:00"); err == nil {
		t.Error("expected error for hour 24")
	}
	if _, _, err := parseClockTime("bogus"); err == nil {
		t.Error("expected error for malformed time")
	}
}

func TestRunEveryFiresAfterOneInterval(t *testing.T) {
	s, err := New(nil, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	fired := make(chan struct{}, 1)
	if err := s.RunEvery("tick", Interval{Value: 1, Unit: UnitSecond}, func(ctx context.Context) error {
		select {
		case fired <- struct{}{}:
		default:
		}
		return nil
	}); err != nil {
		t.Fatalf("RunEvery: %v", err)
	}

	select {
	case <-fired:
		t.Fatal("job fired immediately, want first firing after one interval")
	case <-time.After(300 * time.Millisecond):
	}

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("job never fired")
	}
}

func TestRunEveryRejectsDuplicateID(t *testing.T) {
	s, err := New(nil, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	noop := func(ctx context.Context) error { return nil }
	if err := s.RunEvery("dup", Interval{Value: 1, Unit: UnitHour}, noop); err != nil {
		t.Fatalf("first RunEvery: %v", err)
	}
	if err := s.RunEvery("dup", Interval{Value: 1, Unit: UnitHour}, noop); err == nil {
		t.Error("expected error registering a duplicate job ID")
	}
}

func TestSingleFlightSkipsOverlappingFiring(t *testing.T) {
	s, err := New(nil, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	var calls atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	err = s.RunEvery("slow", Interval{Value: 1, Unit: UnitSecond}, func(ctx context.Context) error {
		calls.Add(1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})
	if err != nil {
		t.Fatalf("RunEvery: %v", err)
	}

	<-started
	if !s.Running("slow") {
		t.Error("expected job to report running while in flight")
	}

	time.Sleep(1200 * time.Millisecond)
	close(release)

	time.Sleep(100 * time.Millisecond)
	if got := calls.Load(); got != 1 {
		t.Errorf("job fired %d times while a prior firing was in flight, want 1", got)
	}
}

func TestRunAtRequiresAtLeastOneTime(t *testing.T) {
	s, err := New(nil, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	if err := s.RunAt("digest", nil).Do(func(ctx context.Context) error { return nil }); err == nil {
		t.Error("expected error registering a job with no times")
	}
}

func TestJobsReportsRegisteredWork(t *testing.T) {
	s, err := New(nil, time.UTC)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Stop()

	noop := func(ctx context.Context) error { return nil }
	if err := s.RunEvery("fetch", Interval{Value: 15, Unit: UnitMinute}, noop); err != nil {
		t.Fatalf("RunEvery: %v", err)
	}
	if err := s.RunAt("digest", []string{"07:00", "19:00"}).Do(noop); err != nil {
		t.Fatalf("RunAt: %v", err)
	}

	infos := s.Jobs()
	if len(infos) != 2 {
		t.Fatalf("got %d jobs, want 2", len(infos))
	}
	byID := make(map[string]JobInfo)
	for _, info := range infos {
		byID[info.ID] = info
	}
	if byID["fetch"].Kind != "interval" {
		t.Errorf("fetch job kind = %q, want interval", byID["fetch"].Kind)
	}
	if byID["digest"].Kind != "cron" {
		t.Errorf("digest job kind = %q, want cron", byID["digest"].Kind)
	}
	if byID["digest"].Spec != "07:00,19:00" {
		t.Errorf("digest job spec = %q, want 07:00,19:00", byID["digest"].Spec)
	}
}
