package preview

import (
	"testing"
	"time"
)

func TestTimestampTime(t *testing.T) {
	tm, ok := TimestampTime("1609459200.123456")
	if !ok {
		t.Fatal("TimestampTime rejected a valid timestamp")
	}
	if tm.Unix() != 1609459200 {
		t.Errorf("seconds = %d, want 1609459200", tm.Unix())
	}
	if tm.Nanosecond() != 123456000 {
		t.Errorf("nanoseconds = %d, want 123456000", tm.Nanosecond())
	}

	bad := []string{"", "1609459200", ".123456", "1609459200.", "1609459200.12345", "1609459200.1234567", "abc.123456", "1609459200.12345x"}
	for _, ts := range bad {
		if _, ok := TimestampTime(ts); ok {
			t.Errorf("TimestampTime(%q) should fail", ts)
		}
	}
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want string
	}{
		{"seconds ago", now.Add(-30 * time.Second), "just now"},
		{"under a minute", now.Add(-59 * time.Second), "just now"},
		{"minutes", now.Add(-5 * time.Minute), "5m ago"},
		{"fifty-nine minutes", now.Add(-59 * time.Minute), "59m ago"},
		{"hours", now.Add(-3 * time.Hour), "3h ago"},
		{"twenty-three hours", now.Add(-23 * time.Hour), "23h ago"},
		{"days", now.Add(-2 * 24 * time.Hour), "2d ago"},
		{"six days", now.Add(-6 * 24 * time.Hour), "6d ago"},
		{"beyond a week", now.Add(-8 * 24 * time.Hour), "Mar 7"},
		{"future clamps to just now", now.Add(10 * time.Second), "just now"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RelativeTime(tt.t, now); got != tt.want {
				t.Errorf("RelativeTime = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAbsoluteTime(t *testing.T) {
	tm := time.Date(2024, 3, 15, 9, 5, 0, 0, time.UTC)
	if got := AbsoluteTime(tm); got != "2024-03-15 09:05" {
		t.Errorf("AbsoluteTime = %q, want %q", got, "2024-03-15 09:05")
	}
}

func TestAgeOf(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		want AgeBucket
	}{
		{"this morning", time.Date(2024, 3, 15, 0, 30, 0, 0, time.UTC), AgeToday},
		{"same instant", now, AgeToday},
		{"late last night", time.Date(2024, 3, 14, 23, 59, 0, 0, time.UTC), AgeRecent},
		{"three days", now.Add(-3 * 24 * time.Hour), AgeRecent},
		{"just under a week", now.Add(-7*24*time.Hour + time.Minute), AgeRecent},
		{"exactly a week", now.Add(-7 * 24 * time.Hour), AgeOld},
		{"a month", now.Add(-30 * 24 * time.Hour), AgeOld},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AgeOf(tt.t, now); got != tt.want {
				t.Errorf("AgeOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDaysOld(t *testing.T) {
	now := time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)
	if got := DaysOld(now.Add(-36*time.Hour), now); got != 1 {
		t.Errorf("DaysOld(36h) = %d, want 1", got)
	}
	if got := DaysOld(now.Add(time.Hour), now); got != 0 {
		t.Errorf("DaysOld(future) = %d, want 0", got)
	}
	if got := DaysOld(now.Add(-10*24*time.Hour), now); got != 10 {
		t.Errorf("DaysOld(10d) = %d, want 10", got)
	}
}
