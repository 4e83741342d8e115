package digest

import (
	"testing"
	"time"

	"github.com/redoracle/tgsentinel/internal/config"
)

func TestDueAtBootstrapFirstRun(t *testing.T) {
	s := NewScheduler()
	now := time.Date(2025, 6, 1, 0, 2, 0, 0, time.UTC) // Sunday

	cases := []struct {
		schedule config.Schedule
		want     bool
	}{
		{config.ScheduleHourly, true},
		{config.ScheduleEvery4h, true},
		{config.ScheduleEvery6h, true},
		{config.ScheduleEvery12h, true},
		{config.ScheduleDaily, true},   // daily_hour=0 matches hour 0
		{config.ScheduleWeekly, false}, // weekly_day=0 (Monday), now is Sunday
	}
	for _, c := range cases {
		got := s.Due(now, c.schedule, 0, 0, 0, time.Time{})
		if got != c.want {
			t.Errorf("Due(%s) = %v, want %v", c.schedule, got, c.want)
		}
	}
}

func TestDueWeeklyOnConfiguredDay(t *testing.T) {
	s := NewScheduler()
	monday := time.Date(2025, 6, 2, 0, 1, 0, 0, time.UTC) // Monday
	if !s.Due(monday, config.ScheduleWeekly, 0, 0, 0, time.Time{}) {
		t.Fatalf("expected weekly due on configured weekday at bootstrap")
	}
}

func TestDueHourlyOnlyOncePerHour(t *testing.T) {
	s := NewScheduler()
	lastRun := time.Date(2025, 6, 1, 10, 2, 0, 0, time.UTC)

	sameHour := time.Date(2025, 6, 1, 10, 45, 0, 0, time.UTC)
	if s.Due(sameHour, config.ScheduleHourly, 0, 0, 0, lastRun) {
		t.Fatalf("expected not due again within the same hour bucket")
	}

	nextHour := time.Date(2025, 6, 1, 11, 1, 0, 0, time.UTC)
	if !s.Due(nextHour, config.ScheduleHourly, 0, 0, 0, lastRun) {
		t.Fatalf("expected due once the hour changes")
	}
}

func TestDueEvery4hOnlyAtAnchorHours(t *testing.T) {
	s := NewScheduler()
	offAnchor := time.Date(2025, 6, 1, 5, 1, 0, 0, time.UTC)
	if s.Due(offAnchor, config.ScheduleEvery4h, 0, 0, 0, time.Time{}) {
		t.Fatalf("expected every_4h not due outside anchor hours")
	}

	onAnchor := time.Date(2025, 6, 1, 4, 1, 0, 0, time.UTC)
	if !s.Due(onAnchor, config.ScheduleEvery4h, 0, 0, 0, time.Time{}) {
		t.Fatalf("expected every_4h due at anchor hour on bootstrap")
	}
}

func TestDueDailyOncePerCalendarDay(t *testing.T) {
	s := NewScheduler()
	lastRun := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	sameDayLater := time.Date(2025, 6, 1, 8, 2, 0, 0, time.UTC)
	if s.Due(sameDayLater, config.ScheduleDaily, 8, 0, 0, lastRun) {
		t.Fatalf("expected daily not due twice in the same calendar day")
	}

	nextDay := time.Date(2025, 6, 2, 8, 1, 0, 0, time.UTC)
	if !s.Due(nextDay, config.ScheduleDaily, 8, 0, 0, lastRun) {
		t.Fatalf("expected daily due again the next calendar day at the anchor hour")
	}
}

func TestDueWeeklyOncePer7Days(t *testing.T) {
	s := NewScheduler()
	lastRun := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC) // Monday

	nextMonday := time.Date(2025, 6, 9, 8, 1, 0, 0, time.UTC)
	if !s.Due(nextMonday, config.ScheduleWeekly, 0, 0, 8, lastRun) {
		t.Fatalf("expected weekly due again after 7 days at the configured day/hour")
	}

	tooSoon := time.Date(2025, 6, 5, 8, 1, 0, 0, time.UTC) // same week, Thursday
	if s.Due(tooSoon, config.ScheduleWeekly, 0, 0, 8, lastRun) {
		t.Fatalf("expected weekly not due again within the same 7-day window")
	}
}
