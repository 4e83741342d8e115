// Package digest implements the C8 digest engine: a scheduler that
// decides when each cadence is due, a collector that gathers its
// candidate messages, an aggregator that merges per-profile digest
// settings, and a formatter/delivery pair.
package digest

import (
	"strconv"
	"time"

	"github.com/adhocore/gronx"

	"github.com/redoracle/tgsentinel/internal/config"
)

// Scheduler decides whether a cadence is due to run "now", given the last
// time it ran (the zero time.Time on the first-ever run — spec.md §9's
// "bootstrap run once on first start").
type Scheduler struct {
	cronx gronx.Gronx
}

func NewScheduler() *Scheduler {
	return &Scheduler{cronx: gronx.New()}
}

// anchorHours names the hours-of-day each bounded cadence fires at.
var anchorHours = map[config.Schedule][]int{
	config.ScheduleEvery4h:  {0, 4, 8, 12, 16, 20},
	config.ScheduleEvery6h:  {0, 6, 12, 18},
	config.ScheduleEvery12h: {0, 12},
}

// Due reports whether schedule should run at now, given the last time it
// ran (zero value means never). dailyHour/weeklyDay/weeklyHour are the
// precedence-resolved anchor settings from spec.md §4.8.
func (s *Scheduler) Due(now time.Time, schedule config.Schedule, dailyHour, weeklyDay, weeklyHour int, lastRun time.Time) bool {
	now = now.UTC()
	switch schedule {
	case config.ScheduleHourly:
		return s.dueBucketed(now, lastRun, time.Hour)
	case config.ScheduleEvery4h, config.ScheduleEvery6h, config.ScheduleEvery12h:
		return anchorHourMatches(now.Hour(), anchorHours[schedule]) && s.dueBucketed(now, lastRun, anchorBucketDuration(schedule))
	case config.ScheduleDaily:
		return s.dueAtCronWindow(now, lastRun, dailyHour, -1) && dayChanged(now, lastRun)
	case config.ScheduleWeekly:
		return s.dueAtCronWindow(now, lastRun, weeklyHour, weeklyDay) && weekChanged(now, lastRun)
	default:
		return false
	}
}

// dueBucketed implements the hourly/every_Nh rule: due on bootstrap only
// within the first 5 minutes of the bucket, otherwise due exactly once per
// bucket (spec.md: "first run if minute < 5; else whenever hour changes").
func (s *Scheduler) dueBucketed(now, lastRun time.Time, bucket time.Duration) bool {
	if lastRun.IsZero() {
		return now.Minute() < 5
	}
	return now.Truncate(bucket).After(lastRun.Truncate(bucket))
}

func anchorBucketDuration(schedule config.Schedule) time.Duration {
	switch schedule {
	case config.ScheduleEvery4h:
		return 4 * time.Hour
	case config.ScheduleEvery6h:
		return 6 * time.Hour
	case config.ScheduleEvery12h:
		return 12 * time.Hour
	default:
		return time.Hour
	}
}

func anchorHourMatches(hour int, anchors []int) bool {
	for _, a := range anchors {
		if a == hour {
			return true
		}
	}
	return false
}

// dueAtCronWindow uses gronx to check whether now falls within the 5-minute
// grace window after the configured anchor hour (and weekday, for weekly
// cadences; weekday<0 means "every day" for the daily cadence).
func (s *Scheduler) dueAtCronWindow(now, lastRun time.Time, hour, weekday int) bool {
	expr := dailyCronExpr(hour, weekday)
	due, err := s.cronx.IsDue(expr, now)
	if err != nil {
		return false
	}
	if due {
		return true
	}
	// gronx.IsDue only matches the exact minute; widen to the same 5-minute
	// grace window the hourly/every_Nh buckets get, so a scheduler tick that
	// misses the precise minute still catches the cadence.
	for m := 1; m < 5; m++ {
		if due, _ := s.cronx.IsDue(expr, now.Add(-time.Duration(m)*time.Minute)); due {
			return true
		}
	}
	return false
}

func dailyCronExpr(hour, weekday int) string {
	dow := "*"
	if weekday >= 0 {
		// config.ScheduleConfig.WeeklyDay uses Monday=0..Sunday=6; standard
		// cron day-of-week uses Sunday=0..Saturday=6.
		dow = strconv.Itoa((weekday + 1) % 7)
	}
	return "0 " + strconv.Itoa(hour) + " * * " + dow
}

func dayChanged(now, lastRun time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	ny, nm, nd := now.Date()
	ly, lm, ld := lastRun.Date()
	return ny != ly || nm != lm || nd != ld
}

func weekChanged(now, lastRun time.Time) bool {
	if lastRun.IsZero() {
		return true
	}
	return now.Sub(lastRun) >= 7*24*time.Hour
}
