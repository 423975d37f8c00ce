// Package schedule maps wall-clock time in a fixed civil time zone onto a
// static table of recurring notifications. Resolution is pure: no I/O, no
// reads of the process clock.
package schedule

import (
	"fmt"
	"time"
)

// Frequency controls how often an entry fires.
type Frequency string

const (
	// Daily entries fire every day. This is the zero-value default.
	Daily Frequency = "daily"
	// Weekly entries fire only when the civil weekday matches Entry.Weekday.
	Weekly Frequency = "weekly"
)

// Entry is one slot in a notification schedule. TimeOfDay is "HH:MM" in the
// configured civil time zone and must be unique within a schedule; entries
// should be spaced further apart than twice the resolver tolerance so no
// instant can match two of them.
type Entry struct {
	TimeOfDay string
	Title     string
	Body      string
	URL       string
	Frequency Frequency
	Weekday   time.Weekday
}

func parseTimeOfDay(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse time of day %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day %q out of range", s)
	}
	return h*60 + m, nil
}

// Resolve returns the entry scheduled within toleranceMinutes of now, or nil
// when no entry matches. A nil result is the common case for invoker
// cadences finer than the schedule spacing. offsetMinutes converts now to
// civil time (e.g. -180 for UTC-3). When several entries fall inside the
// tolerance the nearest wins, then the lexicographically smaller TimeOfDay.
func Resolve(now time.Time, offsetMinutes int, entries []Entry, toleranceMinutes int) *Entry {
	civil := now.UTC().Add(time.Duration(offsetMinutes) * time.Minute)
	current := civil.Hour()*60 + civil.Minute()
	weekday := civil.Weekday()

	var (
		best     *Entry
		bestDiff int
	)
	for i := range entries {
		entry := &entries[i]
		target, err := parseTimeOfDay(entry.TimeOfDay)
		if err != nil {
			continue
		}

		// Plain same-day distance. The distance does not wrap at midnight:
		// a slot's occurrence belongs to one civil date, which is also the
		// dedup-marker key, so 23:59 must never match a 00:00 slot.
		diff := current - target
		if diff < 0 {
			diff = -diff
		}
		if diff > toleranceMinutes {
			continue
		}
		if entry.Frequency == Weekly && weekday != entry.Weekday {
			continue
		}

		switch {
		case best == nil, diff < bestDiff:
			best, bestDiff = entry, diff
		case diff == bestDiff && entry.TimeOfDay < best.TimeOfDay:
			best = entry
		}
	}
	return best
}

// CivilDate formats now's calendar date at the given offset, used as the
// dedup-marker detail for daily schedule slots.
func CivilDate(now time.Time, offsetMinutes int) string {
	return now.UTC().Add(time.Duration(offsetMinutes) * time.Minute).Format("2006-01-02")
}

// Default is the stock daily schedule, in the app's home time zone
// (UTC-3). Injected through config so deployments can replace it without a
// code change.
func Default() []Entry {
	return []Entry{
		{TimeOfDay: "07:00", Title: "Good morning, athlete!", Body: "Time to start the day with energy!", URL: "/dashboard"},
		{TimeOfDay: "09:00", Title: "Hydration check", Body: "Drink some water to keep focus and energy up!", URL: "/dashboard/nutrition"},
		{TimeOfDay: "11:30", Title: "Workout time", Body: "Your personalized workout is ready!", URL: "/dashboard/training"},
		{TimeOfDay: "14:00", Title: "Hydration check", Body: "Don't forget to drink water!", URL: "/dashboard/nutrition"},
		{TimeOfDay: "17:00", Title: "Afternoon workout", Body: "How about a session now? You've got this!", URL: "/dashboard/training"},
		{TimeOfDay: "19:00", Title: "Last hydration call", Body: "Stay hydrated through the end of the day!", URL: "/dashboard/nutrition"},
		{TimeOfDay: "21:00", Title: "Good night", Body: "Rest well to chase your goals tomorrow!", URL: "/dashboard/motivational"},
	}
}
