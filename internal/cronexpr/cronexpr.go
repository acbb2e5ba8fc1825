// Package cronexpr evaluates five-field cron expressions in an IANA timezone.
//
// The grammar is parsed with robfig/cron; occurrence search walks local wall-clock
// time over the parsed field sets so daylight-saving transitions resolve by a fixed
// policy instead of whatever time.Date happens to pick:
//
//   - a local time that does not exist (spring-forward gap) resolves to the later of
//     the two candidate instants, which is the wall time pushed forward by the gap;
//   - a local time that occurs twice (fall-back overlap) resolves to the later instant.
//
// Everything here is pure and deterministic given its inputs.
package cronexpr

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var (
	ErrInvalidExpression = errors.New("invalid cron expression")
	ErrInvalidTimezone   = errors.New("invalid timezone")
)

// errNeverFires is returned when the fields parse but no calendar date satisfies them.
var errNeverFires = fmt.Errorf("%w: no occurrence within %d years", ErrInvalidExpression, searchYears)

const (
	// starBit mirrors robfig/cron: set on a field written as * or ?.
	starBit = 1 << 63

	searchYears = 5

	// lookback bounds how far a DST transition can move an instant relative to its wall time.
	lookback = 3 * time.Hour
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Expression is a validated cron expression bound to a timezone.
type Expression struct {
	source string
	spec   *cron.SpecSchedule
	loc    *time.Location
}

// Parse validates expr and tz. Timezones must be explicit IANA names; "Local" is rejected
// because it would make evaluation depend on the host.
func Parse(expr, tz string) (*Expression, error) {
	loc, err := LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	src := strings.TrimSpace(expr)
	if src == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidExpression)
	}
	if strings.HasPrefix(src, "TZ=") || strings.HasPrefix(src, "CRON_TZ=") {
		return nil, fmt.Errorf("%w: timezone prefix not allowed, set the schedule timezone instead", ErrInvalidExpression)
	}
	sched, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}
	spec, ok := sched.(*cron.SpecSchedule)
	if !ok {
		// @every produces a constant delay, which is not a calendar rule.
		return nil, fmt.Errorf("%w: %q is not a calendar schedule", ErrInvalidExpression, src)
	}
	return &Expression{source: src, spec: spec, loc: loc}, nil
}

// LoadLocation resolves an IANA timezone name.
func LoadLocation(tz string) (*time.Location, error) {
	name := strings.TrimSpace(tz)
	if name == "" || name == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTimezone, tz)
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, tz, err)
	}
	return loc, nil
}

// NextOccurrence returns the smallest instant strictly after `after` that satisfies expr in tz,
// normalized to UTC.
func NextOccurrence(expr, tz string, after time.Time) (time.Time, error) {
	e, err := Parse(expr, tz)
	if err != nil {
		return time.Time{}, err
	}
	return e.Next(after)
}

func (e *Expression) String() string { return e.source }

func (e *Expression) Location() *time.Location { return e.loc }

// Next returns the smallest instant strictly after `after`, in UTC.
func (e *Expression) Next(after time.Time) (time.Time, error) {
	start := wall(after.In(e.loc)).Truncate(time.Minute).Add(-lookback)

	var best, firstWall time.Time
	e.scan(start, func(w time.Time) bool {
		if !firstWall.IsZero() && w.Sub(firstWall) > 2*lookback {
			return false
		}
		inst := resolve(w, e.loc)
		if !inst.After(after) {
			return true
		}
		if firstWall.IsZero() {
			firstWall = w
		}
		if best.IsZero() || inst.Before(best) {
			best = inst
		}
		return true
	})
	if best.IsZero() {
		return time.Time{}, errNeverFires
	}
	return best.UTC(), nil
}

// Occurrences returns up to n successive occurrences after `after`.
func (e *Expression) Occurrences(after time.Time, n int) ([]time.Time, error) {
	out := make([]time.Time, 0, n)
	cur := after
	for i := 0; i < n; i++ {
		next, err := e.Next(cur)
		if err != nil {
			return out, err
		}
		out = append(out, next)
		cur = next
	}
	return out, nil
}

// scan calls fn with every matching wall time at or after start, in order, until fn returns
// false or the search horizon is exhausted. Wall times are carried as UTC-located values.
func (e *Expression) scan(start time.Time, fn func(w time.Time) bool) {
	end := start.AddDate(searchYears, 0, 0)
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	for ; day.Before(end); day = day.AddDate(0, 0, 1) {
		if e.spec.Month&(1<<uint(day.Month())) == 0 || !e.dayMatches(day) {
			continue
		}
		for h := 0; h < 24; h++ {
			if e.spec.Hour&(1<<uint(h)) == 0 {
				continue
			}
			for m := 0; m < 60; m++ {
				if e.spec.Minute&(1<<uint(m)) == 0 {
					continue
				}
				w := day.Add(time.Duration(h)*time.Hour + time.Duration(m)*time.Minute)
				if w.Before(start) {
					continue
				}
				if !fn(w) {
					return
				}
			}
		}
	}
}

// dayMatches follows cron semantics: if either day field is a wildcard both must match,
// otherwise either may.
func (e *Expression) dayMatches(day time.Time) bool {
	domMatch := 1<<uint(day.Day())&e.spec.Dom > 0
	dowMatch := 1<<uint(day.Weekday())&e.spec.Dow > 0
	if e.spec.Dom&starBit > 0 || e.spec.Dow&starBit > 0 {
		return domMatch && dowMatch
	}
	return domMatch || dowMatch
}

// wall strips the zone from t, keeping its local calendar fields.
func wall(t time.Time) time.Time {
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return time.Date(y, mo, d, h, mi, s, t.Nanosecond(), time.UTC)
}

// resolve maps a wall time to an instant in loc. Real zones never change offset twice
// within a day, so the offsets twelve hours either side are the only candidates.
func resolve(w time.Time, loc *time.Location) time.Time {
	naive := w.Unix()
	_, offBefore := time.Unix(naive-12*3600, 0).In(loc).Zone()
	_, offAfter := time.Unix(naive+12*3600, 0).In(loc).Zone()

	c1 := time.Unix(naive-int64(offBefore), 0).In(loc)
	if offBefore == offAfter {
		return c1
	}
	c2 := time.Unix(naive-int64(offAfter), 0).In(loc)
	ok1 := wall(c1).Equal(w)
	ok2 := wall(c2).Equal(w)
	switch {
	case ok1 && !ok2:
		return c1
	case ok2 && !ok1:
		return c2
	}
	// Both valid (overlap) or neither (gap): take the later instant.
	if c1.After(c2) {
		return c1
	}
	return c2
}
