package extent

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"datahandler/internal/services"
)

// MaxSpanYears bounds how far apart the two ends of a date range may be.
const MaxSpanYears = 50

// TemporalSpec is the serialized temporal parameter of a job.
//
// Dates is a single date or an inclusive "a,b" range. Each endpoint is
// YYYY, YYYY-DDD, or YYYY-MM-DD; a year or day-of-year endpoint expands to
// its first day at the start of a range and its last day at the end. Days is
// an optional inclusive day-of-year window "a,b"; a > b wraps across the new
// year.
type TemporalSpec struct {
	Dates string `json:"dates"`
	Days  string `json:"days,omitempty"`
}

// Temporal is a resolved TemporalSpec.
type Temporal struct {
	From    time.Time
	To      time.Time
	DayFrom int
	DayTo   int
}

// ParseTemporal decodes and validates a serialized TemporalSpec.
func ParseTemporal(raw string) (TemporalSpec, error) {
	var spec TemporalSpec
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&spec); err != nil {
		return TemporalSpec{}, services.Wrap(services.ErrValidation, "extent", "parse temporal", "malformed temporal spec", err)
	}
	if _, err := spec.Resolve(); err != nil {
		return TemporalSpec{}, err
	}
	return spec, nil
}

// Encode renders the spec as JSON for storage.
func (s TemporalSpec) Encode() string {
	data, _ := json.Marshal(s)
	return string(data)
}

// Resolve converts the spec into inclusive date and day-of-year bounds.
func (s TemporalSpec) Resolve() (Temporal, error) {
	invalid := func(msg string, err error) error {
		return services.Wrap(services.ErrValidation, "extent", "resolve temporal", msg, err)
	}

	dates := strings.TrimSpace(s.Dates)
	if dates == "" {
		return Temporal{}, invalid("dates must be set", nil)
	}
	first, last, ranged := strings.Cut(dates, ",")
	if !ranged {
		last = first
	}
	from, _, err := parseDateEndpoint(first)
	if err != nil {
		return Temporal{}, invalid("dates start", err)
	}
	_, to, err := parseDateEndpoint(last)
	if err != nil {
		return Temporal{}, invalid("dates end", err)
	}
	if to.Before(from) {
		return Temporal{}, invalid(fmt.Sprintf("dates end %s precedes start %s", to.Format(time.DateOnly), from.Format(time.DateOnly)), nil)
	}
	if to.After(from.AddDate(MaxSpanYears, 0, 0)) {
		return Temporal{}, invalid(fmt.Sprintf("dates %s..%s span more than %d years", from.Format(time.DateOnly), to.Format(time.DateOnly), MaxSpanYears), nil)
	}

	out := Temporal{From: from, To: to, DayFrom: 1, DayTo: 366}
	if days := strings.TrimSpace(s.Days); days != "" {
		a, b, ok := strings.Cut(days, ",")
		if !ok {
			return Temporal{}, invalid(fmt.Sprintf("days %q must be a,b", days), nil)
		}
		if out.DayFrom, err = parseDay(a); err != nil {
			return Temporal{}, invalid("days start", err)
		}
		if out.DayTo, err = parseDay(b); err != nil {
			return Temporal{}, invalid("days end", err)
		}
	}
	return out, nil
}

// Contains reports whether date falls inside both bounds.
func (t Temporal) Contains(date time.Time) bool {
	if date.Before(t.From) || date.After(t.To) {
		return false
	}
	doy := date.YearDay()
	if t.DayFrom <= t.DayTo {
		return doy >= t.DayFrom && doy <= t.DayTo
	}
	return doy >= t.DayFrom || doy <= t.DayTo
}

// Dates enumerates every date inside both bounds in ascending order.
func (t Temporal) Dates() []time.Time {
	var out []time.Time
	for d := t.From; !d.After(t.To); d = d.AddDate(0, 0, 1) {
		if t.Contains(d) {
			out = append(out, d)
		}
	}
	return out
}

// parseDateEndpoint returns the first and last day covered by value.
func parseDateEndpoint(value string) (time.Time, time.Time, error) {
	value = strings.TrimSpace(value)
	switch {
	case len(value) == 4:
		year, err := strconv.Atoi(value)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("year %q: %w", value, err)
		}
		start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(1, 0, -1), nil
	case len(value) == 8 && value[4] == '-':
		d, err := time.Parse("2006-002", value)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("day of year %q: %w", value, err)
		}
		return d, d, nil
	default:
		d, err := time.Parse(time.DateOnly, value)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("date %q: %w", value, err)
		}
		return d, d, nil
	}
}

func parseDay(value string) (int, error) {
	day, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, err
	}
	if day < 1 || day > 366 {
		return 0, fmt.Errorf("day %d outside 1..366", day)
	}
	return day, nil
}
