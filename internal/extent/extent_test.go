package extent_test

import (
	"errors"
	"testing"
	"time"

	"datahandler/internal/extent"
	"datahandler/internal/services"
)

func TestParseSpatialTiles(t *testing.T) {
	spec, err := extent.ParseSpatial(`{"kind":"tiles","tiles":["h02v01","h01v01","h02v01"]}`)
	if err != nil {
		t.Fatalf("ParseSpatial failed: %v", err)
	}
	resolved, err := spec.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved.Extents) != 2 {
		t.Fatalf("expected duplicate tile to collapse into 2 extents, got %d", len(resolved.Extents))
	}
	if resolved.Tiles[0] != "h01v01" || resolved.Tiles[1] != "h02v01" {
		t.Fatalf("expected sorted tiles, got %v", resolved.Tiles)
	}
	if resolved.Extents[0].Name != "h02v01" {
		t.Fatalf("expected extents in declaration order, got %v", resolved.Extents)
	}
}

func TestParseSpatialFeatures(t *testing.T) {
	spec, err := extent.ParseSpatial(`{"kind":"features","features":[{"name":"farm-1","tiles":["h01v01","h01v02"]},{"name":"farm-2","tiles":["h01v02"]}]}`)
	if err != nil {
		t.Fatalf("ParseSpatial failed: %v", err)
	}
	resolved, err := spec.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if len(resolved.Extents) != 2 || len(resolved.Tiles) != 2 {
		t.Fatalf("unexpected resolution: %+v", resolved)
	}
	if got := resolved.Slice(1, 10); len(got) != 1 || got[0].Name != "farm-2" {
		t.Fatalf("unexpected slice: %+v", got)
	}
	if got := resolved.Slice(5, 10); got != nil {
		t.Fatalf("expected empty slice past the end, got %+v", got)
	}
}

func TestParseSpatialRejectsMalformed(t *testing.T) {
	cases := []string{
		`not json`,
		`{"kind":"tiles"}`,
		`{"kind":"tiles","tiles":[""]}`,
		`{"kind":"shapes","tiles":["a"]}`,
		`{"kind":"features","features":[{"name":"x","tiles":[]}]}`,
		`{"kind":"features","features":[{"name":"x","tiles":["a"]},{"name":"x","tiles":["b"]}]}`,
		`{"kind":"tiles","tiles":["a"],"extra":1}`,
	}
	for _, raw := range cases {
		if _, err := extent.ParseSpatial(raw); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("ParseSpatial(%s) = %v, want validation error", raw, err)
		}
	}
}

func TestSpatialEncodeRoundTrip(t *testing.T) {
	spec := extent.Tiles("h01v01", "h02v02")
	parsed, err := extent.ParseSpatial(spec.Encode())
	if err != nil {
		t.Fatalf("ParseSpatial failed: %v", err)
	}
	if parsed.Kind != extent.KindTiles || len(parsed.Tiles) != 2 {
		t.Fatalf("unexpected round trip: %+v", parsed)
	}
}

func TestTemporalResolveFormats(t *testing.T) {
	day := func(s string) time.Time {
		d, err := time.Parse(time.DateOnly, s)
		if err != nil {
			t.Fatalf("parse %s: %v", s, err)
		}
		return d
	}
	cases := []struct {
		dates    string
		from, to string
	}{
		{"2020-01-01,2020-01-10", "2020-01-01", "2020-01-10"},
		{"2020", "2020-01-01", "2020-12-31"},
		{"2019,2020", "2019-01-01", "2020-12-31"},
		{"2020-032", "2020-02-01", "2020-02-01"},
		{"2020-001,2020-01-15", "2020-01-01", "2020-01-15"},
	}
	for _, tc := range cases {
		resolved, err := extent.TemporalSpec{Dates: tc.dates}.Resolve()
		if err != nil {
			t.Fatalf("Resolve(%q) failed: %v", tc.dates, err)
		}
		if !resolved.From.Equal(day(tc.from)) || !resolved.To.Equal(day(tc.to)) {
			t.Fatalf("Resolve(%q) = %s..%s, want %s..%s", tc.dates, resolved.From, resolved.To, tc.from, tc.to)
		}
		if resolved.DayFrom != 1 || resolved.DayTo != 366 {
			t.Fatalf("expected full day window by default, got %d..%d", resolved.DayFrom, resolved.DayTo)
		}
	}
}

func TestTemporalDatesRespectDayWindow(t *testing.T) {
	resolved, err := extent.TemporalSpec{Dates: "2020-01-01,2020-01-10"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if got := len(resolved.Dates()); got != 10 {
		t.Fatalf("expected 10 dates, got %d", got)
	}

	windowed, err := extent.TemporalSpec{Dates: "2019-12-25,2020-01-05", Days: "360,2"}.Resolve()
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	dates := windowed.Dates()
	// 2019-12-26 (day 360) through 2019-12-31, then 2020-01-01 and 2020-01-02.
	if len(dates) != 8 {
		t.Fatalf("expected 8 dates in wrapped window, got %d: %v", len(dates), dates)
	}
}

func TestTemporalRejectsMalformed(t *testing.T) {
	cases := []extent.TemporalSpec{
		{},
		{Dates: "2020-13-01"},
		{Dates: "2020-01-10,2020-01-01"},
		{Dates: "2020", Days: "1"},
		{Dates: "2020", Days: "0,10"},
		{Dates: "0001,9999"},
		{Dates: "1950-01-01,2000-01-02"},
	}
	for _, spec := range cases {
		if _, err := spec.Resolve(); !errors.Is(err, services.ErrValidation) {
			t.Fatalf("Resolve(%+v) = %v, want validation error", spec, err)
		}
	}
	if _, err := (extent.TemporalSpec{Dates: "1950-01-01,2000-01-01"}).Resolve(); err != nil {
		t.Fatalf("expected a range of exactly the maximum span to resolve, got %v", err)
	}
	if _, err := extent.ParseTemporal(`{"dates":"0001,9999"}`); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected an unbounded range to be rejected at parse time, got %v", err)
	}
	if _, err := extent.ParseTemporal(`{"dates":"2020","bogus":true}`); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected unknown field to be rejected, got %v", err)
	}
}
