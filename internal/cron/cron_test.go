package cron

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-06-01 is a Saturday.
func at(t *testing.T, s string, loc *time.Location) time.Time {
	t.Helper()
	ts, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	require.NoError(t, err)
	return ts
}

func TestMatches_ConcreteCases(t *testing.T) {
	cases := []struct {
		name string
		expr string
		when string
		want bool
	}{
		{"daily_exact_minute", "30 18 * * *", "2024-06-03 18:30", true},
		{"daily_next_minute", "30 18 * * *", "2024-06-03 18:31", false},
		{"weekdays_on_saturday", "0 9 * * 1-5", "2024-06-01 09:00", false},
		{"weekdays_on_monday", "0 9 * * 1-5", "2024-06-03 09:00", true},
		{"weekend_on_sunday", "0 9 * * 6,0", "2024-06-02 09:00", true},
		{"weekend_on_tuesday", "0 9 * * 6,0", "2024-06-04 09:00", false},
		{"all_stars", "* * * * *", "2024-12-31 23:59", true},
		{"mixed_list", "0,15,30-32 * * * *", "2024-06-03 10:31", true},
		{"mixed_list_miss", "0,15,30-32 * * * *", "2024-06-03 10:33", false},
		{"month_and_dom", "0 0 1 1 *", "2024-01-01 00:00", true},
		// day-of-month and day-of-week are both required
		{"dom_and_dow_conjunctive", "0 0 1 * 1", "2024-06-01 00:00", false},
		{"dom_and_dow_both_hit", "0 0 1 * 1", "2024-07-01 00:00", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Matches(tc.expr, at(t, tc.when, time.UTC)))
		})
	}
}

func TestMatches_UsesInstantLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 09:30 UTC is 18:30 in Tokyo.
	utc := at(t, "2024-06-03 09:30", time.UTC)
	assert.False(t, Matches("30 18 * * *", utc))
	assert.True(t, Matches("30 18 * * *", utc.In(tokyo)))
}

func TestMatches_SecondsIgnored(t *testing.T) {
	ts := time.Date(2024, 6, 3, 18, 30, 59, 999, time.UTC)
	assert.True(t, Matches("30 18 * * *", ts))
}

func TestParse_Rejects(t *testing.T) {
	bad := []string{
		"",
		"* * * *",
		"* * * * * *",
		"61 * * * *",
		"* 24 * * *",
		"* * 0 * *",
		"* * 32 * *",
		"* * * 13 *",
		"* * * * 7",
		"*/5 * * * *",
		"5-1 * * * *",
		"1, * * * *",
		"-1 * * * *",
		"+1 * * * *",
		"* * * JAN *",
		"* * * * MON",
		"? * * * *",
		"1-2-3 * * * *",
		"*,5 * * * *",
	}
	for _, expr := range bad {
		t.Run(expr, func(t *testing.T) {
			_, err := Parse(expr)
			require.Error(t, err)
			var pe *ParseError
			assert.True(t, errors.As(err, &pe))
			assert.False(t, Matches(expr, time.Now()), "invalid expression must never match")
		})
	}
}

func TestParse_ErrorNamesField(t *testing.T) {
	err := Validate("61 * * * *")
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "minute", pe.Field)
	assert.Equal(t, "61", pe.Value)
}

func TestParse_NormalisesWhitespace(t *testing.T) {
	e, err := Parse("  0   9 *\t* 1-5 ")
	require.NoError(t, err)
	assert.Equal(t, "0 9 * * 1-5", e.String())
}

func TestNext(t *testing.T) {
	cases := []struct {
		name  string
		expr  string
		after string
		want  string
	}{
		{"same_hour", "30 18 * * *", "2024-06-03 18:00", "2024-06-03 18:30"},
		{"strictly_after", "30 18 * * *", "2024-06-03 18:30", "2024-06-04 18:30"},
		{"weekday_skips_weekend", "0 9 * * 1-5", "2024-05-31 10:00", "2024-06-03 09:00"},
		{"month_rollover", "0 0 1 * *", "2024-12-15 12:00", "2025-01-01 00:00"},
		{"leap_day", "0 0 29 2 *", "2024-03-01 00:00", "2028-02-29 00:00"},
		{"every_minute", "* * * * *", "2024-06-03 23:59", "2024-06-04 00:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, err := Parse(tc.expr)
			require.NoError(t, err)
			got, ok := e.Next(at(t, tc.after, time.UTC))
			require.True(t, ok)
			assert.Equal(t, at(t, tc.want, time.UTC), got)
			assert.True(t, e.Matches(got))
		})
	}
}

func TestNext_Impossible(t *testing.T) {
	e, err := Parse("0 0 31 2 *")
	require.NoError(t, err)
	_, ok := e.Next(at(t, "2024-01-01 00:00", time.UTC))
	assert.False(t, ok)
}

func TestNext_InScheduleTimezone(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	e, err := Parse("0 7 * * *")
	require.NoError(t, err)

	got, ok := e.Next(at(t, "2024-06-03 12:00", time.UTC).In(ny))
	require.True(t, ok)
	assert.Equal(t, 7, got.Hour())
	assert.Equal(t, at(t, "2024-06-04 11:00", time.UTC), got.UTC())
}

// Reference evaluation over a day of minutes for a handful of expressions.
func TestMatches_AgreesWithFieldwiseReference(t *testing.T) {
	exprs := map[string]func(time.Time) bool{
		"15 * * * *":    func(t time.Time) bool { return t.Minute() == 15 },
		"0-9 8-9 * * *": func(t time.Time) bool { return t.Minute() <= 9 && t.Hour() >= 8 && t.Hour() <= 9 },
		"59 23 * 6 6,0": func(t time.Time) bool { return t.Minute() == 59 && t.Hour() == 23 && t.Month() == 6 && (t.Weekday() == 6 || t.Weekday() == 0) },
	}
	start := at(t, "2024-06-01 00:00", time.UTC)
	for expr, ref := range exprs {
		e, err := Parse(expr)
		require.NoError(t, err, expr)
		for m := 0; m < 2*24*60; m++ {
			ts := start.Add(time.Duration(m) * time.Minute)
			if e.Matches(ts) != ref(ts) {
				t.Fatalf("%s at %s: got %v", expr, ts, e.Matches(ts))
			}
		}
	}
}
