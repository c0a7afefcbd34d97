// Package cron parses and evaluates five-field time expressions.
//
// The dialect is deliberately small: each field is "*", an integer, a range
// "a-b" or a comma list of integers and ranges. Steps, names and the
// POSIX day-of-month/day-of-week OR rule are not supported; all five fields
// must match.
//
// Matching is on wall-clock time in whatever location the caller passes. On a
// DST fall-back day a wall-clock minute occurs twice and matches both times;
// callers that fire schedules dedupe on the local minute.
package cron

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// searchHorizon bounds Next so impossible dates like "0 0 31 2 *" terminate.
const searchHorizon = 5 // years

type fieldSpec struct {
	name     string
	min, max int
}

var fieldSpecs = [5]fieldSpec{
	{"minute", 0, 59},
	{"hour", 0, 23},
	{"day-of-month", 1, 31},
	{"month", 1, 12},
	{"day-of-week", 0, 6},
}

// ParseError describes why an expression was rejected.
type ParseError struct {
	Expr   string
	Field  string // empty when the field count is wrong
	Value  string
	Reason string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("cron %q: %s", e.Expr, e.Reason)
	}
	return fmt.Sprintf("cron %q: %s field %q: %s", e.Expr, e.Field, e.Value, e.Reason)
}

// set is a bitmask of allowed values; every field fits in 64 bits.
type set uint64

func (s set) has(v int) bool { return v >= 0 && v < 64 && s&(1<<uint(v)) != 0 }

// Expression is a parsed, immutable cron expression.
type Expression struct {
	raw    string
	fields [5]set
}

// String returns the expression as it was parsed.
func (e Expression) String() string { return e.raw }

// Parse validates expr and returns its compiled form.
func Parse(expr string) (Expression, error) {
	parts := strings.Fields(expr)
	if len(parts) != len(fieldSpecs) {
		return Expression{}, &ParseError{
			Expr:   expr,
			Reason: fmt.Sprintf("expected 5 fields, got %d", len(parts)),
		}
	}
	e := Expression{raw: strings.Join(parts, " ")}
	for i, p := range parts {
		s, reason := parseField(p, fieldSpecs[i])
		if reason != "" {
			return Expression{}, &ParseError{Expr: expr, Field: fieldSpecs[i].name, Value: p, Reason: reason}
		}
		e.fields[i] = s
	}
	return e, nil
}

// Validate reports whether expr is accepted by Parse.
func Validate(expr string) error {
	_, err := Parse(expr)
	return err
}

// Matches evaluates expr at t and fails closed: an expression that does not
// parse never matches.
func Matches(expr string, t time.Time) bool {
	e, err := Parse(expr)
	if err != nil {
		return false
	}
	return e.Matches(t)
}

// Matches reports whether every field agrees with t's wall clock in t's location.
func (e Expression) Matches(t time.Time) bool {
	return e.fields[0].has(t.Minute()) &&
		e.fields[1].has(t.Hour()) &&
		e.fields[2].has(t.Day()) &&
		e.fields[3].has(int(t.Month())) &&
		e.fields[4].has(int(t.Weekday()))
}

// Next returns the first matching minute strictly after `after`, evaluated in
// after's location. ok is false when nothing matches within the search horizon.
func (e Expression) Next(after time.Time) (next time.Time, ok bool) {
	loc := after.Location()
	t := time.Date(after.Year(), after.Month(), after.Day(), after.Hour(), after.Minute(), 0, 0, loc).Add(time.Minute)
	end := t.AddDate(searchHorizon, 0, 0)

	for t.Before(end) {
		var cand time.Time
		switch {
		case !e.fields[3].has(int(t.Month())):
			cand = time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, loc)
		case !e.fields[2].has(t.Day()) || !e.fields[4].has(int(t.Weekday())):
			cand = time.Date(t.Year(), t.Month(), t.Day()+1, 0, 0, 0, 0, loc)
		case !e.fields[1].has(t.Hour()):
			cand = time.Date(t.Year(), t.Month(), t.Day(), t.Hour()+1, 0, 0, 0, loc)
		case !e.fields[0].has(t.Minute()):
			cand = t.Add(time.Minute)
		default:
			return t, true
		}
		// DST gaps can normalise a constructed wall time backwards.
		if !cand.After(t) {
			cand = t.Add(time.Minute)
		}
		t = cand
	}
	return time.Time{}, false
}

func parseField(s string, spec fieldSpec) (set, string) {
	if s == "*" {
		return rangeSet(spec.min, spec.max), ""
	}
	var out set
	for _, item := range strings.Split(s, ",") {
		if item == "" {
			return 0, "empty list item"
		}
		lo, hi := item, item
		if i := strings.IndexByte(item, '-'); i >= 0 {
			lo, hi = item[:i], item[i+1:]
		}
		a, err := parseValue(lo, spec)
		if err != "" {
			return 0, err
		}
		b, err := parseValue(hi, spec)
		if err != "" {
			return 0, err
		}
		if a > b {
			return 0, fmt.Sprintf("range %d-%d is reversed", a, b)
		}
		out |= rangeSet(a, b)
	}
	return out, ""
}

// parseValue accepts only plain decimal digits within the field bounds.
func parseValue(s string, spec fieldSpec) (int, string) {
	if s == "" {
		return 0, "missing value"
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Sprintf("unsupported token %q", s)
		}
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Sprintf("invalid number %q", s)
	}
	if v < spec.min || v > spec.max {
		return 0, fmt.Sprintf("%d out of range %d-%d", v, spec.min, spec.max)
	}
	return v, ""
}

func rangeSet(lo, hi int) set {
	var s set
	for v := lo; v <= hi; v++ {
		s |= 1 << uint(v)
	}
	return s
}
