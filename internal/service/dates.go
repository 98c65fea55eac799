package service

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// DateRange is an inclusive [From, To] window in UTC
type DateRange struct {
	From time.Time
	To   time.Time
}

func NewDateRange(from, to time.Time) (DateRange, error) {
	if from.After(to) {
		return DateRange{}, fmt.Errorf("%w: %s is after %s", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}
	return DateRange{From: from.UTC(), To: to.UTC()}, nil
}

// ParseDateRange accepts YYYY-MM-DD, "YYYY-MM-DD HH:MM:SS" or RFC3339 bounds.
// A bare date as the upper bound covers that whole day. Zone-less values are read in loc.
func ParseDateRange(from, to string, loc *time.Location) (DateRange, error) {
	start, _, err := parseInstant(from, loc)
	if err != nil {
		return DateRange{}, err
	}
	end, dateOnly, err := parseInstant(to, loc)
	if err != nil {
		return DateRange{}, err
	}
	if dateOnly {
		end = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return NewDateRange(start, end)
}

func parseInstant(value string, loc *time.Location) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false, fmt.Errorf("%w: missing date", ErrInvalidRange)
	}
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		return t, true, nil
	}
	if t, err := time.ParseInLocation(dateTimeLayout, value, loc); err == nil {
		return t, false, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, fmt.Errorf("%w: cannot parse date %q", ErrInvalidRange, value)
}
