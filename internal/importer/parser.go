package importer

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"phantom-mask/internal/model"
)

var (
	ErrOpeningHours = errors.New("invalid opening hours")
	ErrMaskName     = errors.New("invalid mask name")
)

var (
	// "<days> HH:MM - HH:MM"
	hoursSegment = regexp.MustCompile(`^(.*?)\s*(\d{2}:\d{2})\s*-\s*(\d{2}:\d{2})$`)
	// "Name (color) (N per pack)"
	maskPattern = regexp.MustCompile(`^(.*?)\s*\((.*?)\)\s*\((\d+) per pack\)$`)
)

// week order as the data files write ranges: Mon first, Sun last
var weekOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday,
}

var dayAliases = map[string]time.Weekday{
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tues": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thur": time.Thursday, "thurs": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
	"sun": time.Sunday, "sunday": time.Sunday,
}

// ParseOpeningHours reads strings such as
// "Mon - Fri 08:00 - 17:00 / Sat, Sun 08:00 - 12:00" or "Mon, Wed 20:00 - 02:00".
// A close time earlier than the open time is kept as an overnight interval.
func ParseOpeningHours(s string) ([]model.OpeningHour, error) {
	var hours []model.OpeningHour
	for _, segment := range strings.Split(s, "/") {
		segment = strings.TrimSpace(segment)
		if segment == "" {
			continue
		}
		m := hoursSegment.FindStringSubmatch(segment)
		if m == nil {
			return nil, fmt.Errorf("%w: %q", ErrOpeningHours, segment)
		}

		open, err := model.ParseClock(m[2])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpeningHours, err)
		}
		closing, err := model.ParseClock(m[3])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOpeningHours, err)
		}

		days, err := parseDays(m[1])
		if err != nil {
			return nil, err
		}
		for _, d := range days {
			hours = append(hours, model.OpeningHour{
				Weekday:     int(d),
				OpenMinute:  open,
				CloseMinute: closing,
			})
		}
	}
	if len(hours) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrOpeningHours, s)
	}
	return hours, nil
}

// parseDays expands "Mon - Fri", "Sat, Sun" and mixes of both
func parseDays(s string) ([]time.Weekday, error) {
	var days []time.Weekday
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if from, to, ok := strings.Cut(part, "-"); ok {
			start, err := lookupDay(from)
			if err != nil {
				return nil, err
			}
			end, err := lookupDay(to)
			if err != nil {
				return nil, err
			}
			days = append(days, dayRange(start, end)...)
			continue
		}
		d, err := lookupDay(part)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w: no weekday in %q", ErrOpeningHours, s)
	}
	return days, nil
}

func lookupDay(s string) (time.Weekday, error) {
	d, ok := dayAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return 0, fmt.Errorf("%w: unknown weekday %q", ErrOpeningHours, strings.TrimSpace(s))
	}
	return d, nil
}

// dayRange walks Mon..Sun order and wraps, so "Sat - Mon" is Sat, Sun, Mon
func dayRange(start, end time.Weekday) []time.Weekday {
	idx := func(d time.Weekday) int {
		return (int(d) + 6) % 7
	}
	var out []time.Weekday
	for i := idx(start); ; i = (i + 1) % 7 {
		out = append(out, weekOrder[i])
		if i == idx(end) {
			return out
		}
	}
}

type MaskSpec struct {
	Name     string
	Color    string
	PackSize int
}

// ParseMaskName splits "True Barrier (green) (3 per pack)"
func ParseMaskName(s string) (MaskSpec, error) {
	m := maskPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return MaskSpec{}, fmt.Errorf("%w: %q", ErrMaskName, s)
	}
	pack, err := strconv.Atoi(m[3])
	if err != nil || pack <= 0 {
		return MaskSpec{}, fmt.Errorf("%w: pack size in %q", ErrMaskName, s)
	}
	name := strings.TrimSpace(m[1])
	if name == "" {
		return MaskSpec{}, fmt.Errorf("%w: empty name in %q", ErrMaskName, s)
	}
	return MaskSpec{Name: name, Color: strings.TrimSpace(m[2]), PackSize: pack}, nil
}
