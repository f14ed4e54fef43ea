package normalize

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrUnparsableDate is returned when a date value cannot be read as year[-month[-day]].
var ErrUnparsableDate = errors.New("unparsable date")

var (
	rangeContinuation = regexp.MustCompile(`(?i)\s+au\s+.*$`)
	datePattern       = regexp.MustCompile(`^(\d{4})(?:-(\d{1,2})(?:-(\d{1,2}))?)?$`)
)

// Date is a calendar day without time zone.
type Date struct {
	Year  int
	Month int
	Day   int
}

func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// IndexValue renders the date the way the search index stores dates.
func (d Date) IndexValue() string {
	return d.String() + "T00:00:00Z"
}

// Time returns midnight UTC on d.
func (d Date) Time() time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// ParseDate reads a date attribute value. Missing or "00" month and day default to 1,
// ranges ("1793-05-17 au 1793-06-02", "1793-05-17/18") keep their first date.
func ParseDate(raw string) (Date, error) {
	s := strings.TrimSpace(raw)
	s = rangeContinuation.ReplaceAllString(s, "")
	s = hyphenSpaces.ReplaceAllString(s, "-")
	if i := strings.IndexByte(s, '/'); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(s)

	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return Date{}, fmt.Errorf("%w: %q", ErrUnparsableDate, raw)
	}

	d := Date{Month: 1, Day: 1}
	d.Year, _ = strconv.Atoi(m[1])
	if m[2] != "" {
		if n, _ := strconv.Atoi(m[2]); n != 0 {
			d.Month = n
		}
	}
	if m[3] != "" {
		if n, _ := strconv.Atoi(m[3]); n != 0 {
			d.Day = n
		}
	}

	if d.Month > 12 {
		return Date{}, fmt.Errorf("%w: month out of range in %q", ErrUnparsableDate, raw)
	}
	if last := time.Date(d.Year, time.Month(d.Month)+1, 0, 0, 0, 0, 0, time.UTC).Day(); d.Day > last {
		return Date{}, fmt.Errorf("%w: day out of range in %q", ErrUnparsableDate, raw)
	}
	return d, nil
}
