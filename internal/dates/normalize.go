// Package dates turns the free-text dates found on job boards into timestamps.
package dates

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// absoluteLayouts is tried in order; the first layout that parses wins.
// Day-first layouts come before month-first ones, so "03/04/2024" is 3 April.
var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"2/1/2006",        // dd/MM/yyyy
	"1/2/2006",        // MM/dd/yyyy
	"2 Jan 2006",      // dd MMM yyyy
	"Jan 2, 2006",     // MMM dd, yyyy
	"2-1-2006",        // dd-MM-yyyy
	"2006/1/2",        // yyyy/MM/dd
	"2 January 2006",  // dd MMMM yyyy
	"January 2, 2006", // MMMM dd, yyyy
}

var (
	agoPattern    = regexp.MustCompile(`(?i)\b(\d+)\s+(day|week|month|year)s?\s+ago\b`)
	futurePattern = regexp.MustCompile(`(?i)\bin\s+(\d+)\s+(day|week|month|year)s?\b`)
	spaceRun      = regexp.MustCompile(`\s+`)
)

// Normalize parses scraped date text. Absolute dates are read in now's location;
// relative phrases such as "3 days ago" are resolved against now.
// It reports false when the text matches nothing, leaving the fallback to the caller.
func Normalize(text string, now time.Time) (time.Time, bool) {
	text = clean(text)
	if text == "" {
		return time.Time{}, false
	}

	for _, layout := range absoluteLayouts {
		if t, err := time.ParseInLocation(layout, text, now.Location()); err == nil {
			return t, true
		}
	}

	if m := agoPattern.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return time.Time{}, false
		}
		return shift(now, strings.ToLower(m[2]), -n), true
	}

	return time.Time{}, false
}

// IsFutureRelative reports whether text uses forward-looking phrasing like
// "in 5 days". Normalize does not resolve these; callers use it to log the miss.
func IsFutureRelative(text string) bool {
	return futurePattern.MatchString(text)
}

func shift(t time.Time, unit string, n int) time.Time {
	switch unit {
	case "day":
		return t.AddDate(0, 0, n)
	case "week":
		return t.AddDate(0, 0, 7*n)
	case "month":
		return t.AddDate(0, n, 0)
	case "year":
		return t.AddDate(n, 0, 0)
	}
	return t
}

func clean(text string) string {
	text = strings.TrimSpace(text)
	return spaceRun.ReplaceAllString(text, " ")
}
