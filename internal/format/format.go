// Package format renders episode durations and dates for display.
package format

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ReleaseDateLayout renders dates such as "Jul 6, 2023".
const ReleaseDateLayout = "Jan 2, 2006"

// Duration renders a non-negative number of seconds as "{H}h {M}m {S}s".
// Zero units are trimmed from both ends while interior zero units are kept,
// so 3600 is "1h" and 3605 is "1h 0m 5s". Zero seconds renders as "0s".
// Negative input violates the precondition and panics.
func Duration(seconds int) string {
	if seconds < 0 {
		panic(fmt.Sprintf("format: negative duration %d", seconds))
	}

	values := [3]int{seconds / 3600, (seconds % 3600) / 60, seconds % 60}
	units := [3]string{"h", "m", "s"}

	first, last := -1, -1
	for i, v := range values {
		if v == 0 {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	if first < 0 {
		return "0s"
	}

	parts := make([]string, 0, last-first+1)
	for i := first; i <= last; i++ {
		parts = append(parts, strconv.Itoa(values[i])+units[i])
	}
	return strings.Join(parts, " ")
}

// Clock renders seconds as HH:MM:SS for the itunes:duration feed field.
func Clock(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	return fmt.Sprintf("%02d:%02d:%02d", seconds/3600, (seconds%3600)/60, seconds%60)
}

// ReleaseDate renders a release timestamp as "Mon D, YYYY".
func ReleaseDate(t time.Time) string {
	return t.Format(ReleaseDateLayout)
}
