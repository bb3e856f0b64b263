package progress

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DefaultPaceSec is 6'30" per km.
const DefaultPaceSec = 390.0

// ParsePace reads a pace in seconds per km. Accepted forms are M'SS",
// H:MM:SS and MM:SS; fractional seconds are dropped. A zero pace is reported
// as unparsable.
func ParsePace(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}

	var secs int
	if strings.Contains(s, "'") {
		m, rest, _ := strings.Cut(s, "'")
		rest = strings.TrimRight(rest, `"`)
		mins, err := strconv.Atoi(strings.TrimSpace(m))
		if err != nil || mins < 0 {
			return 0, false
		}
		sec := 0
		if rest != "" {
			sec, err = strconv.Atoi(strings.TrimSpace(rest))
			if err != nil || sec < 0 || sec >= 60 {
				return 0, false
			}
		}
		secs = mins*60 + sec
	} else {
		parts := strings.Split(s, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return 0, false
		}
		for _, p := range parts {
			n, err := strconv.Atoi(p)
			if err != nil || n < 0 {
				return 0, false
			}
			secs = secs*60 + n
		}
	}

	if secs <= 0 {
		return 0, false
	}
	return float64(secs), true
}

// FormatPace renders seconds per km as M'SS".
func FormatPace(sec float64) string {
	total := int(math.Round(sec))
	if total < 0 {
		total = 0
	}
	return fmt.Sprintf(`%d'%02d"`, total/60, total%60)
}
