package upstream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// flexFloat accepts a JSON number, a numeric string, or null.
type flexFloat struct {
	Value float64
	Set   bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("distance %q: %w", s, err)
		}
		f.Value, f.Set = v, true
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("distance %s: %w", b, err)
	}
	f.Value, f.Set = v, true
	return nil
}

// flexString accepts a string, a number, or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(b)
	return nil
}

type wirePlayer struct {
	Name     string       `json:"name"`
	TeamName flexString   `json:"team_name"`
	Course   wireCourse   `json:"course"`
	Records  []wireRecord `json:"records"`
	NetTime  flexString   `json:"result_nettime"`
	Pace     flexString   `json:"pace_nettime"`
	Event    wireEvent    `json:"event"`
}

type wireCourse struct {
	Distance flexFloat `json:"distance"`
}

type wireRecord struct {
	Point     wirePoint  `json:"point"`
	TimePoint flexString `json:"time_point"`
}

type wirePoint struct {
	Name     string    `json:"name"`
	Distance flexFloat `json:"distance"`
}

type wireEvent struct {
	Date flexString `json:"date"`
}
