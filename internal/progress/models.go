package progress

import "time"

// DefaultCourseKm applies when the upstream record omits the course distance.
const DefaultCourseKm = 42.195

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

// Passage is one checkpoint crossing as reported by the timing provider.
type Passage struct {
	Checkpoint string  `json:"checkpoint" validate:"required"`
	DistanceKm float64 `json:"distance_km" validate:"gte=0"`
	TimeOfDay  string  `json:"time_of_day"`
	Date       string  `json:"date,omitempty"`
}

// Record is the normalized result of one upstream fetch. A newer record
// replaces the previous one for the same bib; records are never merged.
type Record struct {
	Bib              string    `json:"bib"`
	Name             string    `json:"name"`
	Team             string    `json:"team,omitempty"`
	CourseDistanceKm float64   `json:"course_distance_km"`
	Passages         []Passage `json:"passages"`
	NetTime          string    `json:"net_time,omitempty"`
	Pace             string    `json:"pace,omitempty"`
	EventDate        string    `json:"event_date,omitempty"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// Finished reports whether the provider has published a net finish time.
func (r Record) Finished() bool {
	return r.NetTime != ""
}

// Last returns the highest-distance passage. Passages are kept ascending.
func (r Record) Last() (Passage, bool) {
	if len(r.Passages) == 0 {
		return Passage{}, false
	}
	return r.Passages[len(r.Passages)-1], true
}

type Progress struct {
	Status         Status  `json:"status"`
	LastDistanceKm float64 `json:"last_distance_km"`
	LastCheckpoint string  `json:"last_checkpoint"`
	EstimatedKm    float64 `json:"estimated_km"`
}
