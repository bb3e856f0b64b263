package markers

import (
	"backend-runcheer/internal/course"
	"backend-runcheer/internal/progress"
)

// Renderer draws the live view. Implementations must not block for long;
// they are called from a tracking session's loop.
type Renderer interface {
	CreateMarker(m Marker)
	MoveMarker(m Marker)
	RemoveMarker(bib string)
	RenderResults(rows []Row)
}

// Profile holds the per-runner values captured once when tracking starts.
type Profile struct {
	Bib                string `json:"bib"`
	Name               string `json:"name"`
	ProfilePhotoURL    string `json:"profile_photo_url,omitempty"`
	CheckpointPhotoURL string `json:"checkpoint_photo_url,omitempty"`
}

type Popup struct {
	Name               string  `json:"name"`
	Bib                string  `json:"bib"`
	LastCheckpoint     string  `json:"last_checkpoint"`
	LastDistanceKm     float64 `json:"last_distance_km"`
	EstimatedKm        float64 `json:"estimated_km"`
	ProfilePhotoURL    string  `json:"profile_photo_url,omitempty"`
	CheckpointPhotoURL string  `json:"checkpoint_photo_url,omitempty"`
}

type Marker struct {
	Bib      string            `json:"bib"`
	Label    string            `json:"label"`
	Position course.Point      `json:"position"`
	Progress progress.Progress `json:"progress"`
	Record   progress.Record   `json:"-"`
	Popup    Popup             `json:"popup"`
}

type Row struct {
	Rank           int             `json:"rank"`
	Bib            string          `json:"bib"`
	Name           string          `json:"name"`
	Team           string          `json:"team,omitempty"`
	Status         progress.Status `json:"status"`
	LastCheckpoint string          `json:"last_checkpoint"`
	LastDistanceKm float64         `json:"last_distance_km"`
	EstimatedKm    float64         `json:"estimated_km"`
	NetTime        string          `json:"net_time,omitempty"`
	Pace           string          `json:"pace,omitempty"`
	Finished       bool            `json:"finished"`
}
