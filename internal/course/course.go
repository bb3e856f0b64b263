package course

import (
	"errors"

	"backend-runcheer/internal/shared/geo"
)

// ErrCourseNotFound means the event has no registered course. Tracking still
// works without it; only geographic placement is unavailable.
var ErrCourseNotFound = errors.New("course not found")

type Point struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

type Checkpoint struct {
	Name       string  `json:"name" yaml:"name" validate:"required"`
	DistanceKm float64 `json:"distance_km" yaml:"distance_km" validate:"gte=0"`
}

type Course struct {
	EventID     int          `json:"event_id"`
	Name        string       `json:"name"`
	Center      Point        `json:"center"`
	TotalKm     float64      `json:"total_km"`
	Track       []Point      `json:"-"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// PositionAt resolves a distance along this course's track.
func (c *Course) PositionAt(km float64) (Point, bool) {
	if c == nil {
		return Point{}, false
	}
	return PositionAtDistance(c.Track, km)
}

// PositionAtDistance walks the polyline accumulating haversine segment
// lengths and interpolates linearly in lat/lng space inside the segment that
// reaches km. Distances past the end clamp to the last vertex. An empty track
// has no position.
func PositionAtDistance(track []Point, km float64) (Point, bool) {
	if len(track) == 0 {
		return Point{}, false
	}
	if km <= 0 {
		return track[0], true
	}

	walked := 0.0
	for i := 1; i < len(track); i++ {
		prev, cur := track[i-1], track[i]
		seg := geo.HaversineKm(prev.Lat, prev.Lng, cur.Lat, cur.Lng)
		if seg == 0 {
			continue
		}
		if walked+seg >= km {
			ratio := (km - walked) / seg
			return Point{
				Lat: prev.Lat + (cur.Lat-prev.Lat)*ratio,
				Lng: prev.Lng + (cur.Lng-prev.Lng)*ratio,
			}, true
		}
		walked += seg
	}
	return track[len(track)-1], true
}

// LengthKm is the summed haversine length of the polyline.
func LengthKm(track []Point) float64 {
	total := 0.0
	for i := 1; i < len(track); i++ {
		total += geo.HaversineKm(track[i-1].Lat, track[i-1].Lng, track[i].Lat, track[i].Lng)
	}
	return total
}
