package course

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/go-playground/validator/v10"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"gopkg.in/yaml.v3"
)

const catalogueFile = "courses.yaml"

//go:embed assets
var assets embed.FS

type catalogue struct {
	Events []eventEntry `yaml:"events" validate:"dive"`
}

type eventEntry struct {
	ID          int          `yaml:"id" validate:"gt=0"`
	Name        string       `yaml:"name" validate:"required"`
	Track       string       `yaml:"track" validate:"required"`
	DistanceKm  float64      `yaml:"distance_km" validate:"gt=0"`
	Center      Point        `yaml:"center"`
	Checkpoints []Checkpoint `yaml:"checkpoints" validate:"dive"`
}

// Registry holds every known course keyed by event id.
type Registry struct {
	courses map[int]*Course
}

// DefaultRegistry loads the catalogue shipped with the binary, or the one in
// dir when dir is set.
func DefaultRegistry(dir string) (*Registry, error) {
	if dir != "" {
		return LoadRegistry(os.DirFS(dir))
	}
	sub, err := fs.Sub(assets, "assets")
	if err != nil {
		return nil, err
	}
	return LoadRegistry(sub)
}

func LoadRegistry(fsys fs.FS) (*Registry, error) {
	data, err := fs.ReadFile(fsys, catalogueFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", catalogueFile, err)
	}

	var cat catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parse %s: %w", catalogueFile, err)
	}
	if err := validator.New().Struct(cat); err != nil {
		return nil, fmt.Errorf("validate %s: %w", catalogueFile, err)
	}

	r := &Registry{courses: make(map[int]*Course, len(cat.Events))}
	for _, ev := range cat.Events {
		if _, dup := r.courses[ev.ID]; dup {
			return nil, fmt.Errorf("event %d listed twice", ev.ID)
		}
		track, err := readTrack(fsys, ev.Track)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", ev.ID, err)
		}

		checkpoints := append([]Checkpoint(nil), ev.Checkpoints...)
		sort.SliceStable(checkpoints, func(i, j int) bool {
			return checkpoints[i].DistanceKm < checkpoints[j].DistanceKm
		})

		r.courses[ev.ID] = &Course{
			EventID:     ev.ID,
			Name:        ev.Name,
			Center:      ev.Center,
			TotalKm:     ev.DistanceKm,
			Track:       track,
			Checkpoints: checkpoints,
		}
	}
	return r, nil
}

func (r *Registry) Load(eventID int) (*Course, error) {
	if r == nil {
		return nil, ErrCourseNotFound
	}
	c, ok := r.courses[eventID]
	if !ok {
		return nil, fmt.Errorf("event %d: %w", eventID, ErrCourseNotFound)
	}
	return c, nil
}

func (r *Registry) EventIDs() []int {
	ids := make([]int, 0, len(r.courses))
	for id := range r.courses {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// readTrack returns the vertices of the first line geometry in a GeoJSON
// feature collection.
func readTrack(fsys fs.FS, name string) ([]Point, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, fmt.Errorf("read track: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parse track %s: %w", name, err)
	}

	for _, f := range fc.Features {
		switch g := f.Geometry.(type) {
		case orb.LineString:
			return toPoints(g), nil
		case orb.MultiLineString:
			var pts []Point
			for _, ls := range g {
				pts = append(pts, toPoints(ls)...)
			}
			return pts, nil
		}
	}
	return nil, fmt.Errorf("track %s has no line geometry", name)
}

func toPoints(ls orb.LineString) []Point {
	pts := make([]Point, 0, len(ls))
	for _, p := range ls {
		pts = append(pts, Point{Lat: p.Lat(), Lng: p.Lon()})
	}
	return pts
}
