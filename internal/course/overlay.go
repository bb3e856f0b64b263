package course

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Overlay renders the route and its checkpoint markers for the map client.
func (c *Course) Overlay() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	line := make(orb.LineString, 0, len(c.Track))
	for _, p := range c.Track {
		line = append(line, orb.Point{p.Lng, p.Lat})
	}
	route := geojson.NewFeature(line)
	route.Properties["kind"] = "route"
	route.Properties["event_id"] = c.EventID
	route.Properties["name"] = c.Name
	route.Properties["distance_km"] = c.TotalKm
	fc.Append(route)

	for _, cp := range c.Checkpoints {
		pos, ok := c.PositionAt(cp.DistanceKm)
		if !ok {
			continue
		}
		f := geojson.NewFeature(orb.Point{pos.Lng, pos.Lat})
		f.Properties["kind"] = "checkpoint"
		f.Properties["name"] = cp.Name
		f.Properties["distance_km"] = cp.DistanceKm
		fc.Append(f)
	}
	return fc
}
