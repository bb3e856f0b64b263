package markers

import (
	"encoding/json"
	"log/slog"
)

const (
	EventMarkerCreated = "marker.created"
	EventMarkerMoved   = "marker.moved"
	EventMarkerRemoved = "marker.removed"
	EventResults       = "results"
)

// Publisher fans a payload out to every viewer of a group.
type Publisher interface {
	Broadcast(code string, payload []byte)
}

// Event is the websocket frame sent to browsers.
type Event struct {
	Type   string  `json:"type"`
	Marker *Marker `json:"marker,omitempty"`
	Bib    string  `json:"bib,omitempty"`
	Rows   []Row   `json:"rows,omitempty"`
}

// HubRenderer turns renderer calls into events for one group's viewers.
type HubRenderer struct {
	pub    Publisher
	code   string
	logger *slog.Logger
}

func NewHubRenderer(pub Publisher, code string, logger *slog.Logger) *HubRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HubRenderer{pub: pub, code: code, logger: logger}
}

func (h *HubRenderer) CreateMarker(m Marker) {
	h.send(Event{Type: EventMarkerCreated, Marker: &m, Bib: m.Bib})
}

func (h *HubRenderer) MoveMarker(m Marker) {
	h.send(Event{Type: EventMarkerMoved, Marker: &m, Bib: m.Bib})
}

func (h *HubRenderer) RemoveMarker(bib string) {
	h.send(Event{Type: EventMarkerRemoved, Bib: bib})
}

func (h *HubRenderer) RenderResults(rows []Row) {
	h.send(Event{Type: EventResults, Rows: rows})
}

func (h *HubRenderer) send(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Error("encode marker event", "type", ev.Type, "group", h.code, "err", err)
		return
	}
	h.pub.Broadcast(h.code, payload)
}

// Snapshot encodes the current state for a viewer that joins mid-session.
func Snapshot(markers []Marker, rows []Row) [][]byte {
	out := make([][]byte, 0, len(markers)+1)
	for i := range markers {
		if b, err := json.Marshal(Event{Type: EventMarkerCreated, Marker: &markers[i], Bib: markers[i].Bib}); err == nil {
			out = append(out, b)
		}
	}
	if b, err := json.Marshal(Event{Type: EventResults, Rows: rows}); err == nil {
		out = append(out, b)
	}
	return out
}
