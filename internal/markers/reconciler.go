package markers

import (
	"log/slog"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"backend-runcheer/internal/course"
	"backend-runcheer/internal/progress"
)

// Reconciler keeps the rendered marker set and results table in step with
// the latest estimate per bib. It is not safe for concurrent use; a tracking
// session owns exactly one.
type Reconciler struct {
	course   *course.Course
	renderer Renderer
	logger   *slog.Logger
	collator *collate.Collator

	profiles map[string]Profile
	markers  map[string]*Marker
	rows     map[string]Row
}

// NewReconciler builds a reconciler. A nil course means table-only tracking.
func NewReconciler(c *course.Course, r Renderer, profiles []Profile, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	rc := &Reconciler{
		course:   c,
		renderer: r,
		logger:   logger,
		collator: collate.New(language.Korean),
		profiles: make(map[string]Profile, len(profiles)),
		markers:  map[string]*Marker{},
		rows:     map[string]Row{},
	}
	for _, p := range profiles {
		rc.profiles[p.Bib] = p
	}
	return rc
}

// Apply renders one estimate. Nothing happens until the runner has covered
// some distance.
func (rc *Reconciler) Apply(bib string, rec progress.Record, est progress.Progress) {
	if est.EstimatedKm == 0 {
		return
	}
	// A superseding record can extrapolate short of what is already shown.
	// Unfinished runners hold their shown distance until the estimate catches up.
	if prev, ok := rc.rows[bib]; ok && est.Status != progress.StatusFinished && prev.EstimatedKm > est.EstimatedKm {
		est.EstimatedKm = prev.EstimatedKm
	}

	rc.rows[bib] = rc.row(bib, rec, est)
	rc.place(bib, rec, est)
	rc.renderer.RenderResults(rc.Results())
}

func (rc *Reconciler) place(bib string, rec progress.Record, est progress.Progress) {
	if rc.course == nil {
		return
	}
	pos, ok := rc.course.PositionAt(est.EstimatedKm)
	if !ok {
		rc.logger.Warn("no position on course", "bib", bib, "km", est.EstimatedKm, "event_id", rc.course.EventID)
		return
	}

	if m, ok := rc.markers[bib]; ok {
		m.Position = pos
		m.Progress = est
		m.Record = rec
		m.Popup = rc.popup(bib, rec, est)
		rc.renderer.MoveMarker(*m)
		return
	}

	m := &Marker{
		Bib:      bib,
		Label:    rc.displayName(bib, rec),
		Position: pos,
		Progress: est,
		Record:   rec,
		Popup:    rc.popup(bib, rec, est),
	}
	rc.markers[bib] = m
	rc.renderer.CreateMarker(*m)
}

// Results returns the ranked table: unfinished runners first, then by name
// in Korean collation order, bib breaking ties.
func (rc *Reconciler) Results() []Row {
	rows := make([]Row, 0, len(rc.rows))
	for _, r := range rc.rows {
		rows = append(rows, r)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.Finished != b.Finished {
			return !a.Finished
		}
		if c := rc.collator.CompareString(a.Name, b.Name); c != 0 {
			return c < 0
		}
		return a.Bib < b.Bib
	})
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows
}

// Markers returns a copy of the live marker set.
func (rc *Reconciler) Markers() []Marker {
	out := make([]Marker, 0, len(rc.markers))
	for _, m := range rc.markers {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bib < out[j].Bib })
	return out
}

// Reset removes every marker and clears the table.
func (rc *Reconciler) Reset() {
	for bib := range rc.markers {
		rc.renderer.RemoveMarker(bib)
	}
	rc.markers = map[string]*Marker{}
	rc.rows = map[string]Row{}
	rc.renderer.RenderResults(nil)
}

func (rc *Reconciler) row(bib string, rec progress.Record, est progress.Progress) Row {
	r := Row{
		Bib:            bib,
		Name:           rc.displayName(bib, rec),
		Team:           rec.Team,
		Status:         est.Status,
		LastCheckpoint: est.LastCheckpoint,
		LastDistanceKm: est.LastDistanceKm,
		EstimatedKm:    est.EstimatedKm,
		NetTime:        rec.NetTime,
		Finished:       est.Status == progress.StatusFinished,
	}
	if sec, ok := progress.ParsePace(rec.Pace); ok {
		r.Pace = progress.FormatPace(sec)
	}
	return r
}

func (rc *Reconciler) popup(bib string, rec progress.Record, est progress.Progress) Popup {
	p := rc.profiles[bib]
	return Popup{
		Name:               rc.displayName(bib, rec),
		Bib:                bib,
		LastCheckpoint:     est.LastCheckpoint,
		LastDistanceKm:     est.LastDistanceKm,
		EstimatedKm:        est.EstimatedKm,
		ProfilePhotoURL:    p.ProfilePhotoURL,
		CheckpointPhotoURL: p.CheckpointPhotoURL,
	}
}

func (rc *Reconciler) displayName(bib string, rec progress.Record) string {
	if rec.Name != "" && rec.Name != bib {
		return rec.Name
	}
	if p, ok := rc.profiles[bib]; ok && p.Name != "" {
		return p.Name
	}
	return bib
}
