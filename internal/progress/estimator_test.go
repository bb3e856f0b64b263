package progress

import (
	"math"
	"testing"
	"time"
)

var seoul = time.FixedZone("KST", 9*3600)

func runner(passages ...Passage) Record {
	return Record{
		Bib:              "1001",
		Name:             "Kim",
		CourseDistanceKm: 42.195,
		Passages:         passages,
		Pace:             `6'00"`,
		EventDate:        "2025-10-26",
	}
}

func TestEstimateRunningExtrapolatesFromLastPassage(t *testing.T) {
	e := NewEstimator(seoul)
	rec := runner(Passage{Checkpoint: "5K", DistanceKm: 5.0, TimeOfDay: "15:00:00"})
	now := time.Date(2025, 10, 26, 15, 12, 0, 0, seoul)

	got := e.Estimate(rec, now)
	if got.Status != StatusRunning {
		t.Fatalf("expected running, got %s", got.Status)
	}
	if math.Abs(got.EstimatedKm-7.0) > 1e-9 {
		t.Fatalf("expected 7.0 km, got %v", got.EstimatedKm)
	}
	if got.LastDistanceKm != 5.0 || got.LastCheckpoint != "5K" {
		t.Fatalf("unexpected last passage %+v", got)
	}
}

func TestEstimateFinishedStaysAtLastPassage(t *testing.T) {
	e := NewEstimator(seoul)
	rec := runner(Passage{Checkpoint: "Finish", DistanceKm: 42.195, TimeOfDay: "12:00:00"})
	rec.NetTime = "03:59:59"

	got := e.Estimate(rec, time.Date(2025, 10, 26, 18, 0, 0, 0, seoul))
	if got.Status != StatusFinished || got.EstimatedKm != 42.195 {
		t.Fatalf("expected finished at 42.195, got %+v", got)
	}
}

func TestEstimateWithoutPassagesIsWaiting(t *testing.T) {
	got := NewEstimator(seoul).Estimate(runner(), time.Now())
	if got != (Progress{Status: StatusWaiting}) {
		t.Fatalf("expected zero waiting progress, got %+v", got)
	}
}

func TestEstimateClampsFutureTimestamp(t *testing.T) {
	e := NewEstimator(seoul)
	rec := runner(Passage{Checkpoint: "10K", DistanceKm: 10, TimeOfDay: "16:00:00"})

	got := e.Estimate(rec, time.Date(2025, 10, 26, 15, 0, 0, 0, seoul))
	if got.EstimatedKm != 10 {
		t.Fatalf("expected clamp to last distance, got %v", got.EstimatedKm)
	}
}

func TestEstimateCapsAtCourseTotal(t *testing.T) {
	e := NewEstimator(seoul)
	rec := runner(Passage{Checkpoint: "40K", DistanceKm: 40, TimeOfDay: "09:00:00"})

	got := e.Estimate(rec, time.Date(2025, 10, 26, 14, 0, 0, 0, seoul))
	if got.EstimatedKm != 42.195 {
		t.Fatalf("expected cap at course total, got %v", got.EstimatedKm)
	}

	rec.CourseDistanceKm = 0
	got = e.Estimate(rec, time.Date(2025, 10, 26, 14, 0, 0, 0, seoul))
	if got.EstimatedKm != DefaultCourseKm {
		t.Fatalf("expected default course cap, got %v", got.EstimatedKm)
	}
}

func TestEstimateIsMonotonicInTime(t *testing.T) {
	e := NewEstimator(seoul)
	rec := runner(Passage{Checkpoint: "Half", DistanceKm: 21.1, TimeOfDay: "10:30:00"})

	prev := 0.0
	for m := 0; m < 300; m += 7 {
		now := time.Date(2025, 10, 26, 10, 0, 0, 0, seoul).Add(time.Duration(m) * time.Minute)
		got := e.Estimate(rec, now)
		if got.EstimatedKm < prev || got.EstimatedKm < got.LastDistanceKm {
			t.Fatalf("estimate regressed at +%dm: %v < %v", m, got.EstimatedKm, prev)
		}
		if got.EstimatedKm > rec.CourseDistanceKm {
			t.Fatalf("estimate exceeded course at +%dm: %v", m, got.EstimatedKm)
		}
		prev = got.EstimatedKm
	}
}

func TestEstimateFallsBackToDefaultPace(t *testing.T) {
	e := NewEstimator(seoul)
	now := time.Date(2025, 10, 26, 15, 6, 30, 0, seoul)

	for _, pace := range []string{"", "fast", "0:00", `0'00"`} {
		rec := runner(Passage{Checkpoint: "5K", DistanceKm: 5, TimeOfDay: "15:00:00"})
		rec.Pace = pace
		got := e.Estimate(rec, now)
		if math.Abs(got.EstimatedKm-6.0) > 1e-9 {
			t.Fatalf("pace %q: expected 6.0 km at default pace, got %v", pace, got.EstimatedKm)
		}
	}
}

func TestEstimateMissingTimestampMeansNoElapsed(t *testing.T) {
	e := NewEstimator(seoul)
	rec := runner(Passage{Checkpoint: "5K", DistanceKm: 5})
	rec.EventDate = ""

	got := e.Estimate(rec, time.Now())
	if got.Status != StatusRunning || got.EstimatedKm != 5 {
		t.Fatalf("expected running at last distance, got %+v", got)
	}

	rec = runner(Passage{Checkpoint: "5K", DistanceKm: 5, TimeOfDay: "noon"})
	if got := e.Estimate(rec, time.Now()); got.EstimatedKm != 5 {
		t.Fatalf("expected unparsable time to yield no elapsed, got %v", got.EstimatedKm)
	}
}

func TestEstimateUsesEventZone(t *testing.T) {
	rec := runner(Passage{Checkpoint: "5K", DistanceKm: 5, TimeOfDay: "15:00:00"})
	now := time.Date(2025, 10, 26, 6, 12, 0, 0, time.UTC)

	got := NewEstimator(seoul).Estimate(rec, now)
	if math.Abs(got.EstimatedKm-7.0) > 1e-9 {
		t.Fatalf("expected 7.0 km with KST passage, got %v", got.EstimatedKm)
	}
}

func TestEstimatePassageDateOverridesEventDate(t *testing.T) {
	rec := runner(Passage{Checkpoint: "5K", DistanceKm: 5, TimeOfDay: "15:00:00", Date: "2025.10.27"})
	now := time.Date(2025, 10, 27, 15, 6, 0, 0, seoul)

	got := NewEstimator(seoul).Estimate(rec, now)
	if math.Abs(got.EstimatedKm-6.0) > 1e-9 {
		t.Fatalf("expected 6.0 km, got %v", got.EstimatedKm)
	}
}
