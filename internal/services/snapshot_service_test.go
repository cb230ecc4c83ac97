package services

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/codyseavey/tcg-sorter/backend/internal/models"
)

func TestSnapshotService_TakeSnapshotUpsertsDaily(t *testing.T) {
	db := testDB(t)
	tracker := NewPriceTracker(db, nil, time.Hour, 1)
	snapshots := NewSnapshotService(db, tracker)
	ctx := context.Background()

	seedCards(t, db,
		models.Card{ID: "bulk", Name: "Opt", PriceUSD: usd(0.10)},
		models.Card{ID: "high", Name: "Snapcaster Mage", PriceUSD: usd(20)},
	)
	seedScans(t, db, nil, "bulk", "bulk", "high")

	first, err := snapshots.TakeSnapshot(ctx)
	if err != nil {
		t.Fatalf("TakeSnapshot returned error: %v", err)
	}
	if first.TotalCards != 3 || first.UniqueCards != 2 || first.BulkCards != 2 || first.HighCards != 1 {
		t.Errorf("unexpected snapshot: %+v", first)
	}

	seedScans(t, db, nil, "high")
	second, err := snapshots.TakeSnapshot(ctx)
	if err != nil {
		t.Fatalf("second TakeSnapshot returned error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected same-day snapshot to be updated, got ids %d and %d", first.ID, second.ID)
	}

	history, err := snapshots.GetHistory(ctx, "week")
	if err != nil {
		t.Fatalf("GetHistory returned error: %v", err)
	}
	if len(history) != 1 || history[0].TotalCards != 4 || history[0].HighCards != 2 {
		t.Errorf("expected one updated snapshot, got %+v", history)
	}

	last := snapshots.GetLastSnapshot(ctx)
	if last == nil || math.Abs(last.TotalValue-40.2) > 1e-9 {
		t.Errorf("expected last snapshot value 40.20, got %+v", last)
	}
}

func TestSnapshotService_CheckWaitsForSnapshotHour(t *testing.T) {
	db := testDB(t)
	snapshots := NewSnapshotService(db, NewPriceTracker(db, nil, time.Hour, 1))
	ctx := context.Background()

	morning := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	snapshots.now = func() time.Time { return morning }
	snapshots.checkAndSnapshot(ctx)
	if snapshots.GetLastSnapshot(ctx) != nil {
		t.Fatal("expected no snapshot before the snapshot hour")
	}

	night := time.Date(2026, 3, 14, 23, 30, 0, 0, time.Local)
	snapshots.now = func() time.Time { return night }
	snapshots.checkAndSnapshot(ctx)
	if snapshots.GetLastSnapshot(ctx) == nil {
		t.Error("expected a snapshot after the snapshot hour")
	}
}
