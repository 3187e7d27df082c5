// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package legacy

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/tomtom215/tourtracker/internal/tour"
	"github.com/tomtom215/tourtracker/internal/wal"
)

type creditRow struct {
	steam64 string
	ts      int64
	mission int
	wave    int
}

// writeLegacyDB creates a database with the legacy schema. medals nil
// leaves out the MedalOwners table.
func writeLegacyDB(t *testing.T, credits []creditRow, medals [][2]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tour.sq3")
	db, err := sql.Open(driverName, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = db.Close() }()

	if _, err := db.Exec("CREATE TABLE WaveCredits (Steam64 Text, TimeStamp Int, MissionIndex Int, WaveNumber Int)"); err != nil {
		t.Fatalf("create WaveCredits: %v", err)
	}
	for _, c := range credits {
		if _, err := db.Exec("INSERT INTO WaveCredits (Steam64, TimeStamp, MissionIndex, WaveNumber) VALUES (?,?,?,?)",
			c.steam64, c.ts, c.mission, c.wave); err != nil {
			t.Fatalf("insert credit: %v", err)
		}
	}
	if medals != nil {
		if _, err := db.Exec("CREATE TABLE MedalOwners (Steam64 Text, TimeStamp Int)"); err != nil {
			t.Fatalf("create MedalOwners: %v", err)
		}
		for _, m := range medals {
			if _, err := db.Exec("INSERT INTO MedalOwners (Steam64, TimeStamp) VALUES (?,?)", m[0], m[1]); err != nil {
				t.Fatalf("insert medal: %v", err)
			}
		}
	}
	return path
}

type fakeSink struct {
	batches [][]tour.Event
	grants  []wal.Grant
	err     error
}

func (f *fakeSink) AppendCredits(_ context.Context, events []tour.Event) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]tour.Event(nil), events...))
	return nil
}

func (f *fakeSink) AppendGrant(_ context.Context, g wal.Grant) error {
	f.grants = append(f.grants, g)
	return nil
}

func (f *fakeSink) credits() []tour.Event {
	var all []tour.Event
	for _, b := range f.batches {
		all = append(all, b...)
	}
	return all
}

func testCatalog(t *testing.T) *tour.Catalog {
	t.Helper()
	c, err := tour.NewCatalog([]tour.Mission{{Name: "a", Waves: 3}, {Name: "b", Waves: 2}})
	if err != nil {
		t.Fatalf("NewCatalog: %v", err)
	}
	return c
}

func TestOpenMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.sq3")
	db, err := sql.Open(driverName, path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE Other (x Int)"); err != nil {
		t.Fatal(err)
	}
	_ = db.Close()

	_, err = Open(context.Background(), path)
	if !errors.Is(err, ErrMissingTable) {
		t.Errorf("Open() error = %v, want ErrMissingTable", err)
	}
}

func TestReaderCreditsInRowOrder(t *testing.T) {
	path := writeLegacyDB(t, []creditRow{
		{"76561198000000002", 200, 1, 0},
		{"76561198000000001", 100, 0, 2},
		{"not-a-number", 150, 0, 0},
		{"76561198000000001", 300, 0, 1},
	}, nil)

	r, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	if r.HasMedals() {
		t.Error("HasMedals() = true without MedalOwners table")
	}

	var (
		got  []tour.Event
		rows []int64
		bad  []string
	)
	err = r.Credits(context.Background(), 0, func(rowID int64, ev tour.Event) error {
		rows = append(rows, rowID)
		got = append(got, ev)
		return nil
	}, func(_ int64, raw string) { bad = append(bad, raw) })
	if err != nil {
		t.Fatalf("Credits: %v", err)
	}

	want := []tour.Event{
		{Participant: 76561198000000002, Timestamp: 200, Mission: 1, Wave: 0},
		{Participant: 76561198000000001, Timestamp: 100, Mission: 0, Wave: 2},
		{Participant: 76561198000000001, Timestamp: 300, Mission: 0, Wave: 1},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d credits, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("credit %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if rows[0] != 1 || rows[2] != 4 {
		t.Errorf("row ids = %v, want [1 2 4]", rows)
	}
	if len(bad) != 1 || bad[0] != "not-a-number" {
		t.Errorf("bad = %v", bad)
	}

	medals, err := r.Medals(context.Background())
	if err != nil || medals != nil {
		t.Errorf("Medals() = %v, %v; want nil, nil", medals, err)
	}
}

func TestImport(t *testing.T) {
	path := writeLegacyDB(t, []creditRow{
		{"1001", 10, 0, 1},
		{"1001", 11, 0, 2},
		{"1001", 12, 0, 3},
		{"1001", 13, 5, 1}, // unknown mission
		{"1002", 14, 1, 3}, // wave out of range
		{"", 15, 0, 1},
		{"1002", 16, 1, 2},
	}, [][2]any{{"1001", int64(1700000000)}, {"bogus", int64(1)}})

	r, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	sink := &fakeSink{}
	stats, err := Import(context.Background(), r, sink, testCatalog(t), Options{BatchSize: 2})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	if stats.TotalRecords != 7 {
		t.Errorf("TotalRecords = %d, want 7", stats.TotalRecords)
	}
	if stats.Imported != 4 || stats.Invalid != 2 || stats.BadIDs != 1 {
		t.Errorf("stats = %+v, want 4 imported, 2 invalid, 1 bad id", stats)
	}
	if stats.LastProcessedID != 7 {
		t.Errorf("LastProcessedID = %d, want 7", stats.LastProcessedID)
	}
	if len(sink.batches) != 2 {
		t.Errorf("batches = %d, want 2", len(sink.batches))
	}
	credits := sink.credits()
	if len(credits) != 4 || credits[3].Participant != 1002 || credits[3].Wave != 2 {
		t.Errorf("credits = %+v", credits)
	}

	if stats.Medals != 1 || len(sink.grants) != 1 {
		t.Fatalf("medals = %d, grants = %d; want 1, 1", stats.Medals, len(sink.grants))
	}
	if g := sink.grants[0]; g.Participant != 1001 || g.GrantedAt.Unix() != 1700000000 {
		t.Errorf("grant = %+v", g)
	}
}

func TestImportDryRunAndResume(t *testing.T) {
	path := writeLegacyDB(t, []creditRow{
		{"1001", 10, 0, 1},
		{"1001", 11, 0, 2},
		{"1001", 12, 0, 3},
	}, [][2]any{{"1001", int64(5)}})

	r, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	sink := &fakeSink{}
	stats, err := Import(context.Background(), r, sink, testCatalog(t), Options{DryRun: true})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Imported != 3 || stats.Medals != 1 {
		t.Errorf("dry run stats = %+v", stats)
	}
	if len(sink.batches) != 0 || len(sink.grants) != 0 {
		t.Error("dry run wrote to sink")
	}

	stats, err = Import(context.Background(), r, sink, testCatalog(t), Options{AfterRowID: 2, SkipMedals: true})
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if stats.Imported != 1 || len(sink.grants) != 0 {
		t.Errorf("resumed stats = %+v, grants = %d", stats, len(sink.grants))
	}
	if c := sink.credits(); len(c) != 1 || c[0].Wave != 3 {
		t.Errorf("resumed credits = %+v", c)
	}
}

func TestImportSinkFailureKeepsResumePoint(t *testing.T) {
	path := writeLegacyDB(t, []creditRow{
		{"1001", 10, 0, 1},
		{"1001", 11, 0, 2},
	}, nil)

	r, err := Open(context.Background(), path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = r.Close() }()

	sink := &fakeSink{err: errors.New("disk full")}
	stats, err := Import(context.Background(), r, sink, testCatalog(t), Options{})
	if err == nil || !errors.Is(err, sink.err) {
		t.Fatalf("Import() error = %v, want wrapped sink error", err)
	}
	if stats.LastProcessedID != 0 || stats.Imported != 0 {
		t.Errorf("stats after failure = %+v", stats)
	}
}
