// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package progress

import (
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tomtom215/tourtracker/internal/tour"
)

const testParticipant uint64 = 76561198000000001

func newTestCatalog(t *testing.T, waves ...int) *tour.Catalog {
	t.Helper()
	missions := make([]tour.Mission, len(waves))
	for i, w := range waves {
		missions[i] = tour.Mission{Waves: w}
	}
	c, err := tour.NewCatalog(missions)
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return c
}

func mustApply(t *testing.T, x *Index, ev tour.Event) bool {
	t.Helper()
	added, err := x.ApplyEvent(ev)
	if err != nil {
		t.Fatalf("ApplyEvent(%+v) failed: %v", ev, err)
	}
	return added
}

func TestIndex_ThreeWaveScenario(t *testing.T) {
	x := NewIndex(newTestCatalog(t, 3))

	for w := 1; w <= 3; w++ {
		if !mustApply(t, x, tour.Event{Participant: testParticipant, Timestamp: int64(1000 + w), Mission: 0, Wave: w}) {
			t.Errorf("wave %d: expected new credit", w)
		}
	}

	flags := x.Flags(testParticipant)
	if len(flags) != 1 || flags[0] != 0b1110 {
		t.Fatalf("Flags = %v, want [14]", flags)
	}
	if !x.IsComplete(testParticipant) {
		t.Error("expected participant to be complete")
	}

	// Resending wave 2 is reported as already credited.
	if mustApply(t, x, tour.Event{Participant: testParticipant, Timestamp: 5000, Mission: 0, Wave: 2}) {
		t.Error("expected duplicate wave 2 to report already credited")
	}
	if got := x.Flags(testParticipant); got[0] != 14 {
		t.Errorf("Flags changed after duplicate: %v", got)
	}
}

func TestIndex_Idempotence(t *testing.T) {
	ev := tour.Event{Participant: testParticipant, Timestamp: 42, Mission: 1, Wave: 2}

	once := NewIndex(newTestCatalog(t, 3, 2))
	mustApply(t, once, ev)

	twice := NewIndex(newTestCatalog(t, 3, 2))
	mustApply(t, twice, ev)
	mustApply(t, twice, ev)

	a, _ := once.Get(testParticipant)
	b, _ := twice.Get(testParticipant)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("records differ after re-application: %+v vs %+v", a, b)
	}
	if s := twice.Stats(); s.Credits != 1 || s.Duplicates != 1 {
		t.Errorf("unexpected stats: %+v", s)
	}
}

func TestIndex_CommutativeFlags(t *testing.T) {
	c := newTestCatalog(t, 3, 7, 4)
	var events []tour.Event
	for m := 0; m < c.Len(); m++ {
		for w := 1; w <= c.Waves(m); w++ {
			events = append(events, tour.Event{Participant: testParticipant, Timestamp: int64(m*100 + w), Mission: m, Wave: w})
		}
	}
	// Re-deliveries of a few events.
	events = append(events, events[0], events[5], events[9])

	ref := NewIndex(c)
	for _, ev := range events {
		mustApply(t, ref, ev)
	}
	want := ref.Flags(testParticipant)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]tour.Event(nil), events...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		x := NewIndex(c)
		for _, ev := range shuffled {
			mustApply(t, x, ev)
		}
		if got := x.Flags(testParticipant); !reflect.DeepEqual(got, want) {
			t.Fatalf("permutation %d: flags %v, want %v", i, got, want)
		}
	}
}

func TestIndex_FirstTimestampWins(t *testing.T) {
	x := NewIndex(newTestCatalog(t, 3))

	mustApply(t, x, tour.Event{Participant: testParticipant, Timestamp: 200, Mission: 0, Wave: 1})
	mustApply(t, x, tour.Event{Participant: testParticipant, Timestamp: 100, Mission: 0, Wave: 1})

	rec, ok := x.Get(testParticipant)
	if !ok {
		t.Fatal("expected record")
	}
	if rec.Timestamps[0][0] != 200 {
		t.Errorf("timestamp = %d, want 200 (never overwritten)", rec.Timestamps[0][0])
	}
}

func TestIndex_Monotonic(t *testing.T) {
	c := newTestCatalog(t, 5)
	x := NewIndex(c)
	rng := rand.New(rand.NewSource(1))

	prev := uint64(0)
	for i := 0; i < 100; i++ {
		ev := tour.Event{Participant: testParticipant, Timestamp: int64(i), Mission: 0, Wave: 1 + rng.Intn(5)}
		mustApply(t, x, ev)
		cur := x.MissionFlags(testParticipant, 0)
		if cur&prev != prev {
			t.Fatalf("bits cleared: before %b, after %b", prev, cur)
		}
		prev = cur
	}
}

func TestIndex_RejectsInvalidEvent(t *testing.T) {
	x := NewIndex(newTestCatalog(t, 3))

	_, err := x.ApplyEvent(tour.Event{Participant: 1, Mission: 2, Wave: 1})
	if !errors.Is(err, tour.ErrUnknownMission) {
		t.Errorf("expected ErrUnknownMission, got %v", err)
	}
	_, err = x.ApplyEvent(tour.Event{Participant: 1, Mission: 0, Wave: 4})
	if !errors.Is(err, tour.ErrInvalidWave) {
		t.Errorf("expected ErrInvalidWave, got %v", err)
	}
	if x.Len() != 0 {
		t.Errorf("invalid events must not create records, got %d", x.Len())
	}
}

func TestIndex_UnknownParticipant(t *testing.T) {
	x := NewIndex(newTestCatalog(t, 3))

	if _, ok := x.Get(99); ok {
		t.Error("expected unknown participant")
	}
	if x.Flags(99) != nil {
		t.Error("expected nil flags for unknown participant")
	}
	if x.MissionFlags(99, 0) != 0 {
		t.Error("expected zero mission flags")
	}
	if x.IsComplete(99) {
		t.Error("unknown participant cannot be complete")
	}
}

func TestIndex_GetReturnsCopy(t *testing.T) {
	x := NewIndex(newTestCatalog(t, 3))
	mustApply(t, x, tour.Event{Participant: testParticipant, Timestamp: 1, Mission: 0, Wave: 1})

	rec, _ := x.Get(testParticipant)
	rec.Flags[0] = 0
	rec.Timestamps[0][0] = 0

	if x.MissionFlags(testParticipant, 0) != 0b10 {
		t.Error("mutating a returned record changed the index")
	}
}

func TestIndex_VersionBumpsOnlyOnNewCredit(t *testing.T) {
	x := NewIndex(newTestCatalog(t, 3))
	ev := tour.Event{Participant: testParticipant, Mission: 0, Wave: 1}

	mustApply(t, x, ev)
	v := x.Version()
	mustApply(t, x, ev)
	if x.Version() != v {
		t.Errorf("version changed on duplicate: %d -> %d", v, x.Version())
	}
}

func TestIndex_ConcurrentReaders(t *testing.T) {
	x := NewIndex(newTestCatalog(t, 7, 7))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = x.Flags(testParticipant)
					_, _ = x.Get(testParticipant)
					_ = x.Stats()
				}
			}
		}()
	}

	for m := 0; m < 2; m++ {
		for w := 1; w <= 7; w++ {
			mustApply(t, x, tour.Event{Participant: testParticipant, Timestamp: time.Now().Unix(), Mission: m, Wave: w})
		}
	}
	close(stop)
	wg.Wait()

	if !x.IsComplete(testParticipant) {
		t.Error("expected complete after all waves")
	}
}

func TestLedger_AddOnce(t *testing.T) {
	l := NewLedger()
	first := time.Unix(100, 0)

	if !l.Add(testParticipant, first) {
		t.Fatal("expected first Add to succeed")
	}
	if l.Add(testParticipant, time.Unix(200, 0)) {
		t.Error("expected second Add to be rejected")
	}
	if at, _ := l.GrantedAt(testParticipant); !at.Equal(first) {
		t.Errorf("GrantedAt = %v, want %v", at, first)
	}
	if l.Len() != 1 || !l.Has(testParticipant) {
		t.Errorf("unexpected ledger state: len=%d", l.Len())
	}
}
