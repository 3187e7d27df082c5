// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package query

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/tour"
)

const (
	known   uint64 = 76561198000000001
	unknown uint64 = 76561198000000099
)

func setupService(t *testing.T) *Service {
	t.Helper()
	c, err := tour.NewCatalog([]tour.Mission{{Name: "Mannhattan", Waves: 3}, {Name: "Rottenburg", Waves: 2}})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	idx := progress.NewIndex(c)
	for _, ev := range []tour.Event{
		{Participant: known, Timestamp: 1001, Mission: 0, Wave: 1},
		{Participant: known, Timestamp: 1002, Mission: 0, Wave: 2},
		{Participant: known, Timestamp: 1003, Mission: 0, Wave: 3},
		{Participant: known, Timestamp: 1004, Mission: 1, Wave: 2},
	} {
		if _, err := idx.ApplyEvent(ev); err != nil {
			t.Fatalf("ApplyEvent failed: %v", err)
		}
	}
	return NewService(idx)
}

func TestFullProgress(t *testing.T) {
	s := setupService(t)

	if got := s.FullProgress(known); !reflect.DeepEqual(got, []uint64{14, 4}) {
		t.Errorf("FullProgress(known) = %v, want [14 4]", got)
	}
	if got := s.FullProgress(unknown); !reflect.DeepEqual(got, []uint64{0, 0}) {
		t.Errorf("FullProgress(unknown) = %v, want [0 0]", got)
	}
}

func TestMissionProgress(t *testing.T) {
	s := setupService(t)

	tests := []struct {
		name        string
		participant uint64
		mission     int
		want        uint64
		wantErr     error
	}{
		{"known mission 0", known, 0, 14, nil},
		{"known mission 1", known, 1, 4, nil},
		{"unknown participant", unknown, 1, 0, nil},
		{"unknown mission", known, 2, 0, tour.ErrUnknownMission},
		{"negative mission", unknown, -1, 0, tour.ErrUnknownMission},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.MissionProgress(tt.participant, tt.mission)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTourKV(t *testing.T) {
	s := setupService(t)

	want := "\"tour\"\n{\n\"0\" \"14\"\n\"1\" \"4\"\n}"
	if got := s.TourKV(known); got != want {
		t.Errorf("TourKV(known) = %q, want %q", got, want)
	}
	if got := s.TourKV(unknown); got != "\"tour\"\n{\n}" {
		t.Errorf("TourKV(unknown) = %q", got)
	}
}

func TestMissionKV(t *testing.T) {
	s := setupService(t)

	got, err := s.MissionKV(known, 0)
	if err != nil {
		t.Fatal(err)
	}
	if want := "\"mission\"\n{\n\"0\"\t\"14\"\n}"; got != want {
		t.Errorf("MissionKV = %q, want %q", got, want)
	}

	got, err = s.MissionKV(unknown, 0)
	if err != nil || got != "\"mission\"\n{\n}" {
		t.Errorf("MissionKV(unknown) = %q, %v", got, err)
	}

	if _, err := s.MissionKV(known, 7); !errors.Is(err, tour.ErrUnknownMission) {
		t.Errorf("MissionKV unknown mission err = %v", err)
	}
}

func TestPlayerCSV(t *testing.T) {
	s := setupService(t)
	now := time.Unix(1700000000, 0)

	got, err := s.PlayerCSV(known, now)
	if err != nil {
		t.Fatal(err)
	}
	want := "1700000000,5,3\n1001,1002,1003\n,1004,-1\n"
	if string(got) != want {
		t.Errorf("PlayerCSV = %q, want %q", got, want)
	}

	got, err = s.PlayerCSV(unknown, now)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "1700000000,5,3\n" {
		t.Errorf("PlayerCSV(unknown) = %q", got)
	}
}
