// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

// Package query answers progress lookups from the progress index. It never
// mutates the index and is safe to use concurrently with the ingest writer.
//
// Two output formats are provided: a KeyValues text tree read by game
// servers, and comma-separated rows read by the web front end.
package query

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/tour"
)

// Service reads participant progress.
type Service struct {
	index   *progress.Index
	catalog *tour.Catalog
}

// NewService creates a query service over index.
func NewService(index *progress.Index) *Service {
	return &Service{index: index, catalog: index.Catalog()}
}

// FullProgress returns one bitflag per mission in catalog order. An unknown
// participant yields all zeros.
func (s *Service) FullProgress(participant uint64) []uint64 {
	if flags := s.index.Flags(participant); flags != nil {
		return flags
	}
	return make([]uint64, s.catalog.Len())
}

// MissionProgress returns the bitflag of one mission. An unknown
// participant yields 0; an unknown mission is tour.ErrUnknownMission.
func (s *Service) MissionProgress(participant uint64, mission int) (uint64, error) {
	if err := s.catalog.CheckMission(mission); err != nil {
		return 0, err
	}
	return s.index.MissionFlags(participant, mission), nil
}

// Known reports whether the participant has any credit.
func (s *Service) Known(participant uint64) bool {
	return s.index.Flags(participant) != nil
}

// TourKV renders every mission bitflag as a KeyValues tree:
//
//	"tour"
//	{
//	"0" "14"
//	"1" "2"
//	}
//
// An unknown participant gets an empty tree.
func (s *Service) TourKV(participant uint64) string {
	flags := s.index.Flags(participant)
	if flags == nil {
		return "\"tour\"\n{\n}"
	}
	var b strings.Builder
	b.WriteString("\"tour\"\n{")
	for m, f := range flags {
		fmt.Fprintf(&b, "\n\"%d\" \"%d\"", m, f)
	}
	b.WriteString("\n}")
	return b.String()
}

// MissionKV renders a single mission bitflag:
//
//	"mission"
//	{
//	"0"	"14"
//	}
func (s *Service) MissionKV(participant uint64, mission int) (string, error) {
	if err := s.catalog.CheckMission(mission); err != nil {
		return "", err
	}
	if !s.Known(participant) {
		return "\"mission\"\n{\n}", nil
	}
	return fmt.Sprintf("\"mission\"\n{\n\"%d\"\t\"%d\"\n}", mission, s.index.MissionFlags(participant, mission)), nil
}

// PlayerCSV renders the web view of one participant. The first row is
// now,total_credits,max_waves; each following row holds the credit
// timestamps of one mission, empty for missing waves and padded with -1 up
// to max_waves. An unknown participant gets only the first row.
func (s *Service) PlayerCSV(participant uint64, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	maxWaves := s.catalog.MaxWaves()
	if err := w.Write([]string{
		strconv.FormatInt(now.Unix(), 10),
		strconv.Itoa(s.catalog.TotalCredits()),
		strconv.Itoa(maxWaves),
	}); err != nil {
		return nil, err
	}

	if rec, ok := s.index.Get(participant); ok {
		for m, ts := range rec.Timestamps {
			row := make([]string, 0, maxWaves)
			for i, t := range ts {
				if rec.Has(m, i+1) {
					row = append(row, strconv.FormatInt(t, 10))
				} else {
					row = append(row, "")
				}
			}
			for len(row) < maxWaves {
				row = append(row, "-1")
			}
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write player csv: %w", err)
	}
	return buf.Bytes(), nil
}
