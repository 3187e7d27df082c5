// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package tour

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// CSVCatalog is the content of a legacy "Tour Information" CSV file.
type CSVCatalog struct {
	APIKey   string
	Missions []Mission
}

// ParseCSV reads the legacy tour CSV format:
//
//	// comment rows start with two slashes
//	apikey,<shared secret>
//	<mission name>,<map name>,<wave count>
//
// Mission rows are taken in file order.
func ParseCSV(r io.Reader) (*CSVCatalog, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	out := &CSVCatalog{}
	line := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tour csv: %w", err)
		}
		line++

		if len(rec) == 0 {
			continue
		}
		cell := strings.ToLower(strings.TrimSpace(rec[0]))
		if cell == "" || strings.HasPrefix(cell, "//") {
			continue
		}
		if cell == "apikey" {
			if len(rec) < 2 {
				return nil, fmt.Errorf("tour csv line %d: apikey row has no value", line)
			}
			out.APIKey = strings.TrimSpace(rec[1])
			continue
		}

		if len(rec) < 3 {
			return nil, fmt.Errorf("tour csv line %d: mission row needs 3 columns, got %d", line, len(rec))
		}
		waves, err := strconv.Atoi(strings.TrimSpace(rec[2]))
		if err != nil {
			return nil, fmt.Errorf("tour csv line %d: wave count: %w", line, err)
		}
		out.Missions = append(out.Missions, Mission{Name: strings.TrimSpace(rec[0]), Waves: waves})
	}

	if out.APIKey == "" {
		return nil, errors.New("tour csv: apikey row not found")
	}
	return out, nil
}
