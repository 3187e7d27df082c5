// Tourtracker - Tour Progress Tracking Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/tourtracker

package stats

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"github.com/tomtom215/tourtracker/internal/progress"
	"github.com/tomtom215/tourtracker/internal/tour"
)

// Summary holds the headline numbers of the global statistics.
type Summary struct {
	Participants         int   `json:"participants"`
	Completionists       int   `json:"completionists"`
	TotalEvents          int64 `json:"total_events"`
	UniqueCredits        int   `json:"unique_credits"`
	MissionsParticipated int   `json:"missions_participated"`
	MissionsCompleted    int   `json:"missions_completed"`
}

// missionAcc accumulates one participant's numbers for a single mission.
type missionAcc struct {
	participated bool
	completed    bool
	first, last  int64
}

// aggregate is the intermediate result of one pass over the index.
type aggregate struct {
	waveCounts     [][]int
	creditsHist    []int
	participants   []int
	completionists []int
	medals         int

	joinedOn    map[Day]int
	finishedOn  map[Day]int
	missionJoin []map[Day]int
	missionDone []map[Day]int
	uniqueOn    map[Day]int
	players     int
}

// Build renders the global statistics CSV from the progress index and the
// daily report counter. Sections are separated by a row holding "=":
//
//  1. credits per wave, one row per wave number and one column per mission,
//     padded with -1 for missions with fewer waves
//  2. participants per credit count, 1..total-1 credits
//  3. participants per mission, then completionists per mission
//  4. one row per day: month, day, cumulative participants per mission,
//     cumulative completionists per mission, new tour participants, new
//     tour completionists, new mission participations, new mission
//     completions, unique credits earned, credit reports received
//  5. participants, completionists, total reports, unique credits,
//     missions participated, missions completed
func Build(index *progress.Index, daily *DailyCounter, loc *time.Location) ([]byte, Summary, error) {
	if loc == nil {
		loc = time.Local
	}
	c := index.Catalog()
	a := collect(index, c, loc)

	summary := Summary{
		Participants:   a.players,
		Completionists: a.medals,
		TotalEvents:    daily.Total(),
	}
	for _, n := range a.uniqueOn {
		summary.UniqueCredits += n
	}
	for m := range a.participants {
		summary.MissionsParticipated += a.participants[m]
		summary.MissionsCompleted += a.completionists[m]
	}

	var rows [][]string
	sep := []string{"="}

	// Section 1: transposed wave counts.
	for wave := 0; wave < c.MaxWaves(); wave++ {
		row := make([]string, c.Len())
		for m := range row {
			if wave < len(a.waveCounts[m]) {
				row[m] = strconv.Itoa(a.waveCounts[m][wave])
			} else {
				row[m] = "-1"
			}
		}
		rows = append(rows, row)
	}
	rows = append(rows, sep)

	// Section 2: the last bucket is the completionists, left out so it
	// does not dwarf the chart.
	rows = append(rows, ints(a.creditsHist[:len(a.creditsHist)-1]))
	rows = append(rows, sep)

	// Section 3.
	rows = append(rows, ints(a.participants))
	rows = append(rows, ints(a.completionists))
	rows = append(rows, sep)

	// Section 4.
	days := sortedDays(a.uniqueOn)
	received := daily.Snapshot()

	cumJoin := make([]map[Day]int, c.Len())
	cumDone := make([]map[Day]int, c.Len())
	for m := 0; m < c.Len(); m++ {
		cumJoin[m] = cumulative(a.missionJoin[m], days)
		cumDone[m] = cumulative(a.missionDone[m], days)
	}

	for _, d := range days {
		row := []int{int(d.Month), d.Day}
		for m := range cumJoin {
			row = append(row, cumJoin[m][d])
		}
		for m := range cumDone {
			row = append(row, cumDone[m][d])
		}
		newMissionJoins, newMissionDone := 0, 0
		for m := 0; m < c.Len(); m++ {
			newMissionJoins += a.missionJoin[m][d]
			newMissionDone += a.missionDone[m][d]
		}
		row = append(row,
			a.joinedOn[d],
			a.finishedOn[d],
			newMissionJoins,
			newMissionDone,
			a.uniqueOn[d],
			received[d],
		)
		rows = append(rows, ints(row))
	}
	rows = append(rows, sep)

	// Section 5.
	rows = append(rows, []string{
		strconv.Itoa(summary.Participants),
		strconv.Itoa(summary.Completionists),
		strconv.FormatInt(summary.TotalEvents, 10),
		strconv.Itoa(summary.UniqueCredits),
		strconv.Itoa(summary.MissionsParticipated),
		strconv.Itoa(summary.MissionsCompleted),
	})

	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(rows); err != nil {
		return nil, Summary{}, fmt.Errorf("write global csv: %w", err)
	}
	return buf.Bytes(), summary, nil
}

func collect(index *progress.Index, c *tour.Catalog, loc *time.Location) *aggregate {
	a := &aggregate{
		waveCounts:     make([][]int, c.Len()),
		creditsHist:    make([]int, c.TotalCredits()),
		participants:   make([]int, c.Len()),
		completionists: make([]int, c.Len()),
		joinedOn:       make(map[Day]int),
		finishedOn:     make(map[Day]int),
		missionJoin:    make([]map[Day]int, c.Len()),
		missionDone:    make([]map[Day]int, c.Len()),
		uniqueOn:       make(map[Day]int),
	}
	for m := 0; m < c.Len(); m++ {
		a.waveCounts[m] = make([]int, c.Waves(m))
		a.missionJoin[m] = make(map[Day]int)
		a.missionDone[m] = make(map[Day]int)
	}

	index.Range(func(_ uint64, rec *progress.Record) bool {
		credits := 0
		var first, last int64
		seen := false
		tourDone := true

		for m := 0; m < c.Len(); m++ {
			acc := missionAcc{completed: true}
			for w := 1; w <= c.Waves(m); w++ {
				if !rec.Has(m, w) {
					acc.completed = false
					continue
				}
				ts := rec.Timestamps[m][w-1]
				a.waveCounts[m][w-1]++
				a.uniqueOn[DayOf(ts, loc)]++
				credits++

				if !acc.participated || ts < acc.first {
					acc.first = ts
				}
				if !acc.participated || ts > acc.last {
					acc.last = ts
				}
				acc.participated = true
			}

			if acc.participated {
				a.participants[m]++
				a.missionJoin[m][DayOf(acc.first, loc)]++
				if !seen || acc.first < first {
					first = acc.first
				}
				if !seen || acc.last > last {
					last = acc.last
				}
				seen = true
			}
			if acc.completed {
				a.completionists[m]++
				a.missionDone[m][DayOf(acc.last, loc)]++
			} else {
				tourDone = false
			}
		}

		if credits == 0 {
			return true
		}
		a.players++
		a.creditsHist[credits-1]++
		a.joinedOn[DayOf(first, loc)]++
		if tourDone {
			a.medals++
			a.finishedOn[DayOf(last, loc)]++
		}
		return true
	})
	return a
}

// cumulative returns the running total of perDay over days.
func cumulative(perDay map[Day]int, days []Day) map[Day]int {
	out := make(map[Day]int, len(days))
	sum := 0
	for _, d := range days {
		sum += perDay[d]
		out[d] = sum
	}
	return out
}

func ints(v []int) []string {
	out := make([]string, len(v))
	for i, n := range v {
		out[i] = strconv.Itoa(n)
	}
	return out
}
