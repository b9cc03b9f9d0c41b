package app

import (
	"context"
	"math"
	"time"

	"github.com/andredfaria/daily/internal/checklist"
	"github.com/andredfaria/daily/internal/policy"
	"github.com/andredfaria/daily/internal/store"
)

const gridDays = 14

type Level string

const (
	LevelRed    Level = "red"
	LevelYellow Level = "yellow"
	LevelGreen  Level = "green"
)

type CellState string

const (
	CellDone   CellState = "done"
	CellMissed CellState = "missed"
	CellNone   CellState = "none"
)

type ActivityView struct {
	ID           int64     `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	ActivityDate string    `json:"activity_date"`
	Completed    bool      `json:"check_status"`
	Option       *string   `json:"option"`
}

type Stats struct {
	Total     int   `json:"total"`
	Completed int   `json:"completed"`
	Rate      int   `json:"rate"`
	Level     Level `json:"level"`
}

type GridRow struct {
	Option string      `json:"option"`
	Cells  []CellState `json:"cells"`
}

type Grid struct {
	Days []string  `json:"days"`
	Rows []GridRow `json:"rows"`
}

type Dashboard struct {
	Profile      ProfileView    `json:"user"`
	PollOptions  []string       `json:"poll_options"`
	SendTime     *string        `json:"send_time"`
	PhoneDisplay string         `json:"phone_display"`
	Activities   []ActivityView `json:"activities"`
	Stats        Stats          `json:"stats"`
	Grid         Grid           `json:"grid"`
}

func (s *Service) Dashboard(ctx context.Context, session Session, profileID int64) (Dashboard, error) {
	if !policy.Can(session.Caller(), policy.ActionView, profileID).Allowed {
		return Dashboard{}, errForbidden()
	}
	profile, err := s.loadProfile(ctx, profileID)
	if err != nil {
		return Dashboard{}, err
	}
	activities, err := s.store.ListActivities(ctx, profileID)
	if err != nil {
		return Dashboard{}, err
	}
	return buildDashboard(profile, activities, s.now().UTC()), nil
}

func buildDashboard(profile store.Profile, activities []store.Activity, today time.Time) Dashboard {
	view := viewProfile(profile)
	d := Dashboard{
		Profile:      view,
		PollOptions:  view.Options,
		PhoneDisplay: view.PhoneDisplay,
		Activities:   make([]ActivityView, 0, len(activities)),
		Stats:        computeStats(activities),
		Grid:         buildGrid(activities, today),
	}
	if profile.SendHour != nil {
		sendTime := formatHour(*profile.SendHour)
		d.SendTime = &sendTime
	} else if legacy, ok := checklist.LegacySendTime(profile.Options); ok {
		d.SendTime = &legacy
	}
	for _, a := range activities {
		d.Activities = append(d.Activities, ActivityView{
			ID:           a.ID,
			CreatedAt:    a.CreatedAt,
			ActivityDate: a.ActivityDate.Format(time.DateOnly),
			Completed:    a.Completed,
			Option:       a.Option,
		})
	}
	return d
}

func computeStats(activities []store.Activity) Stats {
	stats := Stats{Total: len(activities)}
	for _, a := range activities {
		if a.Completed {
			stats.Completed++
		}
	}
	if stats.Total > 0 {
		stats.Rate = int(math.Round(float64(stats.Completed) / float64(stats.Total) * 100))
	}
	switch {
	case stats.Rate < 40:
		stats.Level = LevelRed
	case stats.Rate < 80:
		stats.Level = LevelYellow
	default:
		stats.Level = LevelGreen
	}
	return stats
}

// buildGrid lays out the last gridDays days ending today, one row per
// distinct activity option in first-seen order. Activities arrive newest
// first, so the newest row for a day and option wins.
func buildGrid(activities []store.Activity, today time.Time) Grid {
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -(gridDays - 1))
	grid := Grid{Days: make([]string, gridDays), Rows: []GridRow{}}
	for i := 0; i < gridDays; i++ {
		grid.Days[i] = start.AddDate(0, 0, i).Format(time.DateOnly)
	}

	type key struct{ option, day string }
	seen := make(map[key]bool)
	rowIndex := make(map[string]int)
	for _, a := range activities {
		if a.Option == nil || *a.Option == "" {
			continue
		}
		option := *a.Option
		if _, ok := rowIndex[option]; !ok {
			cells := make([]CellState, gridDays)
			for i := range cells {
				cells[i] = CellNone
			}
			rowIndex[option] = len(grid.Rows)
			grid.Rows = append(grid.Rows, GridRow{Option: option, Cells: cells})
		}
		day := a.ActivityDate.UTC().Format(time.DateOnly)
		k := key{option, day}
		if seen[k] {
			continue
		}
		seen[k] = true
		dayStart, _ := time.Parse(time.DateOnly, day)
		offset := int(dayStart.Sub(start).Hours() / 24)
		if offset < 0 || offset >= gridDays {
			continue
		}
		state := CellMissed
		if a.Completed {
			state = CellDone
		}
		grid.Rows[rowIndex[option]].Cells[offset] = state
	}
	return grid
}
