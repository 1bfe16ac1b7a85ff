// Package report aggregates cabin occupancy and activity demand over a reporting window.
package report

import (
	"sort"
	"time"

	"cabinres/internal/models"
)

type CabinOccupancy struct {
	CabinID      int64   `json:"cabin_id"`
	CabinName    string  `json:"cabin_name"`
	ResortID     int64   `json:"resort_id"`
	OccupiedDays int     `json:"occupied_days"`
	Percent      float64 `json:"percent"`
}

type ActivityCount struct {
	ActivityID   int64  `json:"activity_id"`
	ActivityName string `json:"activity_name"`
	ResortID     int64  `json:"resort_id"`
	Reservations int    `json:"reservations"`
}

// ResortSummary rolls cabin and activity figures up to the resort.
type ResortSummary struct {
	ResortID             int64   `json:"resort_id"`
	ResortName           string  `json:"resort_name"`
	AverageOccupancy     float64 `json:"average_occupancy"`
	ActivityReservations int     `json:"activity_reservations"`
}

type Report struct {
	Start      time.Time        `json:"start"`
	End        time.Time        `json:"end"`
	WindowDays int              `json:"window_days"`
	Cabins     []CabinOccupancy `json:"cabins"`
	Activities []ActivityCount  `json:"activities"`
	Resorts    []ResortSummary  `json:"resorts"`
}

// Input bundles the catalog slice a report is computed for.
type Input struct {
	Resorts    []*models.Resort
	Cabins     []*models.Cabin
	Activities []*models.Activity
	Bookings   []*models.Booking
}

// Aggregate computes the report for the window [start, end]. Bookings are clipped to the
// window for occupancy; attached activities count only when scheduled inside it.
func Aggregate(in Input, start, end time.Time) *Report {
	windowDays := models.DaysBetween(start, end)
	r := &Report{
		Start:      start,
		End:        end,
		WindowDays: windowDays,
		Cabins:     make([]CabinOccupancy, 0, len(in.Cabins)),
		Activities: make([]ActivityCount, 0, len(in.Activities)),
	}

	byCabin := make(map[int64][]*models.Booking)
	for _, b := range in.Bookings {
		if b != nil {
			byCabin[b.CabinID] = append(byCabin[b.CabinID], b)
		}
	}

	for _, c := range in.Cabins {
		days := 0
		for _, b := range byCabin[c.ID] {
			days += ClippedDays(b, start, end)
		}
		r.Cabins = append(r.Cabins, CabinOccupancy{
			CabinID:      c.ID,
			CabinName:    c.Name,
			ResortID:     c.ResortID,
			OccupiedDays: days,
			Percent:      percent(days, windowDays),
		})
	}

	counts := make(map[int64]int)
	for _, b := range in.Bookings {
		if b == nil {
			continue
		}
		for _, a := range b.Activities {
			if a.ScheduledAt.Before(start) || a.ScheduledAt.After(end) {
				continue
			}
			counts[a.ActivityID]++
		}
	}
	for _, a := range in.Activities {
		r.Activities = append(r.Activities, ActivityCount{
			ActivityID:   a.ID,
			ActivityName: a.Name,
			ResortID:     a.ResortID,
			Reservations: counts[a.ID],
		})
	}

	r.Resorts = summarize(in.Resorts, r)
	return r
}

// ClippedDays returns how many days of b fall inside [start, end]. Stays outside the
// window contribute nothing.
func ClippedDays(b *models.Booking, start, end time.Time) int {
	s, e := b.Start, b.End
	if s.Before(start) {
		s = start
	}
	if e.After(end) {
		e = end
	}
	if d := models.DaysBetween(s, e); d > 0 {
		return d
	}
	return 0
}

func percent(days, windowDays int) float64 {
	if windowDays <= 0 || days <= 0 {
		return 0
	}
	return float64(days) / float64(windowDays) * 100
}

func summarize(resorts []*models.Resort, r *Report) []ResortSummary {
	if len(resorts) == 0 {
		return nil
	}

	type acc struct {
		pctSum     float64
		cabins     int
		activities int
	}
	totals := make(map[int64]*acc, len(resorts))
	for _, res := range resorts {
		totals[res.ID] = &acc{}
	}
	for _, c := range r.Cabins {
		if a, ok := totals[c.ResortID]; ok {
			a.pctSum += c.Percent
			a.cabins++
		}
	}
	for _, ac := range r.Activities {
		if a, ok := totals[ac.ResortID]; ok {
			a.activities += ac.Reservations
		}
	}

	out := make([]ResortSummary, 0, len(resorts))
	for _, res := range resorts {
		a := totals[res.ID]
		s := ResortSummary{ResortID: res.ID, ResortName: res.Name, ActivityReservations: a.activities}
		if a.cabins > 0 {
			s.AverageOccupancy = a.pctSum / float64(a.cabins)
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResortID < out[j].ResortID })
	return out
}
