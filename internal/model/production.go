package model

import (
	"time"
)

// Shift identifies one of the two production shifts of a calendar day.
type Shift string

const (
	ShiftDay   Shift = "day"
	ShiftNight Shift = "night"
)

// Scheduled shift lengths in hours. A production day is 24h split 14/10.
const (
	DayShiftHours   = 14
	NightShiftHours = 10
	DayHours        = DayShiftHours + NightShiftHours
)

// Valid reports whether s is a known shift.
func (s Shift) Valid() bool {
	return s == ShiftDay || s == ShiftNight
}

// ScheduledHours returns the scheduled length of the shift in hours.
func (s Shift) ScheduledHours() int {
	if s == ShiftNight {
		return NightShiftHours
	}
	return DayShiftHours
}

// DateLayout is the canonical calendar date format used across the API and stores.
const DateLayout = "2006-01-02"

// NormalizeDate truncates t to midnight UTC of its calendar date.
func NormalizeDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string (or RFC 3339 timestamp) into a normalized date.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return NormalizeDate(t), nil
}

// ShiftRecord is one machine's production for one shift of one day.
type ShiftRecord struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"tenantId"`
	MachineID  string    `json:"machineId"`
	WorkerID   string    `json:"workerId"`
	Date       time.Time `json:"date"`
	Shift      Shift     `json:"shift"`
	Runtime    float64   `json:"runtime"`
	Efficiency float64   `json:"efficiency"`
	H1         float64   `json:"h1"`
	H2         float64   `json:"h2"`
	Worph      float64   `json:"worph"`
	Meter      float64   `json:"meter"`
	TotalPick  float64   `json:"totalPick"`
	Notes      string    `json:"notes,omitempty"`
	CreatedBy  string    `json:"createdBy,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// DailySettings holds per-machine, per-day loom settings and the electricity
// meter readings. Electricity fields are nil when they could not be determined.
type DailySettings struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	MachineID       string    `json:"machineId"`
	Date            time.Time `json:"date"`
	Speed           float64   `json:"speed"`
	CFM             float64   `json:"cfm"`
	Pik             float64   `json:"pik"`
	PreviousReading *float64  `json:"previousReading,omitempty"`
	CurrentReading  *float64  `json:"currentReading,omitempty"`
	UnitsConsumed   *float64  `json:"unitsConsumed,omitempty"`
	CreatedBy       string    `json:"createdBy,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Units returns the consumed units, or 0 when unknown.
func (d DailySettings) Units() float64 {
	if d.UnitsConsumed == nil {
		return 0
	}
	return *d.UnitsConsumed
}

// ShiftTotals is the per-shift block of a DailySummary.
type ShiftTotals struct {
	Efficiency float64 `json:"efficiency"`
	Meter      float64 `json:"meter"`
	Pick       float64 `json:"pick"`
	Machine    float64 `json:"machine"`
	AvgRuntime float64 `json:"avgRuntime"`
}

// DailySummary is the denormalized rollup of one tenant's production day.
type DailySummary struct {
	TenantID           string      `json:"tenantId"`
	Date               time.Time   `json:"date"`
	Day                ShiftTotals `json:"day"`
	Night              ShiftTotals `json:"night"`
	Total              ShiftTotals `json:"total"`
	AvgCFM             float64     `json:"avgCFM"`
	TotalUnitsConsumed float64     `json:"totalUnitsConsumed"`
	UnitsPerMeter      float64     `json:"unitsPerMeter"`
	MachinesReported   int         `json:"machinesReported"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// ShiftFilter narrows shift record listings. Zero values are ignored.
type ShiftFilter struct {
	From      time.Time
	To        time.Time
	MachineID string
	WorkerID  string
	Shift     Shift
	Limit     int
}

// DateRange is an inclusive range of calendar dates.
type DateRange struct {
	From time.Time `json:"startDate"`
	To   time.Time `json:"endDate"`
}

// Dates returns every date in the range, in order.
func (r DateRange) Dates() []time.Time {
	from, to := NormalizeDate(r.From), NormalizeDate(r.To)
	var out []time.Time
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
