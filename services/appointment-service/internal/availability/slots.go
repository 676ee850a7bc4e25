// Package availability derives the bookable time labels of a day from the
// working-hours grid, slot overrides and current occupancy. Everything here is
// pure; callers must recompute on every booking attempt.
package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

// Grid is the canonical slot layout of a working day. Start and End are
// offsets from local midnight.
type Grid struct {
	Start        time.Duration
	End          time.Duration
	SlotDuration time.Duration
}

func (g Grid) Validate() error {
	if g.SlotDuration <= 0 {
		return errors.New("slot duration must be positive")
	}
	if g.Start < 0 || g.End > 24*time.Hour {
		return errors.New("working hours must fall within one day")
	}
	if g.Start+g.SlotDuration > g.End {
		return fmt.Errorf("working hours %s-%s fit no %s slot", clock(g.Start), clock(g.End), g.SlotDuration)
	}
	return nil
}

// Labels lists every slot start ("HH:MM") whose full duration fits before End.
func (g Grid) Labels() []string {
	offsets := g.offsets()
	out := make([]string, 0, len(offsets))
	for _, t := range offsets {
		out = append(out, clock(t))
	}
	return out
}

func (g Grid) offsets() []time.Duration {
	if g.Validate() != nil {
		return nil
	}
	var out []time.Duration
	for t := g.Start; t+g.SlotDuration <= g.End; t += g.SlotDuration {
		out = append(out, t)
	}
	return out
}

// Contains reports whether label is a grid point.
func (g Grid) Contains(label string) bool {
	for _, l := range g.Labels() {
		if l == label {
			return true
		}
	}
	return false
}

// Minutes is the slot duration recorded on appointments.
func (g Grid) Minutes() int {
	return int(g.SlotDuration / time.Minute)
}

// Day is everything known about one (date, counselor) at the time of the call.
type Day struct {
	Date            string
	Overrides       []model.TimeSlot
	Occupancy       map[string]int // non-cancelled appointments per time label
	DefaultCapacity int
	Now             time.Time
	Location        *time.Location
}

// AvailableTimes returns the ordered labels that can still take a booking.
// A blocked override removes its slot regardless of occupancy; otherwise a
// slot is open while occupancy is below its effective capacity. Slots that
// already started are skipped.
func AvailableTimes(g Grid, d Day) ([]string, error) {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(model.DateLayout, d.Date, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", d.Date, err)
	}
	overrides := indexOverrides(d.Overrides)

	var out []string
	for _, offset := range g.offsets() {
		start := time.Date(day.Year(), day.Month(), day.Day(), int(offset/time.Hour), int(offset%time.Hour/time.Minute), 0, 0, loc)
		if !d.Now.IsZero() && start.Before(d.Now) {
			continue
		}
		label := clock(offset)
		if slotOpen(overrides[label], d.Occupancy[label], d.DefaultCapacity) {
			out = append(out, label)
		}
	}
	return out, nil
}

// SlotOpen applies the capacity rule to a single slot.
func SlotOpen(override *model.TimeSlot, occupancy, defaultCapacity int) bool {
	return slotOpen(override, occupancy, defaultCapacity)
}

func slotOpen(override *model.TimeSlot, occupancy, defaultCapacity int) bool {
	if override != nil && !override.IsAvailable {
		return false
	}
	return occupancy < override.EffectiveCapacity(defaultCapacity)
}

func indexOverrides(in []model.TimeSlot) map[string]*model.TimeSlot {
	out := make(map[string]*model.TimeSlot, len(in))
	for i := range in {
		out[in[i].Time] = &in[i]
	}
	return out
}

func clock(d time.Duration) string {
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}
