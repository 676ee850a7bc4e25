package availability

import (
	"reflect"
	"testing"
	"time"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

var hourly = Grid{Start: 9 * time.Hour, End: 12 * time.Hour, SlotDuration: time.Hour}

func TestGridLabels(t *testing.T) {
	if got, want := hourly.Labels(), []string{"09:00", "10:00", "11:00"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	half := Grid{Start: 9 * time.Hour, End: 10*time.Hour + 45*time.Minute, SlotDuration: 30 * time.Minute}
	if got, want := half.Labels(), []string{"09:00", "09:30", "10:00"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if !half.Contains("09:30") || half.Contains("09:15") {
		t.Fatal("Contains disagrees with Labels")
	}

	if err := (Grid{Start: 9 * time.Hour, End: 9 * time.Hour, SlotDuration: time.Hour}).Validate(); err == nil {
		t.Fatal("expected empty working day to be rejected")
	}
}

func TestAvailableTimes_DefaultCapacity(t *testing.T) {
	got, err := AvailableTimes(hourly, Day{
		Date:            "2025-03-10",
		Occupancy:       map[string]int{"09:00": 1, "10:00": 0},
		DefaultCapacity: 1,
	})
	if err != nil {
		t.Fatalf("AvailableTimes failed: %v", err)
	}
	if want := []string{"10:00", "11:00"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAvailableTimes_Overrides(t *testing.T) {
	got, err := AvailableTimes(hourly, Day{
		Date: "2025-03-10",
		Overrides: []model.TimeSlot{
			{Date: "2025-03-10", Time: "09:00", MaxCapacity: 2, IsAvailable: true},
			{Date: "2025-03-10", Time: "10:00", MaxCapacity: 5, IsAvailable: false},
		},
		Occupancy:       map[string]int{"09:00": 1},
		DefaultCapacity: 1,
	})
	if err != nil {
		t.Fatalf("AvailableTimes failed: %v", err)
	}
	// 09:00 has room for one more under its override, 10:00 is blocked while empty.
	if want := []string{"09:00", "11:00"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestAvailableTimes_BlockedNeverListed(t *testing.T) {
	for occupancy := 0; occupancy < 4; occupancy++ {
		got, err := AvailableTimes(hourly, Day{
			Date:            "2025-03-10",
			Overrides:       []model.TimeSlot{{Time: "11:00", MaxCapacity: 10, IsAvailable: false}},
			Occupancy:       map[string]int{"11:00": occupancy},
			DefaultCapacity: 3,
		})
		if err != nil {
			t.Fatalf("AvailableTimes failed: %v", err)
		}
		for _, label := range got {
			if label == "11:00" {
				t.Fatalf("blocked slot listed with occupancy %d", occupancy)
			}
		}
	}
}

func TestAvailableTimes_SkipsPast(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, loc)
	got, err := AvailableTimes(hourly, Day{Date: "2025-03-10", DefaultCapacity: 1, Now: now, Location: loc})
	if err != nil {
		t.Fatalf("AvailableTimes failed: %v", err)
	}
	// 09:00 already started.
	if want := []string{"10:00", "11:00"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if _, err := AvailableTimes(hourly, Day{Date: "10/03/2025", DefaultCapacity: 1}); err == nil {
		t.Fatal("expected invalid date error")
	}
}
