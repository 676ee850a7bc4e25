package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/counselbook/libs/db"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

// openTestStore needs a disposable database in TEST_DATABASE_URL.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := db.Open(ctx, url, db.DefaultOptions())
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, Migrate(ctx, pool))
	return New(pool)
}

func testAppointment(counselorID, studentID, date string) model.Appointment {
	return model.Appointment{
		ID: uuid.NewString(), StudentID: studentID, CounselorID: counselorID, Program: "CS",
		Date: date, Time: "09:00", DurationMinutes: 60, ConcernType: "stress", Status: model.StatusScheduled,
	}
}

func TestCreateAppointmentHoldsCapacity(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	counselor := "c-" + uuid.NewString()
	const date = "2031-05-05"

	_, err := s.UpsertTimeSlot(ctx, model.TimeSlot{Date: date, Time: "09:00", CounselorID: counselor, MaxCapacity: 3, IsAvailable: true})
	require.NoError(t, err)

	var ok, full atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.CreateAppointment(ctx, testAppointment(counselor, fmt.Sprintf("s-%d", i), date), model.CheckInToken{}, 1)
			if err == nil {
				ok.Add(1)
			} else if errors.Is(err, model.ErrCapacity) {
				full.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 3, ok.Load())
	assert.EqualValues(t, 9, full.Load())

	occ, err := s.Occupancy(ctx, date, counselor)
	require.NoError(t, err)
	assert.Equal(t, 3, occ["09:00"])
}

func TestRedeemIsSingleUse(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	appt := testAppointment("c-"+uuid.NewString(), "s-"+uuid.NewString(), "2031-05-06")
	tok := model.CheckInToken{
		ID: uuid.NewString(), AppointmentID: appt.ID, StudentID: appt.StudentID, Nonce: uuid.NewString(),
		Payload: "{}", Checksum: "x", Status: model.TokenGenerated, ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, s.CreateAppointment(ctx, appt, tok, 1))

	got, err := s.Redeem(ctx, tok.ID, appt.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status)

	_, err = s.Redeem(ctx, tok.ID, appt.ID, time.Now())
	assert.ErrorIs(t, err, model.ErrAlreadyUsedOrInvalid)

	stored, err := s.TokenByNonce(ctx, tok.Nonce)
	require.NoError(t, err)
	assert.Equal(t, model.TokenScanned, stored.Status)
	assert.NotNil(t, stored.ScannedAt)

	_, err = s.UpdateAppointment(ctx, got, model.StatusScheduled)
	assert.ErrorIs(t, err, model.ErrAlreadyProcessed)

	existed, err := s.DeleteAppointment(ctx, appt.ID)
	require.NoError(t, err)
	assert.True(t, existed)
	_, err = s.TokenByNonce(ctx, tok.Nonce)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
