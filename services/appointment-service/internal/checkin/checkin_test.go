package checkin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/memstore"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/notify"
)

var secret = []byte("0123456789abcdef-test-secret")

func newCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec(secret)
	require.NoError(t, err)
	return c
}

type fixture struct {
	store *memstore.Store
	svc   *Service
	appt  model.Appointment
	code  string
}

func setup(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	svc := NewService(store, newCodec(t), nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		Grace:        time.Hour,
		RedirectBase: "https://counsel.example.edu/",
	})
	svc.now = func() time.Time { return time.Date(2030, 1, 7, 8, 55, 0, 0, time.UTC) }

	appt := model.Appointment{
		ID: "a1", StudentID: "s1", CounselorID: "c1", Program: "CS",
		Date: "2030-01-07", Time: "09:00", DurationMinutes: 60, Status: model.StatusScheduled,
	}
	tok, err := svc.Prepare(appt)
	require.NoError(t, err)
	require.NoError(t, store.CreateAppointment(ctx, appt, tok, 1))
	return fixture{store: store, svc: svc, appt: appt, code: tok.Payload}
}

func TestCodecRejectsTampering(t *testing.T) {
	c := newCodec(t)
	now := time.Date(2030, 1, 7, 9, 0, 0, 0, time.UTC)
	sealed, raw, err := c.Seal(Payload{
		AppointmentID: "a1", StudentID: "s1", Date: "2030-01-07", Time: "09:00",
		Program: "CS", CounselorID: "c1", Nonce: "n1", Exp: now.Add(time.Hour).Unix(),
	})
	require.NoError(t, err)

	opened, err := c.Open(raw, now)
	require.NoError(t, err)
	assert.Equal(t, sealed, opened)

	forged := sealed
	forged.AppointmentID = "a2"
	b, _ := json.Marshal(forged)
	_, err = c.Open(string(b), now)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = c.Open(raw, now.Add(2*time.Hour))
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = c.Open("not json", now)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	other, err := NewCodec([]byte("another-secret-of-enough-length"))
	require.NoError(t, err)
	_, err = other.Open(raw, now)
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	_, err = NewCodec([]byte("short"))
	assert.Error(t, err)
}

func TestVerifyMovesAppointmentToPendingAndNotifies(t *testing.T) {
	f := setup(t)

	res, err := f.svc.Verify(context.Background(), f.code)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Appointment.Status)
	assert.Equal(t, model.TokenScanned, res.Token.Status)
	require.Len(t, res.Events, 1)
	assert.Equal(t, notify.TypeAppointmentCheckedIn, res.Events[0].Type)
	require.NotNil(t, res.Events[0].Notice)
	assert.Equal(t, "c1", res.Events[0].Notice.CounselorID)
	assert.Equal(t, "https://counsel.example.edu/appointments/a1", res.Events[0].Notice.RedirectURL)

	stored, err := f.store.GetAppointment(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, stored.Status)
}

func TestVerifyTwiceIsRejected(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Verify(context.Background(), f.code)
	require.NoError(t, err)

	_, err = f.svc.Verify(context.Background(), f.code)
	assert.ErrorIs(t, err, model.ErrAlreadyUsedOrInvalid)
}

func TestConcurrentScansTransitionOnce(t *testing.T) {
	f := setup(t)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.svc.Verify(context.Background(), f.code); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, wins.Load())
}

func TestVerifyRejectsCancelledAppointment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	cancelled := f.appt
	cancelled.Status = model.StatusCancelled
	cancelled.CancellationReason = "sick"
	_, err := f.store.UpdateAppointment(ctx, cancelled, model.StatusScheduled)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, f.code)
	assert.ErrorIs(t, err, model.ErrInvalidState)
}

func TestVerifyRejectsDeletedAppointment(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	_, err := f.store.DeleteAppointment(ctx, "a1")
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, f.code)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

type busyGuard struct{}

func (busyGuard) Acquire(context.Context, string) (bool, error) { return false, nil }
func (busyGuard) Release(context.Context, string)               {}

func TestVerifyHonorsScanGuard(t *testing.T) {
	f := setup(t)
	f.svc.guard = busyGuard{}

	_, err := f.svc.Verify(context.Background(), f.code)
	assert.ErrorIs(t, err, model.ErrAlreadyUsedOrInvalid)

	stored, _ := f.store.GetAppointment(context.Background(), "a1")
	assert.Equal(t, model.StatusScheduled, stored.Status)
}

func TestQRRoundTripFeedsVerify(t *testing.T) {
	f := setup(t)

	code, err := f.svc.Code(context.Background(), "a1")
	require.NoError(t, err)
	png, err := RenderQR(code, 512)
	require.NoError(t, err)

	decoded, err := DecodeQR(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, code, decoded)

	res, err := f.svc.Verify(context.Background(), decoded)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Appointment.Status)

	_, err = DecodeQR(bytes.NewReader([]byte("definitely not an image")))
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestVerifyRejectsAlteredPayloadWithoutSideEffects(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	var fields map[string]any
	require.NoError(t, json.Unmarshal([]byte(f.code), &fields))
	fields["time"] = "10:00"
	altered, err := json.Marshal(fields)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, string(altered))
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	stored, err := f.store.GetAppointment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, stored.Status)
	tok, err := f.store.TokenForAppointment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, model.TokenGenerated, tok.Status)
}

func TestIssueThenVerifyRedeemsOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	appt := model.Appointment{
		ID: "a2", StudentID: "s2", CounselorID: "c1", Program: "CS",
		Date: "2030-01-07", Time: "10:00", DurationMinutes: 60, Status: model.StatusScheduled,
	}
	require.NoError(t, f.store.CreateAppointment(ctx, appt, model.CheckInToken{}, 1))

	tok, err := f.svc.Issue(ctx, appt)
	require.NoError(t, err)
	stored, err := f.store.TokenByNonce(ctx, tok.Nonce)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, stored.ID)

	res, err := f.svc.Verify(ctx, tok.Payload)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Appointment.Status)

	_, err = f.svc.Verify(ctx, tok.Payload)
	assert.ErrorIs(t, err, model.ErrAlreadyUsedOrInvalid)
}

func TestIssueRequiresStoredAppointment(t *testing.T) {
	f := setup(t)
	_, err := f.svc.Issue(context.Background(), model.Appointment{
		ID: "missing", StudentID: "s9", CounselorID: "c1", Program: "CS",
		Date: "2030-01-07", Time: "11:00", Status: model.StatusScheduled,
	})
	assert.ErrorIs(t, err, model.ErrPersistence)
}

func TestCodeIssuesTokenWhenNoneStored(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	appt := model.Appointment{
		ID: "a3", StudentID: "s3", CounselorID: "c1", Program: "CS",
		Date: "2030-01-07", Time: "11:00", DurationMinutes: 60, Status: model.StatusScheduled,
	}
	require.NoError(t, f.store.CreateAppointment(ctx, appt, model.CheckInToken{}, 1))

	code, err := f.svc.Code(ctx, "a3")
	require.NoError(t, err)
	again, err := f.svc.Code(ctx, "a3")
	require.NoError(t, err)
	assert.Equal(t, code, again)

	res, err := f.svc.Verify(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, res.Appointment.Status)
}
