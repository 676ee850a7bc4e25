package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMatchesKindAndCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap("booking.Create", ErrPersistence, "insert appointment", cause)
	wrapped := fmt.Errorf("handler: %w", err)

	assert.ErrorIs(t, wrapped, ErrPersistence)
	assert.ErrorIs(t, wrapped, cause)
	assert.NotErrorIs(t, wrapped, ErrCapacity)
	assert.Equal(t, ErrPersistence, KindOf(wrapped))
	assert.Equal(t, "booking.Create: insert appointment: connection reset", err.Error())
}

func TestEffectiveCapacity(t *testing.T) {
	var none *TimeSlot
	assert.Equal(t, 3, none.EffectiveCapacity(3))
	assert.Equal(t, 2, (&TimeSlot{MaxCapacity: 2, IsAvailable: true}).EffectiveCapacity(3))
	assert.Equal(t, 3, (&TimeSlot{IsAvailable: true}).EffectiveCapacity(3))
	assert.Equal(t, 0, (&TimeSlot{MaxCapacity: 5, IsAvailable: false}).EffectiveCapacity(3))
}

func TestStatusForProgress(t *testing.T) {
	assert.Equal(t, GoalCompleted, StatusForProgress(100))
	assert.Equal(t, GoalInProgress, StatusForProgress(99))
	assert.Equal(t, GoalInProgress, StatusForProgress(0))
}
