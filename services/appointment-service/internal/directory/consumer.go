// Package directory keeps the local program to counselor assignments in step
// with the campus directory.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

const TopicCounselorAssigned = "directory.counselor.assigned.v1"

// Assignment is the body of a directory.counselor.assigned.v1 message.
// Active=false withdraws the counselor from the program.
type Assignment struct {
	CounselorID string    `json:"counselor_id"`
	Program     string    `json:"program"`
	Active      *bool     `json:"active,omitempty"`
	AssignedAt  time.Time `json:"assigned_at"`
}

type Repository interface {
	UpsertProgramCounselor(ctx context.Context, pc model.ProgramCounselor) error
}

// Handler applies assignment messages to repo.
func Handler(repo Repository, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var a Assignment
		if err := json.Unmarshal(msg.Value, &a); err != nil {
			return fmt.Errorf("decode assignment: %w", err)
		}
		a.CounselorID = strings.TrimSpace(a.CounselorID)
		a.Program = strings.TrimSpace(a.Program)
		if a.CounselorID == "" || a.Program == "" {
			return errors.New("assignment without counselor_id or program")
		}
		active := a.Active == nil || *a.Active
		if err := repo.UpsertProgramCounselor(ctx, model.ProgramCounselor{
			CounselorID: a.CounselorID,
			Program:     a.Program,
			Active:      active,
			AssignedAt:  a.AssignedAt,
		}); err != nil {
			return err
		}
		logger.Info("counselor assignment applied", "counselor_id", a.CounselorID, "program", a.Program, "active", active)
		return nil
	}
}
