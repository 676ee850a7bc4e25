// Package consumer turns notification.requested.v1 messages into stored
// counselor notifications.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/segmentio/kafka-go"

	"github.com/md-rashed-zaman/counselbook/libs/kafkax"
	"github.com/md-rashed-zaman/counselbook/services/notification-service/internal/storage"
)

const TopicNotificationRequested = "notification.requested.v1"

type request struct {
	CounselorID   string `json:"counselor_id"`
	AppointmentID string `json:"appointment_id"`
	Message       string `json:"message"`
	RedirectURL   string `json:"redirect_url"`
}

type Inserter interface {
	Insert(ctx context.Context, n storage.Notification) (storage.Notification, error)
}

func Handler(repo Inserter, logger *slog.Logger) kafkax.Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		var req request
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			return fmt.Errorf("decode notification request: %w", err)
		}
		req.CounselorID = strings.TrimSpace(req.CounselorID)
		if req.CounselorID == "" || strings.TrimSpace(req.Message) == "" {
			return errors.New("notification request without counselor_id or message")
		}
		n, err := repo.Insert(ctx, storage.Notification{
			CounselorID:   req.CounselorID,
			AppointmentID: req.AppointmentID,
			Message:       req.Message,
			RedirectURL:   req.RedirectURL,
		})
		if err != nil {
			return err
		}
		logger.Info("notification stored", "notification_id", n.ID, "counselor_id", n.CounselorID, "appointment_id", n.AppointmentID)
		return nil
	}
}
