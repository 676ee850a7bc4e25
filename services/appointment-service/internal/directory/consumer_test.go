package directory

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/memstore"
	"github.com/md-rashed-zaman/counselbook/services/appointment-service/internal/model"
)

func TestHandlerAppliesAssignments(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	h := Handler(store, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, h(ctx, kafka.Message{Value: []byte(`{"counselor_id":"c1","program":"CS","assigned_at":"2024-09-01T00:00:00Z"}`)}))
	id, err := store.FirstCounselor(ctx, "CS")
	require.NoError(t, err)
	assert.Equal(t, "c1", id)

	require.NoError(t, h(ctx, kafka.Message{Value: []byte(`{"counselor_id":"c1","program":"CS","active":false}`)}))
	_, err = store.FirstCounselor(ctx, "CS")
	assert.ErrorIs(t, err, model.ErrNotFound)

	assert.Error(t, h(ctx, kafka.Message{Value: []byte(`{"program":"CS"}`)}))
	assert.Error(t, h(ctx, kafka.Message{Value: []byte(`not json`)}))
}
