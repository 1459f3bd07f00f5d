package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/repository/repotest"
	"fleet_tracker/internal/stream"
)

type recordingNotifier struct {
	sent []uint
	err  error
}

func (n *recordingNotifier) Notify(_ context.Context, r models.NotificationReminder, _ events.MovementState) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, r.ID)
	return nil
}

func arrival(tripID, stageID uint) stream.Entry {
	return stream.Entry{ID: "1-0", Kind: events.KindMovementState, Payload: map[string]any{
		"fleetNo": "SM-001", "routeId": 1, "routeName": "A - C",
		"currentStageId": stageID, "currentStage": "B", "direction": "forward",
		"tripId": tripID, "observedAt": "2026-01-01T06:00:00Z",
	}}
}

func TestHandleMovementSendsPendingReminders(t *testing.T) {
	db := repotest.OpenDB(t)
	line := repotest.SeedLine(t, db, "SM-001")
	repo := repository.New(db)
	ctx := context.Background()
	stageB := line.StageID("B")

	due := models.NotificationReminder{TripID: 3, StageID: stageB, PushToken: "tok-1", Message: "Your stage is next"}
	other := models.NotificationReminder{TripID: 3, StageID: line.StageID("C"), PushToken: "tok-2"}
	otherTrip := models.NotificationReminder{TripID: 4, StageID: stageB, PushToken: "tok-3"}
	for _, r := range []*models.NotificationReminder{&due, &other, &otherTrip} {
		require.NoError(t, repo.CreateReminder(ctx, r))
	}

	notifier := &recordingNotifier{}
	d := NewDispatcher(repo, notifier)

	require.NoError(t, d.HandleMovement(ctx, arrival(3, stageB)))
	assert.Equal(t, []uint{due.ID}, notifier.sent)

	// Redelivery sends nothing twice.
	require.NoError(t, d.HandleMovement(ctx, arrival(3, stageB)))
	assert.Equal(t, []uint{due.ID}, notifier.sent)

	require.NoError(t, d.HandleMovement(ctx, arrival(0, stageB)), "states without a trip are ignored")
}

func TestHandleMovementRetriesFailedSends(t *testing.T) {
	db := repotest.OpenDB(t)
	line := repotest.SeedLine(t, db, "SM-001")
	repo := repository.New(db)
	ctx := context.Background()

	r := models.NotificationReminder{TripID: 3, StageID: line.StageID("B"), PushToken: "tok"}
	require.NoError(t, repo.CreateReminder(ctx, &r))

	notifier := &recordingNotifier{err: errors.New("push service down")}
	d := NewDispatcher(repo, notifier)
	err := d.HandleMovement(ctx, arrival(3, line.StageID("B")))
	require.Error(t, err)
	assert.NotErrorIs(t, err, stream.ErrDropped)

	pending, err := repo.PendingReminders(ctx, 3, line.StageID("B"))
	require.NoError(t, err)
	assert.Len(t, pending, 1, "still pending")

	notifier.err = nil
	require.NoError(t, d.HandleMovement(ctx, arrival(3, line.StageID("B"))))
	assert.Equal(t, []uint{r.ID}, notifier.sent)
}
