// Package notify sends stage-arrival reminders when a fleet reaches the
// stage a passenger asked about.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/models"
	"fleet_tracker/internal/repository"
	"fleet_tracker/internal/stream"
)

// ConsumerGroup is the group reminders are dispatched under.
const ConsumerGroup = "notification_reminders"

// Notifier delivers one reminder.
type Notifier interface {
	Notify(ctx context.Context, reminder models.NotificationReminder, st events.MovementState) error
}

// LogNotifier only logs reminders. Push delivery lives outside this service.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, reminder models.NotificationReminder, st events.MovementState) error {
	logrus.WithFields(logrus.Fields{
		"reminder_id": reminder.ID,
		"trip_id":     reminder.TripID,
		"fleet_no":    st.FleetNo,
		"stage":       st.CurrentStage,
	}).Info(reminder.Message)
	return nil
}

type Dispatcher struct {
	repo     *repository.Repository
	notifier Notifier
	now      func() time.Time
}

func NewDispatcher(repo *repository.Repository, notifier Notifier) *Dispatcher {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Dispatcher{repo: repo, notifier: notifier, now: time.Now}
}

// HandleMovement sends every pending reminder for the trip and the stage
// the fleet just reached. A reminder is marked only after it was sent, so
// a failed send is retried on redelivery.
func (d *Dispatcher) HandleMovement(ctx context.Context, e stream.Entry) error {
	var st events.MovementState
	if err := e.Decode(&st); err != nil {
		return stream.Drop(err)
	}
	if st.TripID == 0 {
		return nil
	}

	reminders, err := d.repo.PendingReminders(ctx, st.TripID, st.CurrentStageID)
	if err != nil {
		return err
	}
	for _, r := range reminders {
		if err := d.notifier.Notify(ctx, r, st); err != nil {
			return err
		}
		err := d.repo.MarkReminderNotified(ctx, r.ID, d.now())
		if errors.Is(err, repository.ErrReminderNotified) {
			continue
		}
		if err != nil {
			return err
		}
		metrics.RemindersSent.Add(1)
	}
	return nil
}

// Run dispatches reminders from the movement stream until ctx is cancelled.
func (d *Dispatcher) Run(ctx context.Context, client *stream.Client, base stream.ConsumerOptions) error {
	opts := base
	opts.Stream = events.MovementStream
	opts.Group = ConsumerGroup
	return client.Consume(ctx, opts, d.HandleMovement)
}
