package broadcast

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"fleet_tracker/internal/events"
	"fleet_tracker/internal/stream"
)

// Event names sent to clients.
const (
	EventMovement = "stream_movement"
	EventCommand  = "stream_cmd"
)

// CommandRoom receives every command broadcast.
const CommandRoom = "cmd"

// CommandStream carries command broadcasts bridged from MQTT.
var CommandStream = events.StreamKeyForTopic(events.TopicCmdBroadcast)

// FleetRoom is the room of clients following one fleet.
func FleetRoom(fleetNo string) string {
	return "fleet:" + fleetNo
}

// GroupName is the per-instance consumer group. Every instance must see
// every event, so instances never share a group.
func GroupName(instanceID string) string {
	return "broadcast:" + instanceID
}

// MovementHandler pushes movement states to the fleet's room.
func MovementHandler(h *Hub) stream.Handler {
	return func(_ context.Context, e stream.Entry) error {
		var st events.MovementState
		if err := e.Decode(&st); err != nil {
			return stream.Drop(err)
		}
		h.Publish(Event{Room: FleetRoom(st.FleetNo), Event: EventMovement, Data: st})
		return nil
	}
}

// CommandHandler pushes bridged command broadcasts to the command room.
func CommandHandler(h *Hub) stream.Handler {
	return func(_ context.Context, e stream.Entry) error {
		h.Publish(Event{Room: CommandRoom, Event: EventCommand, Data: e.Payload})
		return nil
	}
}

// Run feeds the hub from the movement and command broadcast streams until
// ctx is cancelled. Only events appended after start are delivered.
func Run(ctx context.Context, h *Hub, client *stream.Client, instanceID string, base stream.ConsumerOptions) {
	var wg sync.WaitGroup
	for streamKey, handler := range map[string]stream.Handler{
		events.MovementStream: MovementHandler(h),
		CommandStream:         CommandHandler(h),
	} {
		opts := base
		opts.Stream = streamKey
		opts.Group = GroupName(instanceID)
		opts.StartID = "$"
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := client.Consume(ctx, opts, handler); err != nil {
				logrus.WithError(err).WithField("stream", opts.Stream).Error("Broadcast consumer exited")
			}
		}()
	}
	wg.Wait()
}
