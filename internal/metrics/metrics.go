package metrics

import (
	"fmt"
	"net/http"
	"sync/atomic"
)

var (
	EntriesConsumed     atomic.Int64
	EntriesAcked        atomic.Int64
	EntriesFailed       atomic.Int64
	EntriesDropped      atomic.Int64
	EntriesReclaimed    atomic.Int64
	MovementTransitions atomic.Int64
	TripsStarted        atomic.Int64
	TripsEnded          atomic.Int64
	TripsAutoClosed     atomic.Int64
	BridgeReceived      atomic.Int64
	BridgePublished     atomic.Int64
	RemindersSent       atomic.Int64
)

func HandleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "fleet_stream_entries_consumed_total %d\n", EntriesConsumed.Load())
	fmt.Fprintf(w, "fleet_stream_entries_acked_total %d\n", EntriesAcked.Load())
	fmt.Fprintf(w, "fleet_stream_entries_failed_total %d\n", EntriesFailed.Load())
	fmt.Fprintf(w, "fleet_stream_entries_dropped_total %d\n", EntriesDropped.Load())
	fmt.Fprintf(w, "fleet_stream_entries_reclaimed_total %d\n", EntriesReclaimed.Load())
	fmt.Fprintf(w, "fleet_movement_transitions_total %d\n", MovementTransitions.Load())
	fmt.Fprintf(w, "fleet_trips_started_total %d\n", TripsStarted.Load())
	fmt.Fprintf(w, "fleet_trips_ended_total %d\n", TripsEnded.Load())
	fmt.Fprintf(w, "fleet_trips_auto_closed_total %d\n", TripsAutoClosed.Load())
	fmt.Fprintf(w, "fleet_bridge_messages_received_total %d\n", BridgeReceived.Load())
	fmt.Fprintf(w, "fleet_bridge_messages_published_total %d\n", BridgePublished.Load())
	fmt.Fprintf(w, "fleet_reminders_sent_total %d\n", RemindersSent.Load())
}
