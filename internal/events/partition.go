package events

import (
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Partition maps a fleet to one of n GPS partitions. The same fleet always
// lands on the same partition for a given n.
func Partition(fleetNo string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(fleetNo) % uint64(n))
}

// GPSStreamKey returns the GPS stream for partition p out of n.
// A single partition uses the bare stream key.
func GPSStreamKey(p, n int) string {
	if n <= 1 {
		return GPSStream
	}
	return GPSStream + ":" + strconv.Itoa(p)
}

// GPSStreamFor returns the GPS stream a fleet's readings are published on.
func GPSStreamFor(fleetNo string, n int) string {
	return GPSStreamKey(Partition(fleetNo, n), n)
}
