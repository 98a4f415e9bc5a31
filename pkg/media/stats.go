package media

import (
	"errors"
	"io"
	"sync"

	"github.com/pion/rtp"
)

// Receive statistics of a single remote track.
type TrackStats struct {
	Packets uint64
	Bytes   uint64
	// Packets that never arrived, estimated from gaps in the sequence numbers.
	Lost uint64
	// Sequence number and timestamp of the most recent packet.
	LastSequenceNumber uint16
	LastTimestamp      uint32
}

// StatsCounter accumulates `TrackStats`. Safe for concurrent use.
type StatsCounter struct {
	mutex       sync.Mutex
	stats       TrackStats
	initialized bool
}

func (c *StatsCounter) Observe(packet *rtp.Packet) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.stats.Packets++
	c.stats.Bytes += uint64(packet.MarshalSize())

	// Sequence numbers wrap around at 2^16. Late and duplicate packets neither count as gaps
	// nor move the last seen position.
	gap := packet.SequenceNumber - c.stats.LastSequenceNumber
	if c.initialized && (gap == 0 || gap >= 1<<15) {
		return
	}

	if c.initialized && gap > 1 {
		c.stats.Lost += uint64(gap - 1)
	}

	c.initialized = true
	c.stats.LastSequenceNumber = packet.SequenceNumber
	c.stats.LastTimestamp = packet.Timestamp
}

func (c *StatsCounter) Snapshot() TrackStats {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.stats
}

// Reads RTP packets from the track until it ends, passing every packet to `onPacket`.
// Returns nil when the track ended normally.
func Drain(track RemoteTrack, onPacket func(*rtp.Packet)) error {
	for {
		packet, _, err := track.ReadRTP()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}

			return err
		}

		onPacket(packet)
	}
}
