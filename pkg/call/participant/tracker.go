package participant

import (
	"github.com/matrix-org/rivulet/pkg/media"
	"github.com/matrix-org/rivulet/pkg/peer"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Creates the session for a new participant. The key is allocated by the tracker.
type SessionFactory func(key peer.SessionKey) (*peer.Session, error)

// Tracker owns the sessions of a call, at most one per remote peer.
// It is not safe for concurrent use, the call's main loop is its only user.
type Tracker struct {
	participants map[string]*Participant
	// Incremented for every created session.
	epoch uint64
	// Called with the full set of published streams whenever it changes.
	onStreamsChanged func(map[string]media.RemoteStream)
}

func NewParticipantTracker(onStreamsChanged func(map[string]media.RemoteStream)) *Tracker {
	return &Tracker{
		participants:     make(map[string]*Participant),
		onStreamsChanged: onStreamsChanged,
	}
}

// Returns the participant with the given peer ID, creating it if there is none yet.
// The second return value tells whether the participant has just been created.
func (t *Tracker) GetOrCreate(peerID string, create SessionFactory) (*Participant, bool, error) {
	if participant, found := t.participants[peerID]; found {
		return participant, false, nil
	}

	t.epoch++
	key := peer.SessionKey{PeerID: peerID, Epoch: t.epoch}

	session, err := create(key)
	if err != nil {
		return nil, false, err
	}

	participant := &Participant{Key: key, Session: session}
	t.participants[peerID] = participant

	return participant, true, nil
}

// Gets an existing participant if any.
func (t *Tracker) Get(peerID string) *Participant {
	return t.participants[peerID]
}

// Gets the participant only if its current session has the given key.
func (t *Tracker) Lookup(key peer.SessionKey) *Participant {
	participant := t.participants[key.PeerID]
	if participant == nil || participant.Key != key {
		return nil
	}

	return participant
}

// Adds the track to the participant's stream. Returns true if the set of published streams changed.
func (t *Tracker) PublishTrack(peerID string, track media.RemoteTrack) bool {
	participant := t.participants[peerID]
	if participant == nil {
		return false
	}

	stream := media.RemoteStream{PeerID: peerID}
	if participant.Stream != nil {
		stream = *participant.Stream
	}

	updated, changed := stream.WithTrack(track)
	if !changed {
		return false
	}

	participant.Stream = &updated
	t.notify()

	return true
}

// Closes the participant's session and forgets about it. Returns false for unknown participants.
func (t *Tracker) Remove(peerID string) bool {
	participant := t.participants[peerID]
	if participant == nil {
		return false
	}

	delete(t.participants, peerID)
	participant.Session.Close()

	if participant.Stream != nil {
		t.notify()
	}

	return true
}

// Closes every session.
func (t *Tracker) RemoveAll() {
	published := false
	for peerID, participant := range t.participants {
		delete(t.participants, peerID)
		participant.Session.Close()
		published = published || participant.Stream != nil
	}

	if published {
		t.notify()
	}
}

// The published streams by peer ID.
func (t *Tracker) Snapshot() map[string]media.RemoteStream {
	streams := make(map[string]media.RemoteStream)
	for peerID, participant := range t.participants {
		if participant.Stream != nil {
			streams[peerID] = *participant.Stream
		}
	}

	return streams
}

func (t *Tracker) Len() int {
	return len(t.participants)
}

// Sorted peer IDs of all participants.
func (t *Tracker) PeerIDs() []string {
	peerIDs := maps.Keys(t.participants)
	slices.Sort(peerIDs)

	return peerIDs
}

// Iterates over participants in the order of their peer IDs.
func (t *Tracker) ForEach(fn func(*Participant)) {
	for _, peerID := range t.PeerIDs() {
		fn(t.participants[peerID])
	}
}

func (t *Tracker) notify() {
	if t.onStreamsChanged != nil {
		t.onStreamsChanged(t.Snapshot())
	}
}
