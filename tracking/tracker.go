package tracking

import (
	"image"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// ID is the persistent identity handed out to a tracked subject.
// Identities start at 1 and grow in first-seen order.
type ID int

// Candidate is a single detector output before association.
type Candidate struct {
	Box        image.Rectangle
	ClassID    int
	Class      string
	Confidence float64
}

// Detection is a candidate bound to a track identity.
type Detection struct {
	Box     image.Rectangle
	ClassID int
	Class   string
	ID      ID
}

// Tracker turns per-frame candidates into detections carrying stable identities.
// It is not safe for concurrent use.
type Tracker struct {
	engine *ByteTracker
	ids    map[uuid.UUID]ID
	lastID ID
}

// NewDefaultTracker creates Tracker backed by DefaultByteTracker
func NewDefaultTracker() *Tracker {
	return NewTracker(DefaultByteTracker())
}

// NewTracker creates Tracker on top of the given association engine
func NewTracker(engine *ByteTracker) *Tracker {
	return &Tracker{
		engine: engine,
		ids:    make(map[uuid.UUID]ID),
	}
}

// Update associates candidates of one frame. Candidates not bound to any track are dropped.
// Output keeps the order of candidates.
func (tracker *Tracker) Update(candidates []Candidate) ([]Detection, error) {
	assigned, err := tracker.engine.MatchObjects(candidates)
	if err != nil {
		return nil, errors.Wrap(err, "Can't associate candidates")
	}
	detections := make([]Detection, 0, len(candidates))
	for i, key := range assigned {
		if key == uuid.Nil {
			continue
		}
		id, ok := tracker.ids[key]
		if !ok {
			tracker.lastID++
			id = tracker.lastID
			tracker.ids[key] = id
		}
		detections = append(detections, Detection{
			Box:     candidates[i].Box,
			ClassID: candidates[i].ClassID,
			Class:   candidates[i].Class,
			ID:      id,
		})
	}
	// Identities of dropped tracks are not handed out again
	for key := range tracker.ids {
		if _, alive := tracker.engine.Objects[key]; !alive {
			delete(tracker.ids, key)
		}
	}
	return detections, nil
}

// Reset forgets every track and restarts identities from 1
func (tracker *Tracker) Reset() {
	tracker.engine.Reset()
	tracker.ids = make(map[uuid.UUID]ID)
	tracker.lastID = 0
}
