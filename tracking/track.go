package tracking

import (
	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Track is a single tracked subject.
// Box dynamics are smoothed by 8-D Kalman filter with state [cx, cy, w, h, vx, vy, vw, vh].
type Track struct {
	id            uuid.UUID
	predictedBBox Rectangle
	noMatchTimes  int
	kf            *kalman_filter.KalmanBBox
}

// NewTrack starts a track at the given box. dt is the time step between two frames.
func NewTrack(box Rectangle, dt float64) *Track {
	center := box.Center()
	kf := kalman_filter.NewKalmanBBox(
		dt, 1.0, 1.0, 0.0, 0.0,
		2.0, 0.1, 0.1, 0.1, 0.1,
		kalman_filter.WithStateBBox(center.X, center.Y, box.Width, box.Height),
	)
	return &Track{
		id:            uuid.New(),
		predictedBBox: box,
		kf:            kf,
	}
}

// GetID returns track's internal key
func (track *Track) GetID() uuid.UUID {
	return track.id
}

// GetPredictedBBox returns bounding box predicted for the next frame
func (track *Track) GetPredictedBBox() Rectangle {
	return track.predictedBBox
}

// GetNoMatchTimes returns number of consecutive frames without a match
func (track *Track) GetNoMatchTimes() int {
	return track.noMatchTimes
}

// IncNoMatch increases no match counter
func (track *Track) IncNoMatch() {
	track.noMatchTimes++
}

// PredictNextPosition executes Kalman filter prediction step
func (track *Track) PredictNextPosition() {
	track.kf.Predict()
	cx, cy, w, h := track.kf.GetState()
	track.predictedBBox = Rectangle{
		X:      cx - w/2.0,
		Y:      cy - h/2.0,
		Width:  w,
		Height: h,
	}
}

// Update corrects the state with a new measurement
func (track *Track) Update(measured Rectangle) error {
	center := measured.Center()
	err := track.kf.Update(center.X, center.Y, measured.Width, measured.Height)
	if err != nil {
		return errors.Wrap(err, "Can't update track state")
	}
	track.noMatchTimes = 0
	return nil
}
