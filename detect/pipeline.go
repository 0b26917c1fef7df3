package detect

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/LdDl/trackblur/tracking"
)

// Pipeline detects subjects and binds them to persistent identities
type Pipeline struct {
	detector Detector
	tracker  *tracking.Tracker
}

// NewPipeline creates Pipeline
func NewPipeline(detector Detector, tracker *tracking.Tracker) *Pipeline {
	return &Pipeline{
		detector: detector,
		tracker:  tracker,
	}
}

// Track runs detection and association for one frame
func (p *Pipeline) Track(frame gocv.Mat) ([]tracking.Detection, error) {
	candidates, err := p.detector.Detect(frame)
	if err != nil {
		return nil, errors.Wrap(err, "detection failed")
	}
	return p.tracker.Update(candidates)
}

// Reset drops every track and restarts identities
func (p *Pipeline) Reset() {
	p.tracker.Reset()
}
