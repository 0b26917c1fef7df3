// Package detect finds subjects on a frame and feeds them to the tracker.
package detect

import (
	"image"
	"sort"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"github.com/LdDl/trackblur/config"
	"github.com/LdDl/trackblur/tracking"
)

// Detector yields tracking candidates for a frame
type Detector interface {
	Detect(frame gocv.Mat) ([]tracking.Candidate, error)
}

// YOLO runs YOLOv8 model exported to ONNX.
// Output tensor layout is [1, 4+classes, anchors]: center x, center y, width, height
// in network input pixels followed by per-class scores.
type YOLO struct {
	net           gocv.Net
	names         ClassNames
	classes       map[int]struct{}
	inputSize     int
	confThreshold float32
	nmsThreshold  float32
	logger        zerolog.Logger
}

// NewYOLO loads model weights. Only classes listed are reported; empty list means every class.
func NewYOLO(modelPath string, names ClassNames, classes ...int) (*YOLO, error) {
	net := gocv.ReadNetFromONNX(modelPath)
	if net.Empty() {
		return nil, errors.Errorf("can't load model '%s'", modelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	allowed := make(map[int]struct{}, len(classes))
	for _, class := range classes {
		allowed[class] = struct{}{}
	}
	yolo := &YOLO{
		net:           net,
		names:         names,
		classes:       allowed,
		inputSize:     config.DetectorInputSize,
		confThreshold: config.DetectorConfThreshold,
		nmsThreshold:  config.DetectorNMSThreshold,
		logger:        log.With().Str("component", "detect").Logger(),
	}
	yolo.logger.Info().Str("model", modelPath).Int("classes", len(names)).Msg("Detector loaded")
	return yolo, nil
}

// Detect implements Detector
func (yolo *YOLO) Detect(frame gocv.Mat) ([]tracking.Candidate, error) {
	if frame.Empty() {
		return nil, nil
	}
	blob := gocv.BlobFromImage(frame, 1.0/255.0, image.Pt(yolo.inputSize, yolo.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	yolo.net.SetInput(blob, "")
	output := yolo.net.Forward("")
	defer output.Close()

	dims := output.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, errors.Errorf("unexpected output shape %v", dims)
	}
	data, err := output.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "can't read model output")
	}
	scale := [2]float32{
		float32(frame.Cols()) / float32(yolo.inputSize),
		float32(frame.Rows()) / float32(yolo.inputSize),
	}
	proposals := decode(data, dims[1], dims[2], scale, yolo.confThreshold, yolo.allowed)
	if len(proposals) == 0 {
		return nil, nil
	}

	boxes := make([]image.Rectangle, len(proposals))
	scores := make([]float32, len(proposals))
	for i, prop := range proposals {
		boxes[i] = prop.box
		scores[i] = prop.score
	}
	keep := gocv.NMSBoxes(boxes, scores, yolo.confThreshold, yolo.nmsThreshold)
	sort.Ints(keep)

	candidates := make([]tracking.Candidate, 0, len(keep))
	for _, idx := range keep {
		prop := proposals[idx]
		candidates = append(candidates, tracking.Candidate{
			Box:        prop.box,
			ClassID:    prop.classID,
			Class:      yolo.names.Label(prop.classID),
			Confidence: float64(prop.score),
		})
	}
	return candidates, nil
}

func (yolo *YOLO) allowed(classID int) bool {
	if len(yolo.classes) == 0 {
		return true
	}
	_, ok := yolo.classes[classID]
	return ok
}

// Close releases the network
func (yolo *YOLO) Close() error {
	return yolo.net.Close()
}

type proposal struct {
	box     image.Rectangle
	classID int
	score   float32
}

// decode turns raw [channels x anchors] tensor data into proposals above threshold.
// scale maps network input pixels back to frame pixels.
func decode(data []float32, channels, anchors int, scale [2]float32, threshold float32, allowed func(int) bool) []proposal {
	if len(data) < channels*anchors {
		return nil
	}
	proposals := []proposal{}
	for a := 0; a < anchors; a++ {
		bestClass, bestScore := -1, float32(0)
		for c := 4; c < channels; c++ {
			if score := data[c*anchors+a]; score > bestScore {
				bestClass, bestScore = c-4, score
			}
		}
		if bestClass < 0 || bestScore < threshold || !allowed(bestClass) {
			continue
		}
		cx := data[a] * scale[0]
		cy := data[anchors+a] * scale[1]
		w := data[2*anchors+a] * scale[0]
		h := data[3*anchors+a] * scale[1]
		left := int(cx - w/2)
		top := int(cy - h/2)
		proposals = append(proposals, proposal{
			box:     image.Rect(left, top, left+int(w), top+int(h)),
			classID: bestClass,
			score:   bestScore,
		})
	}
	return proposals
}
