// Package annotate decides, per detection, whether a subject gets outlined and labelled
// or obscured, and applies that treatment to the frame pixels.
package annotate

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/LdDl/trackblur/config"
	"github.com/LdDl/trackblur/tracking"
)

// Selector is the part of the track registry the annotator consults
type Selector interface {
	Observe(id tracking.ID) bool
	IsSelected(id tracking.ID) bool
}

// Annotator draws onto frames in place
type Annotator struct {
	kernel image.Point
}

// New creates Annotator with the build-time blur kernel
func New() *Annotator {
	return NewWithKernel(config.BlurKernel)
}

// NewWithKernel creates Annotator with a custom square blur kernel
func NewWithKernel(size int) *Annotator {
	if size < 1 {
		size = 1
	}
	return &Annotator{kernel: image.Pt(size, size)}
}

// Annotate processes every detection once, in the given order: the identity is registered
// with selector, then the region is either blurred (obfuscate and selected) or outlined
// with identity and class labels. Boxes are clipped to the frame before any pixel access.
// The frame keeps its dimensions.
func (a *Annotator) Annotate(frame *gocv.Mat, detections []tracking.Detection, selector Selector, obfuscate bool) {
	bounds := image.Rect(0, 0, frame.Cols(), frame.Rows())
	for _, det := range detections {
		selector.Observe(det.ID)
		box := det.Box.Canon().Intersect(bounds)
		if box.Empty() {
			continue
		}
		if obfuscate && selector.IsSelected(det.ID) {
			a.obscure(frame, box)
			continue
		}
		a.outline(frame, det, box)
	}
}

func (a *Annotator) obscure(frame *gocv.Mat, box image.Rectangle) {
	roi := frame.Region(box)
	defer roi.Close()
	gocv.Blur(roi, &roi, a.kernel)
}

func (a *Annotator) outline(frame *gocv.Mat, det tracking.Detection, box image.Rectangle) {
	gocv.Rectangle(frame, box, config.OutlineColor, config.OutlineThickness)

	idText := fmt.Sprintf("ID:%d", det.ID)
	idPos := labelOrigin(frame, idText, image.Pt(box.Min.X, box.Max.Y+config.IDLabelOffset))
	gocv.PutText(frame, idText, idPos, gocv.FontHersheySimplex, config.LabelFontScale, config.IDLabelColor, config.LabelThickness)

	className := det.Class
	if className == "" {
		className = fmt.Sprintf("class %d", det.ClassID)
	}
	classPos := labelOrigin(frame, className, image.Pt(box.Min.X, box.Min.Y-config.ClassLabelOffset))
	gocv.PutText(frame, className, classPos, gocv.FontHersheySimplex, config.LabelFontScale, config.ClassLabelColor, config.LabelThickness)
}

// labelOrigin shifts text baseline origin so the whole label stays inside the frame
func labelOrigin(frame *gocv.Mat, text string, origin image.Point) image.Point {
	size := gocv.GetTextSize(text, gocv.FontHersheySimplex, config.LabelFontScale, config.LabelThickness)
	maxX := frame.Cols() - size.X
	maxY := frame.Rows() - config.LabelThickness
	return image.Pt(clamp(origin.X, 0, maxX), clamp(origin.Y, size.Y, maxY))
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
