// Package config holds build-time settings of the tool.
package config

import (
	"image"
	"image/color"
	"time"
)

const (
	// OutputWidth and OutputHeight are the geometry every frame is normalized to
	OutputWidth  = 480
	OutputHeight = 360

	// DefaultFPS is used when the source reports no usable frame rate
	DefaultFPS = 30.0

	// BlurKernel is the box filter size used to obscure a selected subject
	BlurKernel = 45

	// TargetClass is the detector class index that gets tracked ("person" in COCO)
	TargetClass = 0

	// OutputFourCC is the codec of the recorded output
	OutputFourCC = "mp4v"
)

// Annotation styling
const (
	OutlineThickness = 2
	LabelFontScale   = 0.6
	LabelThickness   = 2
	// IDLabelOffset is the distance between the box's bottom edge and the identity label baseline
	IDLabelOffset = 15
	// ClassLabelOffset is the distance between the class label baseline and the box's top edge
	ClassLabelOffset = 5
)

// Detector settings
const (
	DetectorInputSize     = 640
	DetectorConfThreshold = 0.25
	DetectorNMSThreshold  = 0.45
)

// Default file locations, overridable by command line flags
const (
	DefaultInput  = "vid.mp4"
	DefaultOutput = "output_blurred.mp4"
	DefaultModel  = "yolov8n.onnx"
	DefaultNames  = "coco.names"
)

var (
	OutlineColor    = color.RGBA{0, 255, 0, 0}
	IDLabelColor    = color.RGBA{255, 255, 255, 0}
	ClassLabelColor = color.RGBA{0, 255, 0, 0}
)

// OutputSize returns output frame geometry
func OutputSize() image.Point {
	return image.Pt(OutputWidth, OutputHeight)
}

// FrameInterval returns delay between two ticks for the given frame rate.
// Invalid rates (zero, negative, NaN, Inf) fall back to DefaultFPS.
func FrameInterval(fps float64) time.Duration {
	return time.Duration(float64(time.Second) / SanitizeFPS(fps))
}

// SanitizeFPS returns fps if it is a usable frame rate and DefaultFPS otherwise
func SanitizeFPS(fps float64) float64 {
	// NaN fails every comparison, +Inf is caught by the upper bound
	if !(fps > 0) || fps > 1000 {
		return DefaultFPS
	}
	return fps
}
