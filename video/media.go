package video

import (
	"image"

	"github.com/LdDl/trackblur/playback"
)

var _ playback.Media = Files{}

// Files opens the input video and the recorded output by path.
// Every Start of playback reopens both, so the output is truncated per run.
type Files struct {
	Input  string
	Output string
}

// OpenSource opens Input
func (f Files) OpenSource() (playback.Source, error) {
	source, err := OpenFile(f.Input)
	if err != nil {
		return nil, err
	}
	return source, nil
}

// OpenSink creates Output
func (f Files) OpenSink(fps float64, size image.Point) (playback.Sink, error) {
	sink, err := CreateFile(f.Output, fps, size)
	if err != nil {
		return nil, err
	}
	return sink, nil
}
