// Package video opens file-backed frame sources, the recorded output and display windows.
package video

import (
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// FileSource reads frames from a video file
type FileSource struct {
	capture   *gocv.VideoCapture
	fps       float64
	closeOnce sync.Once
	closeErr  error
}

// OpenFile opens video file for reading
func OpenFile(path string) (*FileSource, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open video '%s'", path)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("video '%s' is not readable", path)
	}
	return &FileSource{
		capture: capture,
		fps:     capture.Get(gocv.VideoCaptureFPS),
	}, nil
}

// Read decodes next frame into dst. Returns false at end of file or after Close.
func (fs *FileSource) Read(dst *gocv.Mat) bool {
	if fs.capture == nil {
		return false
	}
	return fs.capture.Read(dst)
}

// FPS is the frame rate reported by the container. May be zero or garbage.
func (fs *FileSource) FPS() float64 {
	return fs.fps
}

// Close releases the decoder. Safe to call more than once.
func (fs *FileSource) Close() error {
	fs.closeOnce.Do(func() {
		fs.closeErr = fs.capture.Close()
		fs.capture = nil
	})
	return fs.closeErr
}
