package video

import (
	"image"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/LdDl/trackblur/config"
)

var (
	// ErrSinkClosed is returned when writing to a closed sink
	ErrSinkClosed = errors.New("sink is closed")
	// ErrFrameSize is returned when frame dimensions differ from the ones the sink was created with
	ErrFrameSize = errors.New("frame size mismatch")
)

// FileSink encodes frames into a video file
type FileSink struct {
	size     image.Point
	writer   *gocv.VideoWriter
	mu       sync.Mutex
	closed   bool
	closeErr error
}

// CreateFile creates (or truncates) a video file with the build-time codec
func CreateFile(path string, fps float64, size image.Point) (*FileSink, error) {
	writer, err := gocv.VideoWriterFile(path, config.OutputFourCC, fps, size.X, size.Y, true)
	if err != nil {
		return nil, errors.Wrapf(err, "can't create video '%s'", path)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, errors.Errorf("video '%s' is not writable", path)
	}
	return &FileSink{
		size:   size,
		writer: writer,
	}, nil
}

// Write appends frame to the file
func (fs *FileSink) Write(frame gocv.Mat) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return ErrSinkClosed
	}
	if frame.Cols() != fs.size.X || frame.Rows() != fs.size.Y {
		return errors.Wrapf(ErrFrameSize, "got %dx%d, want %dx%d", frame.Cols(), frame.Rows(), fs.size.X, fs.size.Y)
	}
	if err := fs.writer.Write(frame); err != nil {
		return errors.Wrap(err, "can't encode frame")
	}
	return nil
}

// Close finalizes the file. Safe to call more than once.
func (fs *FileSink) Close() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.closed {
		return fs.closeErr
	}
	fs.closed = true
	fs.closeErr = fs.writer.Close()
	return fs.closeErr
}
