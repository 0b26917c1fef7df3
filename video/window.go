package video

import (
	"gocv.io/x/gocv"
)

// Window is a HighGUI display created on first Show.
// All calls must come from one OS thread.
type Window struct {
	title  string
	window *gocv.Window
}

// NewWindow prepares window with given title
func NewWindow(title string) *Window {
	return &Window{title: title}
}

// Show draws frame and pumps the window event queue
func (w *Window) Show(frame gocv.Mat) {
	if frame.Empty() {
		return
	}
	if w.window == nil {
		w.window = gocv.NewWindow(w.title)
	}
	w.window.IMShow(frame)
	w.window.WaitKey(1)
}

// Close destroys the window if it was ever shown
func (w *Window) Close() error {
	if w.window == nil {
		return nil
	}
	err := w.window.Close()
	w.window = nil
	return err
}
