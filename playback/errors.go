package playback

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrSourceOpen means the video source could not be opened at start
	ErrSourceOpen = errors.New("can't open video source")
	// ErrSinkOpen means the output writer could not be opened at start
	ErrSinkOpen = errors.New("can't open video sink")
)

// OpenError reports which session resource failed to open and why.
// errors.Is matches both the kind (ErrSourceOpen, ErrSinkOpen) and the cause.
type OpenError struct {
	Kind error
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *OpenError) Unwrap() []error {
	return []error{e.Kind, e.Err}
}
