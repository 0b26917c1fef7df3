package panel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/LdDl/trackblur/playback"
	"github.com/LdDl/trackblur/registry"
	"github.com/LdDl/trackblur/tracking"
)

// Controls is the playback surface operated by the buttons
type Controls interface {
	Start() error
	Pause()
	Resume()
	SetObfuscation(enabled bool)
	Quit()
	Status() playback.Status
}

// Selections is the track registry as seen by the operator
type Selections interface {
	Subscribe(fn func(registry.Event)) func()
	SetSelected(id tracking.ID, flag bool)
	IsSelected(id tracking.ID) bool
}

// Notifier shows modal messages to the operator
type Notifier interface {
	Info(title, message string)
	Error(title, message string)
}

// DisplayStats counts frame pairs shown on the displays and pairs replaced before showing
type DisplayStats interface {
	Delivered() int64
	Dropped() int64
}

// view is what the commands draw on: one toggle per identity and a status line
type view interface {
	AddToggle(id tracking.ID, onToggle func())
	ClearToggles()
	SetStatus(line string)
}

// commands is the toolkit independent part of the panel.
// Every method except push must be called from the UI thread.
type commands struct {
	controls   Controls
	selections Selections
	display    DisplayStats
	notifier   Notifier
	view       view
	logger     zerolog.Logger

	mu      sync.Mutex
	pending []registry.Event

	toggles map[tracking.ID]bool
}

func newCommands(controls Controls, selections Selections, display DisplayStats, notifier Notifier, v view, logger zerolog.Logger) *commands {
	return &commands{
		controls:   controls,
		selections: selections,
		display:    display,
		notifier:   notifier,
		view:       v,
		logger:     logger,
		toggles:    make(map[tracking.ID]bool),
	}
}

// push queues registry event. Called from whatever goroutine mutates the registry.
func (cmd *commands) push(event registry.Event) {
	cmd.mu.Lock()
	cmd.pending = append(cmd.pending, event)
	cmd.mu.Unlock()
}

// sync applies queued events: drop every toggle on reset, add a toggle per newly observed identity.
// Returns identities needing a new toggle and whether existing toggles must be removed first.
func (cmd *commands) sync() (added []tracking.ID, cleared bool) {
	cmd.mu.Lock()
	events := cmd.pending
	cmd.pending = nil
	cmd.mu.Unlock()

	for _, event := range events {
		switch event.Kind {
		case registry.EventReset:
			cleared = true
			added = added[:0]
			cmd.toggles = make(map[tracking.ID]bool)
		case registry.EventObserved:
			if _, ok := cmd.toggles[event.ID]; ok {
				continue
			}
			cmd.toggles[event.ID] = false
			added = append(added, event.ID)
		}
	}
	sort.Slice(added, func(i, j int) bool { return added[i] < added[j] })
	return added, cleared
}

// refresh applies queued events to the view and redraws the status line
func (cmd *commands) refresh() {
	added, cleared := cmd.sync()
	if cleared {
		cmd.view.ClearToggles()
	}
	for _, id := range added {
		cmd.view.AddToggle(id, func() { cmd.toggle(id) })
	}
	cmd.view.SetStatus(cmd.statusLine())
}

// toggle flips selection of identity. Toggles left over from a previous run are ignored.
func (cmd *commands) toggle(id tracking.ID) {
	current, ok := cmd.toggles[id]
	if !ok {
		cmd.logger.Debug().Int("id", int(id)).Msg("Stale toggle ignored")
		return
	}
	flag := !current
	cmd.toggles[id] = flag
	cmd.selections.SetSelected(id, flag)
	cmd.logger.Debug().Int("id", int(id)).Bool("selected", flag).Msg("Selection changed")
}

// start begins a run. Toggles of the previous run are replaced before any further click is handled.
func (cmd *commands) start() {
	defer cmd.refresh()
	if err := cmd.controls.Start(); err != nil {
		cmd.logger.Error().Err(err).Msg("Can't start playback")
		if errors.Is(err, playback.ErrSinkOpen) {
			cmd.notifier.Error("Error", "Cannot create output file.")
			return
		}
		cmd.notifier.Error("Error", "Cannot open video file.")
	}
}

func (cmd *commands) pause() {
	cmd.controls.Pause()
}

func (cmd *commands) resume() {
	cmd.controls.Resume()
}

func (cmd *commands) blur(enabled bool) {
	cmd.controls.SetObfuscation(enabled)
	if enabled {
		cmd.notifier.Info("Blur", "Blurring started for selected IDs.")
		return
	}
	cmd.notifier.Info("Blur", "Blurring stopped.")
}

func (cmd *commands) quit() {
	cmd.controls.Quit()
}

// statusLine renders controller status for the panel
func (cmd *commands) statusLine() string {
	status := cmd.controls.Status()
	blur := "off"
	if status.Obfuscating {
		blur = "on"
	}
	return fmt.Sprintf("%s | blur %s | frames %d | shown %d | dropped %d",
		status.State, blur, status.FramesWritten, cmd.display.Delivered(), cmd.display.Dropped())
}
