// Package panel is the operator window: playback buttons, blur switches and a
// horizontally scrolled strip with one checkbutton per observed track identity.
//
// Registry events may arrive from any goroutine. They are queued and applied to
// the widgets by a ticker running on the Tk thread, and right after Start.
package panel

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	tk "modernc.org/tk9.0"

	"github.com/LdDl/trackblur/tracking"
)

const (
	title        = "Track ID Blur Tool with Dual View"
	syncInterval = 100 * time.Millisecond
)

// Panel owns the Tk widgets. Must be created and run on the main goroutine.
type Panel struct {
	cmd          *commands
	unsubscribe  func()
	ticker       *tk.Ticker
	status       *tk.LabelWidget
	strip        *tk.TextWidget
	checkbuttons map[tracking.ID]*tk.CheckbuttonWidget
}

// New builds the window. display provides counters for the status line. Nothing is shown until Run.
func New(controls Controls, selections Selections, display DisplayStats) (*Panel, error) {
	p := &Panel{
		checkbuttons: make(map[tracking.ID]*tk.CheckbuttonWidget),
	}
	p.cmd = newCommands(controls, selections, display, dialogs{}, p, log.With().Str("component", "panel").Logger())

	tk.App.WmTitle(title)

	// Identity strip: a single line read-only text holding the checkbuttons as embedded
	// windows, scrolled sideways once they no longer fit
	stripFrame := tk.Frame()
	tk.Pack(stripFrame, tk.Padx(10), tk.Fill("x"))
	var scroll *tk.TScrollbarWidget
	p.strip = stripFrame.Text(
		tk.Height(1),
		tk.Wrap("none"),
		tk.State("disabled"),
		tk.Xscrollcommand(func(e *tk.Event) { e.ScrollSet(scroll) }),
	)
	scroll = stripFrame.TScrollbar(tk.Orient("horizontal"), tk.Command(func(e *tk.Event) { e.Xview(p.strip) }))
	tk.Pack(scroll, tk.Side("bottom"), tk.Fill("x"))
	tk.Pack(p.strip, tk.Side("top"), tk.Fill("x"))

	buttons := tk.Frame()
	tk.Pack(buttons, tk.Pady(10))
	for _, btn := range []struct {
		text    string
		handler func()
	}{
		{"Start", p.cmd.start},
		{"Pause", p.cmd.pause},
		{"Resume", p.cmd.resume},
		{"Start Blurring", func() { p.cmd.blur(true) }},
		{"Stop Blurring", func() { p.cmd.blur(false) }},
		{"Quit", p.quit},
	} {
		tk.Pack(buttons.Button(tk.Txt(btn.text), tk.Command(btn.handler)), tk.Side("left"), tk.Padx(5))
	}

	p.status = tk.Label(tk.Txt(p.cmd.statusLine()))
	tk.Pack(p.status, tk.Pady(5))

	p.unsubscribe = selections.Subscribe(p.cmd.push)

	ticker, err := tk.NewTicker(syncInterval, p.cmd.refresh)
	if err != nil {
		p.unsubscribe()
		return nil, errors.Wrap(err, "can't start panel ticker")
	}
	p.ticker = ticker
	return p, nil
}

// Run blocks until the window is closed
func (p *Panel) Run() {
	tk.App.Wait()
	p.unsubscribe()
	p.ticker.Destroy()
}

// AddToggle appends "ID <n>" checkbutton at the end of the strip
func (p *Panel) AddToggle(id tracking.ID, onToggle func()) {
	cb := p.strip.Checkbutton(tk.Txt(fmt.Sprintf("ID %d", id)), tk.Command(onToggle))
	p.strip.Configure(tk.State("normal"))
	p.strip.InsertML(cb, " ")
	p.strip.Configure(tk.State("disabled"))
	p.checkbuttons[id] = cb
}

// ClearToggles destroys every checkbutton and scrolls the strip back to the start
func (p *Panel) ClearToggles() {
	for id, cb := range p.checkbuttons {
		tk.Destroy(cb)
		delete(p.checkbuttons, id)
	}
	p.strip.Configure(tk.State("normal"))
	p.strip.Clear()
	p.strip.Configure(tk.State("disabled"))
}

// SetStatus replaces the status line
func (p *Panel) SetStatus(line string) {
	p.status.Configure(tk.Txt(line))
}

func (p *Panel) quit() {
	p.cmd.quit()
	tk.Destroy(tk.App)
}

// dialogs shows Tk message boxes
type dialogs struct{}

func (dialogs) Info(title, message string) {
	tk.MessageBox(tk.Title(title), tk.Msg(message), tk.Icon("info"))
}

func (dialogs) Error(title, message string) {
	tk.MessageBox(tk.Title(title), tk.Msg(message), tk.Icon("error"))
}
