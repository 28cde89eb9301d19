package content

import (
	"log/slog"

	"github.com/google/uuid"
	"golang.org/x/net/html"

	"github.com/mywio/reelsaver/pkg/bridge"
	"github.com/mywio/reelsaver/pkg/dom"
	"github.com/mywio/reelsaver/pkg/reel"
)

// Trigger control appearance
const (
	ButtonID        = "process-reel-button"
	LabelIdle       = "Process Reel"
	LabelProcessing = "Processing..."
	ColorIdle       = "#4CAF50"
	ColorHover      = "#45a049"
	ColorProcessing = "#cccccc"
)

// Sender delivers a request to the background context.
type Sender interface {
	Send(req reel.Request, onReply bridge.ReplyFunc) error
}

// Trigger is the button attached next to one video. All methods run on the
// page loop.
type Trigger struct {
	ID        string
	doc       *dom.Document
	button    *html.Node
	container *html.Node
	video     *html.Node
	sender    Sender
	notifier  *Notifier
	logger    *slog.Logger
	state     State
}

func newTrigger(doc *dom.Document, container, video *html.Node, sender Sender, notifier *Notifier, logger *slog.Logger) *Trigger {
	t := &Trigger{
		ID:        uuid.NewString(),
		doc:       doc,
		container: container,
		video:     video,
		sender:    sender,
		notifier:  notifier,
		state:     StateIdle,
	}
	t.logger = logger.With("control", t.ID)

	btn := doc.CreateElement("button")
	dom.SetAttr(btn, "id", ButtonID)
	dom.SetAttr(btn, "data-control-id", t.ID)
	dom.SetStyle(btn,
		"position", "absolute",
		"top", "10px",
		"left", "10px",
		"z-index", "9999",
		"padding", "10px 20px",
		"background-color", ColorIdle,
		"color", "white",
		"border", "none",
		"border-radius", "4px",
		"cursor", "pointer",
		"font-size", "14px",
		"box-shadow", "0 2px 5px rgba(0,0,0,0.2)",
	)
	doc.SetText(btn, LabelIdle)

	doc.AddEventListener(btn, "mouseover", func(*dom.Event) {
		if !t.state.IsActive() {
			dom.SetStyle(btn, "background-color", ColorHover)
		}
	})
	doc.AddEventListener(btn, "mouseout", func(*dom.Event) {
		if !t.state.IsActive() {
			dom.SetStyle(btn, "background-color", ColorIdle)
		}
	})
	doc.AddEventListener(btn, "click", func(e *dom.Event) {
		// keep the click away from the feed's own video handlers
		e.PreventDefault()
		e.StopPropagation()
		t.Activate()
	})
	t.button = btn
	return t
}

// attach positions the container and inserts the button into it.
func (t *Trigger) attach() {
	dom.SetStyle(t.container, "position", "relative")
	t.doc.AppendChild(t.container, t.button)
}

// release drops the button's listeners and takes it out of its detached
// container, so a container that comes back gets a fresh control.
func (t *Trigger) release() {
	t.doc.RemoveEventListeners(t.button)
	if t.button.Parent != nil {
		t.button.Parent.RemoveChild(t.button)
	}
}

// Activate sends one processing request for the current page address. It is
// a no-op returning false while a request is outstanding.
func (t *Trigger) Activate() bool {
	if t.state != StateIdle {
		t.logger.Debug("Ignoring activation while processing")
		return false
	}
	t.state = StateProcessing
	dom.SetAttr(t.button, "disabled", "")
	dom.SetStyle(t.button, "background-color", ColorProcessing)
	t.doc.SetText(t.button, LabelProcessing)

	req := reel.NewRequest(t.doc.URL)
	t.logger.Info("Requesting reel processing", "url", req.URL)

	err := t.sender.Send(req, func(res reel.Result) {
		// replies arrive on a bridge goroutine
		t.doc.Loop.Post(func() { t.OnResult(res) })
	})
	if err != nil {
		// no reply will come; the control stays in Processing
		t.logger.Error("Failed to send processing request", "error", err)
	}
	return true
}

// OnResult restores the control and shows the outcome. Results arriving
// while Idle are ignored.
func (t *Trigger) OnResult(res reel.Result) {
	if t.state != StateProcessing {
		t.logger.Warn("Ignoring result for idle control", "success", res.Success)
		return
	}
	t.state = StateIdle
	dom.RemoveAttr(t.button, "disabled")
	dom.SetStyle(t.button, "background-color", ColorIdle)
	t.doc.SetText(t.button, LabelIdle)

	t.logger.Info("Reel processing finished", "success", res.Success, "message", res.Message)
	t.notifier.Show(res)
}

func (t *Trigger) State() State {
	return t.state
}

// Connected reports whether the button is still part of the page.
func (t *Trigger) Connected() bool {
	return t.doc.Connected(t.button)
}

func (t *Trigger) Button() *html.Node {
	return t.button
}
