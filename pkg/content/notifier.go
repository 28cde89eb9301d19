package content

import (
	"time"

	"golang.org/x/net/html/atom"

	"github.com/mywio/reelsaver/pkg/dom"
	"github.com/mywio/reelsaver/pkg/metrics"
	"github.com/mywio/reelsaver/pkg/reel"
)

const (
	NotificationClass   = "reel-notification"
	ColorSuccess        = "#4CAF50"
	ColorError          = "#f44336"
	FallbackSuccess     = "Success!"
	FallbackError       = "Processing failed. Please try again."
	notificationStyleID = "reel-notification-keyframes"
)

const fadeKeyframes = `
@keyframes fadeInOut {
    0% { opacity: 0; transform: translateY(-20px); }
    10% { opacity: 1; transform: translateY(0); }
    90% { opacity: 1; transform: translateY(0); }
    100% { opacity: 0; transform: translateY(-20px); }
}
`

// Notifier shows transient, color-coded messages in the page.
type Notifier struct {
	doc      *dom.Document
	duration time.Duration
}

func NewNotifier(doc *dom.Document, duration time.Duration) *Notifier {
	return &Notifier{doc: doc, duration: duration}
}

// Show appends a notification for res and removes it after the configured
// duration. Must run on the page loop.
func (n *Notifier) Show(res reel.Result) {
	kind, color, msg := "success", ColorSuccess, res.Message
	if !res.Success {
		kind, color = "error", ColorError
	}
	if msg == "" {
		msg = FallbackError
		if res.Success {
			msg = FallbackSuccess
		}
	}
	n.ensureKeyframes()

	div := n.doc.CreateElement("div")
	dom.SetAttr(div, "class", NotificationClass)
	dom.SetAttr(div, "data-kind", kind)
	dom.SetStyle(div,
		"position", "fixed",
		"top", "20px",
		"right", "20px",
		"padding", "15px",
		"border-radius", "4px",
		"color", "white",
		"z-index", "10000",
		"animation", "fadeInOut "+formatDuration(n.duration)+" ease-in-out forwards",
		"background-color", color,
	)
	n.doc.SetText(div, msg)
	n.doc.AppendChild(n.doc.Body(), div)
	metrics.NotificationsShownTotal.WithLabelValues(kind).Inc()

	n.doc.Loop.AfterFunc(n.duration, func() {
		n.doc.RemoveChild(div)
	})
}

func (n *Notifier) ensureKeyframes() {
	if dom.ByID(n.doc.Root, notificationStyleID) != nil {
		return
	}
	parent := dom.FirstByTag(n.doc.Root, atom.Head)
	if parent == nil {
		parent = n.doc.Body()
	}
	style := n.doc.CreateElement("style")
	dom.SetAttr(style, "id", notificationStyleID)
	n.doc.SetText(style, fadeKeyframes)
	n.doc.AppendChild(parent, style)
}

func formatDuration(d time.Duration) string {
	return d.Round(time.Millisecond).String()
}
