package content

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"

	"github.com/mywio/reelsaver/pkg/bridge"
	"github.com/mywio/reelsaver/pkg/dom"
	"github.com/mywio/reelsaver/pkg/reel"
)

const feedPage = `<html><head></head><body>
<div id="feed">
  <article id="post-1"><div class="media"><video src="one.mp4"></video></div></article>
  <article id="post-2"><div class="media"><video src="two.mp4"></video><video src="two-b.mp4"></video></div></article>
</div>
</body></html>`

const reelURL = "https://www.instagram.com/reel/C0ffee/"

type fakeSender struct {
	mu      sync.Mutex
	reqs    []reel.Request
	replies []bridge.ReplyFunc
	err     error
}

func (s *fakeSender) Send(req reel.Request, onReply bridge.ReplyFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.reqs = append(s.reqs, req)
	s.replies = append(s.replies, onReply)
	return nil
}

func (s *fakeSender) requests() []reel.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]reel.Request(nil), s.reqs...)
}

func (s *fakeSender) reply(i int, res reel.Result) {
	s.mu.Lock()
	fn := s.replies[i]
	s.mu.Unlock()
	// replies come from outside the loop in production too
	go fn(res)
}

type fixture struct {
	doc     *dom.Document
	sender  *fakeSender
	watcher *Watcher
}

func newFixture(t *testing.T, page string, duration time.Duration) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop := dom.NewEventLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go loop.Run(ctx)

	doc, err := dom.Parse(strings.NewReader(page), reelURL, loop)
	require.NoError(t, err)

	sender := &fakeSender{}
	w := NewWatcher(doc, sender, NewNotifier(doc, duration), 0, logger)
	require.NoError(t, w.Start(ctx))

	t.Cleanup(func() {
		_ = w.Stop(ctx)
		cancel()
		<-loop.Done()
	})
	return &fixture{doc: doc, sender: sender, watcher: w}
}

// on runs fn on the page loop and fails the test if the loop is gone.
func (f *fixture) on(t *testing.T, fn func()) {
	t.Helper()
	require.NoError(t, f.doc.Loop.Do(context.Background(), fn))
}

func (f *fixture) controls(t *testing.T) []*Trigger {
	var out []*Trigger
	f.on(t, func() { out = f.watcher.Controls() })
	return out
}

func (f *fixture) notifications(t *testing.T) []*html.Node {
	var out []*html.Node
	f.on(t, func() {
		dom.Walk(f.doc.Root, func(n *html.Node) bool {
			if n.Type == html.ElementNode && dom.Attr(n, "class") == NotificationClass {
				out = append(out, n)
			}
			return true
		})
	})
	return out
}

func TestWatcherAttachesOneControlPerContainer(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)

	controls := f.controls(t)
	require.Len(t, controls, 2)

	f.on(t, func() {
		for _, c := range controls {
			assert.Equal(t, ButtonID, dom.Attr(c.Button(), "id"))
			assert.Equal(t, LabelIdle, dom.TextContent(c.Button()))
			assert.Equal(t, ColorIdle, dom.StyleProperty(c.Button(), "background-color"))
			assert.Equal(t, "relative", dom.StyleProperty(c.Button().Parent, "position"))
		}
		assert.Zero(t, f.watcher.Rescan("manual"))
	})
	assert.Len(t, f.controls(t), 2)
}

func TestWatcherReactsToNewVideos(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)

	f.on(t, func() {
		nodes, err := f.doc.ParseFragment(nil, `<article><div class="media"><video src="three.mp4"></video></div></article>`)
		assert.NoError(t, err)
		for _, n := range nodes {
			f.doc.AppendChild(dom.ByID(f.doc.Root, "feed"), n)
		}
	})

	assert.Len(t, f.controls(t), 3)
}

func TestWatcherForgetsRemovedControls(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)

	f.on(t, func() {
		f.doc.RemoveChild(dom.ByID(f.doc.Root, "post-1"))
	})

	controls := f.controls(t)
	require.Len(t, controls, 1)
	f.on(t, func() {
		assert.Equal(t, "two.mp4", dom.Attr(controls[0].video, "src"))
	})
}

func TestWatcherReleasesRemovedControls(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)

	var post, oldButton *html.Node
	var oldID string
	f.on(t, func() {
		post = dom.ByID(f.doc.Root, "post-1")
		oldButton = dom.ByID(post, ButtonID)
		oldID = dom.Attr(oldButton, "data-control-id")
		f.doc.RemoveChild(post)
	})
	require.Len(t, f.controls(t), 1)

	f.on(t, func() {
		assert.Nil(t, oldButton.Parent)
		assert.Nil(t, dom.ByID(post, ButtonID))
		assert.True(t, f.doc.Click(oldButton))
	})
	assert.Empty(t, f.sender.requests())

	// the same container scrolled back in gets a new control
	f.on(t, func() {
		f.doc.AppendChild(dom.ByID(f.doc.Root, "feed"), post)
	})
	controls := f.controls(t)
	require.Len(t, controls, 2)
	f.on(t, func() {
		if btn := dom.ByID(post, ButtonID); assert.NotNil(t, btn) {
			assert.NotEqual(t, oldID, dom.Attr(btn, "data-control-id"))
		}
	})
}

func TestWatcherEmptyPage(t *testing.T) {
	f := newFixture(t, `<html><body><p>nothing here</p></body></html>`, time.Second)
	assert.Empty(t, f.controls(t))
}

func TestWatcherPeriodicRescan(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loop := dom.NewEventLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-loop.Done()
	}()
	go loop.Run(ctx)

	doc, err := dom.Parse(strings.NewReader(`<html><body></body></html>`), reelURL, loop)
	require.NoError(t, err)
	w := NewWatcher(doc, &fakeSender{}, NewNotifier(doc, time.Second), 10*time.Millisecond, logger)
	require.NoError(t, w.Start(ctx))
	defer w.Stop(ctx)

	// bypass the observer so only the ticker can find the video
	require.NoError(t, loop.Do(ctx, func() {
		w.observer.Disconnect()
		video := doc.CreateElement("video")
		div := doc.CreateElement("div")
		div.AppendChild(video)
		doc.Body().AppendChild(div)
	}))

	assert.Eventually(t, func() bool {
		var n int
		_ = loop.Do(ctx, func() { n = len(w.Controls()) })
		return n == 1
	}, time.Second, 5*time.Millisecond)
}

func TestTriggerActivateSendsOneRequest(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)
	control := f.controls(t)[0]

	f.on(t, func() {
		assert.True(t, control.Activate())
		assert.False(t, control.Activate())
		assert.False(t, f.doc.Click(control.Button()))

		assert.Equal(t, StateProcessing, control.State())
		assert.True(t, dom.HasAttr(control.Button(), "disabled"))
		assert.Equal(t, LabelProcessing, dom.TextContent(control.Button()))
		assert.Equal(t, ColorProcessing, dom.StyleProperty(control.Button(), "background-color"))
	})

	reqs := f.sender.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, reel.ActionProcessReel, reqs[0].Action)
	assert.Equal(t, reelURL, reqs[0].URL)
}

func TestTriggerResultRestoresControlAndNotifies(t *testing.T) {
	f := newFixture(t, feedPage, 200*time.Millisecond)
	control := f.controls(t)[0]

	f.on(t, func() { control.Activate() })
	f.sender.reply(0, reel.Succeeded())

	assert.Eventually(t, func() bool {
		var s State
		f.on(t, func() { s = control.State() })
		return s == StateIdle
	}, time.Second, 5*time.Millisecond)

	f.on(t, func() {
		assert.False(t, dom.HasAttr(control.Button(), "disabled"))
		assert.Equal(t, LabelIdle, dom.TextContent(control.Button()))
		assert.Equal(t, ColorIdle, dom.StyleProperty(control.Button(), "background-color"))
	})

	notes := f.notifications(t)
	require.Len(t, notes, 1)
	f.on(t, func() {
		assert.Equal(t, reel.MessageProcessed, dom.TextContent(notes[0]))
		assert.Equal(t, ColorSuccess, dom.StyleProperty(notes[0], "background-color"))
	})

	assert.Eventually(t, func() bool {
		return len(f.notifications(t)) == 0
	}, time.Second, 5*time.Millisecond)
}

func TestTriggerRepliesRouteToTheirOwnControl(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)
	controls := f.controls(t)
	require.Len(t, controls, 2)

	f.on(t, func() {
		controls[0].Activate()
		controls[1].Activate()
	})
	f.sender.reply(1, reel.Result{Success: false, Message: "Download failed: Unknown error"})

	assert.Eventually(t, func() bool {
		var s State
		f.on(t, func() { s = controls[1].State() })
		return s == StateIdle
	}, time.Second, 5*time.Millisecond)

	f.on(t, func() { assert.Equal(t, StateProcessing, controls[0].State()) })
	notes := f.notifications(t)
	require.Len(t, notes, 1)
	f.on(t, func() {
		assert.Equal(t, ColorError, dom.StyleProperty(notes[0], "background-color"))
		assert.Equal(t, "Download failed: Unknown error", dom.TextContent(notes[0]))
	})
}

func TestTriggerStaysProcessingWhenSendFails(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)
	f.sender.err = errors.New("no receiver")
	control := f.controls(t)[0]

	f.on(t, func() {
		assert.True(t, control.Activate())
		assert.Equal(t, StateProcessing, control.State())
		assert.False(t, control.Activate())
	})
	assert.Empty(t, f.notifications(t))
}

func TestTriggerIgnoresResultWhileIdle(t *testing.T) {
	f := newFixture(t, feedPage, time.Second)
	control := f.controls(t)[0]

	f.on(t, func() {
		control.OnResult(reel.Succeeded())
		assert.Equal(t, StateIdle, control.State())
	})
	assert.Empty(t, f.notifications(t))
}

func TestNotifierFallbackMessages(t *testing.T) {
	f := newFixture(t, `<html><body></body></html>`, time.Minute)
	n := NewNotifier(f.doc, time.Minute)

	f.on(t, func() {
		n.Show(reel.Result{Success: true})
		n.Show(reel.Result{Success: false})
	})

	notes := f.notifications(t)
	require.Len(t, notes, 2)
	f.on(t, func() {
		assert.Equal(t, FallbackSuccess, dom.TextContent(notes[0]))
		assert.Equal(t, FallbackError, dom.TextContent(notes[1]))
		assert.Equal(t, ColorError, dom.StyleProperty(notes[1], "background-color"))
		assert.NotNil(t, dom.ByID(f.doc.Root, notificationStyleID))
	})
}

func TestStateIsActive(t *testing.T) {
	assert.True(t, StateProcessing.IsActive())
	assert.False(t, StateIdle.IsActive())
	assert.Equal(t, "idle", StateIdle.String())
}
