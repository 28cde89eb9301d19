// Package dom is a small live page model on top of golang.org/x/net/html:
// a parsed tree owned by a single-goroutine event loop, child-list mutation
// observers and click event dispatch.
package dom

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Event is dispatched to listeners registered with AddEventListener.
type Event struct {
	Type   string
	Target *html.Node

	defaultPrevented bool
	stopped          bool
}

func (e *Event) PreventDefault()        { e.defaultPrevented = true }
func (e *Event) StopPropagation()       { e.stopped = true }
func (e *Event) DefaultPrevented() bool { return e.defaultPrevented }

type EventListener func(e *Event)

// Document is a page tree bound to an event loop. Methods must be called from
// tasks running on Loop.
type Document struct {
	URL  string
	Root *html.Node
	Loop *EventLoop

	observers []*MutationObserver
	listeners map[*html.Node]map[string][]EventListener
}

// Parse reads an HTML page and binds it to loop.
func Parse(r io.Reader, url string, loop *EventLoop) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return NewDocument(root, url, loop), nil
}

func NewDocument(root *html.Node, url string, loop *EventLoop) *Document {
	return &Document{
		URL:       url,
		Root:      root,
		Loop:      loop,
		listeners: make(map[*html.Node]map[string][]EventListener),
	}
}

// Body returns the body element, or the root when the page has none.
func (d *Document) Body() *html.Node {
	if body := FirstByTag(d.Root, atom.Body); body != nil {
		return body
	}
	return d.Root
}

// CreateElement returns a detached element.
func (d *Document) CreateElement(tag string) *html.Node {
	a := atom.Lookup([]byte(tag))
	return &html.Node{Type: html.ElementNode, Data: tag, DataAtom: a}
}

// ParseFragment parses markup in the context of parent without attaching it.
func (d *Document) ParseFragment(parent *html.Node, markup string) ([]*html.Node, error) {
	ctx := parent
	if ctx == nil || ctx.Type != html.ElementNode {
		ctx = d.Body()
	}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("parse fragment: %w", err)
	}
	return nodes, nil
}

// AppendChild attaches child as the last child of parent. A child that is
// already attached elsewhere is moved.
func (d *Document) AppendChild(parent, child *html.Node) {
	if child.Parent != nil {
		d.RemoveChild(child)
	}
	parent.AppendChild(child)
	d.record(MutationRecord{Type: ChildList, Target: parent, Added: []*html.Node{child}})
}

// RemoveChild detaches n from its parent. Detached nodes are left as is.
func (d *Document) RemoveChild(n *html.Node) {
	parent := n.Parent
	if parent == nil {
		return
	}
	parent.RemoveChild(n)
	d.record(MutationRecord{Type: ChildList, Target: parent, Removed: []*html.Node{n}})
}

// SetText replaces the children of n with a single text node.
func (d *Document) SetText(n *html.Node, text string) {
	var removed []*html.Node
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		removed = append(removed, c)
		c = next
	}
	var added []*html.Node
	if text != "" {
		t := &html.Node{Type: html.TextNode, Data: text}
		n.AppendChild(t)
		added = append(added, t)
	}
	if len(added) > 0 || len(removed) > 0 {
		d.record(MutationRecord{Type: ChildList, Target: n, Added: added, Removed: removed})
	}
}

// Connected reports whether n is attached to the document tree.
func (d *Document) Connected(n *html.Node) bool {
	return Contains(d.Root, n)
}

// AddEventListener registers fn for events of type on n.
func (d *Document) AddEventListener(n *html.Node, typ string, fn EventListener) {
	byType, ok := d.listeners[n]
	if !ok {
		byType = make(map[string][]EventListener)
		d.listeners[n] = byType
	}
	byType[typ] = append(byType[typ], fn)
}

// RemoveEventListeners drops every listener registered on n or its
// descendants.
func (d *Document) RemoveEventListeners(n *html.Node) {
	Walk(n, func(c *html.Node) bool {
		delete(d.listeners, c)
		return true
	})
}

// Dispatch delivers an event to target and then bubbles it to its
// ancestors until a listener stops propagation. It returns false when a
// listener prevented the default action.
func (d *Document) Dispatch(target *html.Node, typ string) bool {
	ev := &Event{Type: typ, Target: target}
	for n := target; n != nil && !ev.stopped; n = n.Parent {
		for _, fn := range d.listeners[n][typ] {
			fn(ev)
		}
	}
	return !ev.DefaultPrevented()
}

// Click dispatches a click on n.
func (d *Document) Click(n *html.Node) bool {
	return d.Dispatch(n, "click")
}

// Render serializes n and its subtree.
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}
