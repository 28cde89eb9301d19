package dom

import "golang.org/x/net/html"

const ChildList = "childList"

// MutationRecord describes one change to the child list of Target.
type MutationRecord struct {
	Type    string
	Target  *html.Node
	Added   []*html.Node
	Removed []*html.Node
}

type ObserveOptions struct {
	ChildList bool
	Subtree   bool
}

// MutationCallback receives every record queued since the previous delivery.
type MutationCallback func(records []MutationRecord, o *MutationObserver)

type observation struct {
	target *html.Node
	opts   ObserveOptions
}

// MutationObserver batches child-list records for observed nodes and delivers
// them once per loop task.
type MutationObserver struct {
	doc       *Document
	callback  MutationCallback
	targets   []observation
	pending   []MutationRecord
	scheduled bool
}

func (d *Document) NewMutationObserver(cb MutationCallback) *MutationObserver {
	return &MutationObserver{doc: d, callback: cb}
}

// Observe starts watching target. Observing the same target again replaces
// its options.
func (o *MutationObserver) Observe(target *html.Node, opts ObserveOptions) {
	for i := range o.targets {
		if o.targets[i].target == target {
			o.targets[i].opts = opts
			return
		}
	}
	if len(o.targets) == 0 {
		o.doc.observers = append(o.doc.observers, o)
	}
	o.targets = append(o.targets, observation{target: target, opts: opts})
}

// Disconnect stops all observation and drops undelivered records.
func (o *MutationObserver) Disconnect() {
	o.targets = nil
	o.pending = nil
	obs := o.doc.observers[:0]
	for _, other := range o.doc.observers {
		if other != o {
			obs = append(obs, other)
		}
	}
	o.doc.observers = obs
}

// TakeRecords returns and clears the undelivered records.
func (o *MutationObserver) TakeRecords() []MutationRecord {
	out := o.pending
	o.pending = nil
	return out
}

func (o *MutationObserver) interested(target *html.Node) bool {
	for _, t := range o.targets {
		if !t.opts.ChildList {
			continue
		}
		if t.target == target {
			return true
		}
		if t.opts.Subtree && Contains(t.target, target) {
			return true
		}
	}
	return false
}

func (o *MutationObserver) deliver() {
	o.scheduled = false
	records := o.TakeRecords()
	if len(records) == 0 || o.callback == nil {
		return
	}
	o.callback(records, o)
}

func (d *Document) record(rec MutationRecord) {
	for _, o := range d.observers {
		if !o.interested(rec.Target) {
			continue
		}
		o.pending = append(o.pending, rec)
		if !o.scheduled {
			o.scheduled = true
			d.Loop.QueueMicrotask(o.deliver)
		}
	}
}
