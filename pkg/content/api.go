package content

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/mywio/reelsaver/pkg/core"
	"github.com/mywio/reelsaver/pkg/dom"
)

var (
	errControlNotFound = errors.New("control not found")
	errNodeNotFound    = errors.New("node not found")
)

type pageInfo struct {
	URL      string `json:"url"`
	Videos   int    `json:"videos"`
	Controls int    `json:"controls"`
	HTML     string `json:"html,omitempty"`
}

type controlInfo struct {
	ID        string `json:"id"`
	State     State  `json:"state"`
	Active    bool   `json:"active"`
	Connected bool   `json:"connected"`
	Disabled  bool   `json:"disabled"`
	Label     string `json:"label"`
	Color     string `json:"color"`
	VideoSrc  string `json:"video_src,omitempty"`
}

type appendRequest struct {
	ParentID string `json:"parent_id"`
	HTML     string `json:"html"`
}

type clickResponse struct {
	Accepted bool  `json:"accepted"`
	State    State `json:"state"`
}

func (p *Page) registerRoutes(r *mux.Router) {
	r.HandleFunc("/api/page", p.handlePage).Methods(http.MethodGet)
	r.HandleFunc("/api/page/nodes", p.handleAppendNodes).Methods(http.MethodPost)
	r.HandleFunc("/api/page/nodes/{id}", p.handleRemoveNode).Methods(http.MethodDelete)
	r.HandleFunc("/api/page/controls", p.handleControls).Methods(http.MethodGet)
	r.HandleFunc("/api/page/controls/{id}/click", p.handleClick).Methods(http.MethodPost)
}

func (p *Page) handlePage(w http.ResponseWriter, r *http.Request) {
	includeHTML := strings.EqualFold(r.URL.Query().Get("include_html"), "true")
	var (
		info      pageInfo
		renderErr error
	)
	err := p.loop.Do(r.Context(), func() {
		info.URL = p.doc.URL
		info.Videos = len(dom.ElementsByTag(p.doc.Root, atom.Video))
		info.Controls = len(p.watcher.Controls())
		if includeHTML {
			info.HTML, renderErr = dom.Render(p.doc.Root)
		}
	})
	if err == nil {
		err = renderErr
	}
	if err != nil {
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, info)
}

func (p *Page) handleAppendNodes(w http.ResponseWriter, r *http.Request) {
	var req appendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.HTML) == "" {
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": "html required"})
		return
	}

	var (
		added int
		opErr error
	)
	err := p.loop.Do(r.Context(), func() {
		parent := p.doc.Body()
		if req.ParentID != "" {
			if parent = dom.ByID(p.doc.Root, req.ParentID); parent == nil {
				opErr = errNodeNotFound
				return
			}
		}
		nodes, err := p.doc.ParseFragment(parent, req.HTML)
		if err != nil {
			opErr = err
			return
		}
		for _, n := range nodes {
			p.doc.AppendChild(parent, n)
		}
		added = len(nodes)
	})
	if err == nil {
		err = opErr
	}
	switch {
	case errors.Is(err, errNodeNotFound):
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		core.WriteJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		core.WriteJSON(w, http.StatusCreated, map[string]int{"added": added})
	}
}

func (p *Page) handleRemoveNode(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var found bool
	err := p.loop.Do(r.Context(), func() {
		n := dom.ByID(p.doc.Root, id)
		if n == nil || n.Type != html.ElementNode {
			return
		}
		found = true
		p.doc.RemoveChild(n)
	})
	switch {
	case err != nil:
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case !found:
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": errNodeNotFound.Error()})
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (p *Page) handleControls(w http.ResponseWriter, r *http.Request) {
	var out []controlInfo
	err := p.loop.Do(r.Context(), func() {
		controls := p.watcher.Controls()
		out = make([]controlInfo, 0, len(controls))
		for _, t := range controls {
			out = append(out, describeControl(t))
		}
	})
	if err != nil {
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	core.WriteJSON(w, http.StatusOK, out)
}

func (p *Page) handleClick(w http.ResponseWriter, r *http.Request) {
	res, err := p.click(r.Context(), mux.Vars(r)["id"])
	switch {
	case errors.Is(err, errControlNotFound):
		core.WriteJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case err != nil:
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case !res.Accepted:
		core.WriteJSON(w, http.StatusConflict, res)
	default:
		core.WriteJSON(w, http.StatusAccepted, res)
	}
}

// click dispatches a click on the control's button as a user would.
func (p *Page) click(ctx context.Context, id string) (clickResponse, error) {
	var (
		res   clickResponse
		opErr error
	)
	err := p.loop.Do(ctx, func() {
		t := p.watcher.Control(id)
		if t == nil {
			opErr = errControlNotFound
			return
		}
		before := t.State()
		p.doc.Click(t.Button())
		res = clickResponse{
			Accepted: !before.IsActive() && t.State().IsActive(),
			State:    t.State(),
		}
	})
	if err != nil {
		return res, err
	}
	return res, opErr
}

func describeControl(t *Trigger) controlInfo {
	return controlInfo{
		ID:        t.ID,
		State:     t.State(),
		Active:    t.State().IsActive(),
		Connected: t.Connected(),
		Disabled:  dom.HasAttr(t.Button(), "disabled"),
		Label:     dom.TextContent(t.Button()),
		Color:     dom.StyleProperty(t.Button(), "background-color"),
		VideoSrc:  dom.Attr(t.video, "src"),
	}
}
