package browser

import (
	"encoding/json"
	"fmt"

	"formfiller/internal/dom"
)

// nodeState is the live state of one element as the bridge script reports it.
type nodeState struct {
	ID       int64      `json:"id"`
	Rect     []float64  `json:"r"`
	Value    *string    `json:"v,omitempty"`
	Checked  bool       `json:"c,omitempty"`
	Selected *int       `json:"s,omitempty"`
	Files    []dom.File `json:"f,omitempty"`
}

type snapshot struct {
	URL   string      `json:"url"`
	HTML  string      `json:"html"`
	Nodes []nodeState `json:"nodes"`
}

type pageEvent struct {
	Type      string    `json:"type"`
	Path      []int     `json:"path"`
	Snapshot  int       `json:"snapshot"`
	Target    nodeState `json:"target"`
	Key       string    `json:"key,omitempty"`
	Submitter []int     `json:"submitter,omitempty"`
}

type drainResult struct {
	URL       string      `json:"url"`
	Events    []pageEvent `json:"events"`
	Snapshots []snapshot  `json:"snapshots"`
}

type opResult struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

// mirror rebuilds a snapshot as a Document. When the parsed tree lines up
// with the reported nodes, every element gets its live state and stable
// identity; aligned reports whether that happened.
func mirror(s snapshot) (doc *dom.Document, aligned bool, err error) {
	doc, err = dom.ParseString(s.HTML)
	if err != nil {
		return nil, false, fmt.Errorf("parse snapshot: %w", err)
	}
	doc.SetURL(s.URL)
	els := doc.Elements()
	if len(els) != len(s.Nodes) {
		return doc, false, nil
	}
	for i, el := range els {
		applyState(el, s.Nodes[i])
	}
	return doc, true, nil
}

func applyState(el *dom.Element, st nodeState) {
	if st.ID != 0 {
		el.Document().SetIdentity(el, st.ID)
	}
	if len(st.Rect) == 4 {
		el.SetRect(dom.Rect{X: st.Rect[0], Y: st.Rect[1], Width: st.Rect[2], Height: st.Rect[3]})
	}
	switch {
	case el.Tag() == "select":
		if st.Selected != nil {
			el.SetSelectedIndex(*st.Selected)
		}
	case el.IsCheckable():
		el.SetChecked(st.Checked)
	case el.Tag() == "input" && el.Type() == "file":
		el.SetFiles(st.Files)
	case st.Value != nil:
		el.SetValueNative(*st.Value)
	}
}

func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func jsInts(v []int) string {
	if v == nil {
		v = []int{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}
