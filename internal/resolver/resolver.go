// Package resolver finds the live element a descriptor was captured from.
package resolver

import (
	"context"
	"errors"
	"math"
	"sort"

	"go.uber.org/zap"

	"formfiller/internal/descriptor"
	"formfiller/internal/dom"
)

// ErrElementNotFound is returned when no strategy yields a validated match.
var ErrElementNotFound = errors.New("element not found")

// DefaultPositionTolerance is how far, in CSS pixels, a candidate's centre may
// drift from the recorded one for the position strategy to accept it.
const DefaultPositionTolerance = 32.0

// Expect carries the type metadata of the recorded action. Candidates that
// disagree with it are rejected.
type Expect struct {
	Tag   string
	Type  string
	Group string
}

// Match is a resolved element and the strategy that found it.
type Match struct {
	Element  *dom.Element
	Strategy descriptor.Strategy
}

// Resolver walks descriptor strategies in priority order.
type Resolver struct {
	log       *zap.Logger
	tolerance float64
}

// Option customises a Resolver.
type Option func(*Resolver)

func WithLogger(l *zap.Logger) Option { return func(r *Resolver) { r.log = l } }

// WithPositionTolerance overrides DefaultPositionTolerance.
func WithPositionTolerance(px float64) Option { return func(r *Resolver) { r.tolerance = px } }

func New(opts ...Option) *Resolver {
	r := &Resolver{log: zap.NewNop(), tolerance: DefaultPositionTolerance}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the first validated candidate of the highest priority
// strategy that produces one.
func (r *Resolver) Resolve(ctx context.Context, doc *dom.Document, d descriptor.Descriptor, exp Expect) (Match, error) {
	if doc == nil || len(d) == 0 {
		return Match{}, ErrElementNotFound
	}
	for _, s := range descriptor.Priority {
		if err := ctx.Err(); err != nil {
			return Match{}, err
		}
		loc, ok := d[s]
		if !ok {
			continue
		}
		want := exp
		if want.Tag == "" {
			want.Tag = loc.Tag
		}
		candidates := r.candidates(doc, s, loc)
		if el := pick(candidates, loc.Occurrence, want); el != nil {
			r.log.Debug("element resolved",
				zap.String("strategy", string(s)),
				zap.String("element", dom.Describe(el)))
			return Match{Element: el, Strategy: s}, nil
		}
		if len(candidates) > 0 {
			r.log.Debug("candidates rejected by validation",
				zap.String("strategy", string(s)),
				zap.Int("candidates", len(candidates)))
		}
	}
	return Match{}, ErrElementNotFound
}

func (r *Resolver) candidates(doc *dom.Document, s descriptor.Strategy, loc descriptor.Locator) []*dom.Element {
	switch s {
	case descriptor.Label:
		return labelled(doc, loc.Text)
	case descriptor.TreePath:
		els, err := doc.XPathAll(loc.Selector)
		if err != nil {
			r.log.Debug("bad tree path", zap.String("xpath", loc.Selector), zap.Error(err))
			return nil
		}
		return els
	case descriptor.Position:
		return r.near(doc, loc)
	default:
		if loc.Selector == "" {
			return nil
		}
		return doc.QueryAll(loc.Selector)
	}
}

// pick applies validation and breaks ties by the recorded occurrence, else by
// document order.
func pick(candidates []*dom.Element, occurrence int, exp Expect) *dom.Element {
	if occurrence > 0 && occurrence <= len(candidates) {
		if el := candidates[occurrence-1]; Validate(el, exp) {
			return el
		}
	}
	for _, el := range candidates {
		if Validate(el, exp) {
			return el
		}
	}
	return nil
}

// Validate reports whether el is compatible with the recorded metadata: same
// tag, same input type unless the live element has none, same radio group.
func Validate(el *dom.Element, exp Expect) bool {
	if el == nil || !el.Attached() {
		return false
	}
	if exp.Tag != "" && el.Tag() != exp.Tag {
		return false
	}
	if exp.Type != "" {
		if t := el.Type(); t != "" && t != exp.Type {
			return false
		}
	}
	if exp.Group != "" && el.Name() != exp.Group {
		return false
	}
	return true
}

func labelled(doc *dom.Document, text string) []*dom.Element {
	if text == "" {
		return nil
	}
	var out []*dom.Element
	for _, l := range doc.QueryAll("label") {
		if descriptor.NormalizeLabel(l.OwnText()) != text {
			continue
		}
		if id := l.GetAttr("for"); id != "" {
			if el := doc.GetElementByID(id); el != nil {
				out = append(out, el)
				continue
			}
		}
		if cs := controlsIn(l); len(cs) > 0 {
			out = append(out, cs[0])
		}
	}
	return out
}

func controlsIn(el *dom.Element) []*dom.Element {
	var out []*dom.Element
	for _, c := range el.Children() {
		switch c.Tag() {
		case "input", "select", "textarea", "button":
			out = append(out, c)
		default:
			out = append(out, controlsIn(c)...)
		}
	}
	return out
}

func (r *Resolver) near(doc *dom.Document, loc descriptor.Locator) []*dom.Element {
	if loc.Rect == nil {
		return nil
	}
	cx, cy := loc.Rect.Center()
	type scored struct {
		el   *dom.Element
		dist float64
	}
	var hits []scored
	for _, el := range doc.Elements() {
		if loc.Tag != "" && el.Tag() != loc.Tag {
			continue
		}
		rect, ok := el.Rect()
		if !ok || rect.Empty() {
			continue
		}
		x, y := rect.Center()
		if d := math.Hypot(x-cx, y-cy); d <= r.tolerance {
			hits = append(hits, scored{el, d})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].dist < hits[j].dist })
	out := make([]*dom.Element, len(hits))
	for i, h := range hits {
		out[i] = h.el
	}
	return out
}
