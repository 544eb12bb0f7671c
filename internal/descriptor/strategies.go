package descriptor

import (
	"fmt"
	"strings"

	"formfiller/internal/dom"
)

// StrategyFunc computes one strategy's locator. It returns false when the
// strategy does not apply to el.
type StrategyFunc func(el *dom.Element, cfg GeneratorConfig) (Locator, bool)

// TestAttributes are the automation hooks checked by the test-attr strategy,
// in preference order.
var TestAttributes = []string{"data-testid", "data-test", "data-cy", "data-automation", "data-id", "data-qa"}

// occurrence returns how many elements match selector and el's 1-based
// position among them (0 when el does not match).
func occurrence(el *dom.Element, selector string) (count, pos int) {
	matches := el.Document().QueryAll(selector)
	for i, m := range matches {
		if m.Is(el) {
			pos = i + 1
		}
	}
	return len(matches), pos
}

func withOccurrence(el *dom.Element, selector string) (Locator, bool) {
	count, pos := occurrence(el, selector)
	if pos == 0 {
		return Locator{}, false
	}
	loc := Locator{Selector: selector, Tag: el.Tag()}
	if count > 1 {
		loc.Occurrence = pos
	}
	return loc, true
}

func stableIDStrategy(el *dom.Element, _ GeneratorConfig) (Locator, bool) {
	id := el.ID()
	if !IsStableID(id) {
		return Locator{}, false
	}
	return withOccurrence(el, "#"+cssIdent(id))
}

func nameTypeStrategy(el *dom.Element, _ GeneratorConfig) (Locator, bool) {
	name := el.Name()
	if name == "" {
		return Locator{}, false
	}
	sel := attrSelector(el.Tag(), "name", name)
	if t, ok := el.Attr("type"); ok && t != "" {
		sel += fmt.Sprintf("[type=%s]", cssString(t))
	}
	if el.Type() == "radio" {
		sel += fmt.Sprintf("[value=%s]", cssString(el.GetAttr("value")))
	}
	loc, ok := withOccurrence(el, sel)
	loc.Type = el.InputKind()
	return loc, ok
}

func testAttrStrategy(el *dom.Element, _ GeneratorConfig) (Locator, bool) {
	for _, attr := range TestAttributes {
		v, ok := el.Attr(attr)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		sel := fmt.Sprintf("[%s=%s]", attr, cssString(v))
		if count, pos := occurrence(el, sel); count == 1 && pos == 1 {
			return Locator{Selector: sel, Tag: el.Tag()}, true
		}
	}
	return Locator{}, false
}

func attributeStrategy(attr string) StrategyFunc {
	return func(el *dom.Element, _ GeneratorConfig) (Locator, bool) {
		v := strings.TrimSpace(el.GetAttr(attr))
		if v == "" {
			return Locator{}, false
		}
		loc, ok := withOccurrence(el, attrSelector(el.Tag(), attr, el.GetAttr(attr)))
		loc.Text = v
		return loc, ok
	}
}

// LabelFor returns the <label> associated with el: one whose for attribute
// names el's id, else an ancestor label.
func LabelFor(el *dom.Element) *dom.Element {
	if id := el.ID(); id != "" {
		for _, l := range el.Document().QueryAll("label") {
			if l.GetAttr("for") == id {
				return l
			}
		}
	}
	p := el.Parent()
	if p == nil {
		return nil
	}
	return p.Closest(func(a *dom.Element) bool { return a.Tag() == "label" })
}

// NormalizeLabel collapses whitespace and trims the decorations forms put
// around label text.
func NormalizeLabel(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return strings.TrimSpace(strings.TrimRight(s, ":*"))
}

func labelStrategy(el *dom.Element, _ GeneratorConfig) (Locator, bool) {
	label := LabelFor(el)
	if label == nil {
		return Locator{}, false
	}
	text := NormalizeLabel(label.OwnText())
	if text == "" {
		return Locator{}, false
	}
	loc := Locator{Text: text, Tag: el.Tag()}
	var same int
	for _, l := range el.Document().QueryAll("label") {
		if NormalizeLabel(l.OwnText()) != text {
			continue
		}
		same++
		if l.Is(label) {
			loc.Occurrence = same
		}
	}
	if same < 2 {
		loc.Occurrence = 0
	}
	return loc, true
}

func structuralStep(el *dom.Element, cfg GeneratorConfig) string {
	var b strings.Builder
	b.WriteString(el.Tag())
	for _, c := range StableClasses(el.Classes(), cfg.ExcludeClassPrefix, 2) {
		b.WriteString("." + cssIdent(c))
	}
	if p := el.Parent(); p != nil {
		n, pos := 0, 0
		for _, s := range p.Children() {
			if s.Tag() != el.Tag() {
				continue
			}
			n++
			if s.Is(el) {
				pos = n
			}
		}
		if n > 1 {
			fmt.Fprintf(&b, ":nth-of-type(%d)", pos)
		}
	}
	return b.String()
}

// StructuralPath builds the tag/class/nth-of-type chain from el up to the
// nearest ancestor with a stable id, the body, or cfg.MaxDepth steps.
func StructuralPath(el *dom.Element, cfg GeneratorConfig) string {
	var parts []string
	cur := el
	for depth := 0; cur != nil && depth < cfg.MaxDepth; depth++ {
		if cur.Tag() == "body" || cur.Tag() == "html" {
			parts = append(parts, cur.Tag())
			break
		}
		parts = append(parts, structuralStep(cur, cfg))
		parent := cur.Parent()
		if parent == nil {
			break
		}
		if IsStableID(parent.ID()) {
			parts = append(parts, "#"+cssIdent(parent.ID()))
			break
		}
		cur = parent
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, " > ")
}

func structuralStrategy(el *dom.Element, cfg GeneratorConfig) (Locator, bool) {
	sel := StructuralPath(el, cfg)
	if loc, ok := withOccurrence(el, sel); ok {
		return loc, true
	}
	// Selector engines disagree on exotic markup; keep the path anyway so the
	// strategy is always present.
	return Locator{Selector: sel, Tag: el.Tag()}, true
}

// TreePathXPath renders el's position as an XPath of positional steps only.
func TreePathXPath(el *dom.Element) string {
	var b strings.Builder
	b.WriteString("/*[1]")
	for _, i := range el.TreePath() {
		fmt.Fprintf(&b, "/*[%d]", i+1)
	}
	return b.String()
}

func treePathStrategy(el *dom.Element, _ GeneratorConfig) (Locator, bool) {
	return Locator{Selector: TreePathXPath(el), Tag: el.Tag()}, true
}

func positionStrategy(el *dom.Element, _ GeneratorConfig) (Locator, bool) {
	r, ok := el.Rect()
	if !ok || r.Empty() {
		return Locator{}, false
	}
	return Locator{Rect: &r, Tag: el.Tag(), Type: el.InputKind()}, true
}
