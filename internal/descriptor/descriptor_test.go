package descriptor

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formfiller/internal/dom"
)

const signupForm = `<html><body>
<form id="signup" class="form">
  <div class="row"><label for="first">First name:</label><input id="first" name="first" type="text" placeholder="Jane"></div>
  <div class="row"><label>Last <input name="last" aria-label="Last name"></label></div>
  <div class="row active"><input type="checkbox" name="terms" data-testid="terms"></div>
  <button type="submit" class="btn btn-primary">Go</button>
</form>
</body></html>`

func TestIsStableID(t *testing.T) {
	cases := map[string]bool{
		"email":                                true,
		"first-name":                           true,
		"user_email":                           true,
		"":                                     false,
		"1field":                               false,
		"deadbeefcafe":                         false,
		":r1:":                                 false,
		"ember123":                             false,
		"mui-42":                               false,
		"radix-:R1:":                           false,
		"field_20240101":                       false,
		"a1b2c3":                               false,
		"3f2504e0-4f89-11d3-9a0c-0305e82c3301": false,
	}
	for id, want := range cases {
		assert.Equal(t, want, IsStableID(id), "id %q", id)
	}
}

func TestIsStableClass(t *testing.T) {
	cases := map[string]bool{
		"row":              true,
		"btn-primary":      true,
		"form-control":     true,
		"active":           false,
		"is-open":          false,
		"ng-touched":       false,
		"css-1x2y3z":       false,
		"sc-bdVaJa":        false,
		"mt-4":             false,
		"text-sm":          false,
		"formfiller-badge": false,
		"Button_root__x7f3a": false,
		"w-[12px]":         false,
	}
	for class, want := range cases {
		assert.Equal(t, want, IsStableClass(class, "formfiller-"), "class %q", class)
	}
}

func TestGenerateAllStrategies(t *testing.T) {
	doc := dom.MustParse(signupForm)
	el := doc.GetElementByID("first")
	el.SetRect(dom.Rect{X: 10, Y: 20, Width: 200, Height: 30})

	d := NewGenerator(DefaultGeneratorConfig()).Generate(el)

	assert.Equal(t, "#first", d[StableID].Selector)
	assert.Equal(t, `input[name="first"][type="text"]`, d[NameType].Selector)
	assert.Equal(t, "Jane", d[Placeholder].Text)
	assert.Equal(t, "First name", d[Label].Text)
	assert.Equal(t, "#signup > div.row:nth-of-type(1) > input", d[Structural].Selector)
	assert.Equal(t, "/*[1]/*[2]/*[1]/*[1]/*[2]", d[TreePath].Selector)
	require.NotNil(t, d[Position].Rect)
	assert.Equal(t, 200.0, d[Position].Rect.Width)
	assert.False(t, d.Has(TestAttr))
	assert.False(t, d.Has(AriaLabel))

	assert.Equal(t, []Strategy{StableID, NameType, Placeholder, Label, Structural, TreePath, Position}, d.Strategies())
}

func TestGenerateWrappedLabelAndAria(t *testing.T) {
	doc := dom.MustParse(signupForm)
	el := doc.Query(`input[name="last"]`)
	require.NotNil(t, el)

	d := NewGenerator(DefaultGeneratorConfig()).Generate(el)

	assert.Equal(t, "Last", d[Label].Text)
	assert.Equal(t, "Last name", d[AriaLabel].Text)
	assert.Equal(t, "#signup > div.row:nth-of-type(2) > label > input", d[Structural].Selector)
	assert.False(t, d.Has(StableID))
	assert.False(t, d.Has(Position))
}

func TestGenerateFiltersDynamicClasses(t *testing.T) {
	doc := dom.MustParse(signupForm)
	box := doc.Query(`[data-testid="terms"]`)
	d := NewGenerator(DefaultGeneratorConfig()).Generate(box)

	assert.Equal(t, `[data-testid="terms"]`, d[TestAttr].Selector)
	assert.Equal(t, "#signup > div.row:nth-of-type(3) > input", d[Structural].Selector)

	btn := doc.Query("button")
	d = NewGenerator(DefaultGeneratorConfig()).Generate(btn)
	assert.Equal(t, "#signup > button.btn.btn-primary", d[Structural].Selector)
	assert.False(t, d.Has(NameType))
}

func TestTestAttrMustBeUnique(t *testing.T) {
	doc := dom.MustParse(`<html><body><input data-test="x"><input data-test="x"></body></html>`)
	d := NewGenerator(DefaultGeneratorConfig()).Generate(doc.QueryAll("input")[1])
	assert.False(t, d.Has(TestAttr))
}

func TestNameTypeOccurrence(t *testing.T) {
	doc := dom.MustParse(`<html><body>
<div><input name="qty" type="number"></div>
<div><input name="qty" type="number"></div>
</body></html>`)
	inputs := doc.QueryAll("input")
	g := NewGenerator(DefaultGeneratorConfig())

	assert.Equal(t, 1, g.Generate(inputs[0])[NameType].Occurrence)
	assert.Equal(t, 2, g.Generate(inputs[1])[NameType].Occurrence)
}

func TestRadioNameTypeIncludesValue(t *testing.T) {
	doc := dom.MustParse(`<html><body>
<input type="radio" name="plan" value="free"><input type="radio" name="plan" value="pro">
</body></html>`)
	d := NewGenerator(DefaultGeneratorConfig()).Generate(doc.QueryAll("input")[1])
	assert.Equal(t, `input[name="plan"][type="radio"][value="pro"]`, d[NameType].Selector)
	assert.Zero(t, d[NameType].Occurrence)
}

func TestStructuralFallbackWithoutAttributes(t *testing.T) {
	doc := dom.MustParse(`<html><body><div><div><span>x</span></div></div></body></html>`)
	d := NewGenerator(DefaultGeneratorConfig()).Generate(doc.Query("span"))

	assert.Equal(t, "body > div > div > span", d[Structural].Selector)
	assert.Equal(t, []Strategy{Structural, TreePath}, d.Strategies())
}

func TestStructuralDepthCap(t *testing.T) {
	markup := "<html><body>" + strings.Repeat("<div>", 10) + "<input>" + strings.Repeat("</div>", 10) + "</body></html>"
	doc := dom.MustParse(markup)

	g := NewGenerator(GeneratorConfig{MaxDepth: 2})
	assert.Equal(t, MinDepth, g.Config().MaxDepth)

	sel := g.Generate(doc.Query("input"))[Structural].Selector
	assert.Len(t, strings.Split(sel, " > "), MinDepth)
	assert.NotContains(t, sel, "body")

	assert.Equal(t, MaxDepth, NewGenerator(GeneratorConfig{MaxDepth: 40}).Config().MaxDepth)
}

func TestGenerateIsDeterministic(t *testing.T) {
	doc := dom.MustParse(signupForm)
	g := NewGenerator(DefaultGeneratorConfig())
	el := doc.Query(`input[name="last"]`)
	assert.Equal(t, g.Generate(el), g.Generate(el))
}

func TestPanickingStrategyIsOmitted(t *testing.T) {
	doc := dom.MustParse(signupForm)
	g := NewGenerator(DefaultGeneratorConfig(),
		WithStrategy(Label, func(*dom.Element, GeneratorConfig) (Locator, bool) { panic("boom") }),
		WithoutStrategy(Structural),
	)
	d := g.Generate(doc.GetElementByID("first"))

	assert.False(t, d.Has(Label))
	assert.True(t, d.Has(StableID))
	assert.Equal(t, "#signup > div.row:nth-of-type(1) > input", d[Structural].Selector)
}

func TestDescriptorJSONRoundTrip(t *testing.T) {
	doc := dom.MustParse(signupForm)
	el := doc.GetElementByID("first")
	el.SetRect(dom.Rect{X: 1, Y: 2, Width: 3, Height: 4})
	d := NewGenerator(DefaultGeneratorConfig()).Generate(el)

	raw, err := json.Marshal(d)
	require.NoError(t, err)
	var back Descriptor
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.Equal(t, d, back)
}

func TestCloneIsIndependent(t *testing.T) {
	d := Descriptor{Position: {Rect: &dom.Rect{X: 1}}}
	c := d.Clone()
	c[Position].Rect.X = 9
	assert.Equal(t, 1.0, d[Position].Rect.X)
}
