package models

import (
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
)

// Override is one edit made to a recorded action: a replacement value, a
// replacement checked state, a custom-field binding, or removal.
type Override struct {
	ActionID    int          `json:"action_id" binding:"required"`
	Value       *string      `json:"value,omitempty"`
	Checked     *bool        `json:"checked,omitempty"`
	Custom      *CustomField `json:"custom,omitempty"`
	ClearCustom bool         `json:"clear_custom,omitempty"`
	Remove      bool         `json:"remove,omitempty"`
}

// ApplyOverrides edits the action log in place. Unknown ids abort the whole
// batch before anything changes.
func (p *Profile) ApplyOverrides(overrides []Override) error {
	for _, o := range overrides {
		if p.indexOf(o.ActionID) < 0 {
			return fmt.Errorf("%w: %d", ErrUnknownAction, o.ActionID)
		}
	}
	for _, o := range overrides {
		i := p.indexOf(o.ActionID)
		if i < 0 {
			continue // removed earlier in this batch
		}
		if o.Remove {
			p.Actions = append(p.Actions[:i], p.Actions[i+1:]...)
			continue
		}
		a := &p.Actions[i]
		if o.Value != nil {
			a.Payload.Value = *o.Value
			if a.Element.Tag == "select" {
				a.Payload.SelectedIndex = nil
				a.Payload.SelectedText = *o.Value
			}
		}
		if o.Checked != nil {
			v := *o.Checked
			a.Payload.Checked = &v
		}
		if o.ClearCustom {
			a.Custom = nil
		}
		if o.Custom != nil {
			c := *o.Custom
			a.Custom = &c
		}
	}
	return nil
}

// CustomActions lists actions bound to a data column, in log order.
func (p *Profile) CustomActions() []Action {
	var out []Action
	for _, a := range p.Actions {
		if a.Custom != nil {
			out = append(out, a)
		}
	}
	return out
}

// ParseDataRow splits one row of pasted spreadsheet data. Tab separated input
// wins over comma separated; only the first non-empty line is used.
func ParseDataRow(text string) ([]string, error) {
	text = strings.TrimLeft(text, "\r\n")
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	r := csv.NewReader(strings.NewReader(text))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	if strings.Contains(strings.SplitN(text, "\n", 2)[0], "\t") {
		r.Comma = '\t'
	}
	record, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("parse data row: %w", err)
	}
	for i := range record {
		record[i] = strings.TrimSpace(record[i])
	}
	return record, nil
}

// ActionsWithData returns a copy of the action log with every custom action's
// payload replaced by its column of row. Columns past the end of row keep the
// recorded payload.
func (p *Profile) ActionsWithData(row []string) []Action {
	out := CloneActions(p.Actions)
	for i := range out {
		a := &out[i]
		if a.Custom == nil || a.Custom.Column < 0 || a.Custom.Column >= len(row) {
			continue
		}
		cell := row[a.Custom.Column]
		switch {
		case a.Payload.Checked != nil:
			v := truthy(cell)
			a.Payload.Checked = &v
		case a.Element.Tag == "select":
			a.Payload.SelectedIndex = nil
			a.Payload.Value = cell
			a.Payload.SelectedText = cell
		default:
			a.Payload.Value = cell
		}
	}
	return out
}

func truthy(s string) bool {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "x", "on", "checked":
		return true
	}
	return false
}
