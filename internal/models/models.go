package models

import (
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"formfiller/internal/descriptor"
	"formfiller/internal/dom"
)

var (
	ErrEmptyProfile  = errors.New("profile has no actions")
	ErrUnknownAction = errors.New("unknown action id")
)

type BaseModel struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}

type User struct {
	BaseModel
	Username string `json:"username" gorm:"uniqueIndex;size:100;not null"`
	Password string `json:"-" gorm:"size:255;not null"`
	Status   int    `json:"status" gorm:"default:1"` // 1:active, 0:inactive
}

type ActionKind string

const (
	ActionActivate    ActionKind = "activate"
	ActionTextChange  ActionKind = "textChange"
	ActionValueChange ActionKind = "valueChange"
	ActionFormSubmit  ActionKind = "formSubmit"
	ActionAuxiliary   ActionKind = "auxiliary"
)

// ElementInfo is the type metadata of the element an action targeted. The
// replayer validates candidates against it.
type ElementInfo struct {
	Tag  string `json:"tag"`
	Type string `json:"type,omitempty"`
	Name string `json:"name,omitempty"`
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

type Payload struct {
	Value         string       `json:"value"`
	Checked       *bool        `json:"checked,omitempty"`
	Group         string       `json:"group,omitempty"`
	SelectedIndex *int         `json:"selected_index,omitempty"`
	SelectedText  string       `json:"selected_text,omitempty"`
	Options       []dom.Option `json:"options,omitempty"`
	Files         []dom.File   `json:"files,omitempty"`
	Event         string       `json:"event,omitempty"` // auxiliary event type
	Key           string       `json:"key,omitempty"`
}

// CustomField marks an action whose payload comes from a column of pasted
// tabular data at replay time.
type CustomField struct {
	Column int    `json:"column"`
	Label  string `json:"label,omitempty"`
}

type Action struct {
	ID            int                   `json:"id"`
	Kind          ActionKind            `json:"kind"`
	Timestamp     int64                 `json:"timestamp"` // unix millis
	Descriptor    descriptor.Descriptor `json:"descriptor"`
	Element       ElementInfo           `json:"element"`
	Payload       Payload               `json:"payload"`
	PageURL       string                `json:"page_url,omitempty"`
	NoAutoExecute bool                  `json:"no_auto_execute,omitempty"`
	Custom        *CustomField          `json:"custom,omitempty"`
}

// Clone deep copies the action so edits never leak into a stored log.
func (a Action) Clone() Action {
	a.Descriptor = a.Descriptor.Clone()
	if a.Payload.Checked != nil {
		v := *a.Payload.Checked
		a.Payload.Checked = &v
	}
	if a.Payload.SelectedIndex != nil {
		v := *a.Payload.SelectedIndex
		a.Payload.SelectedIndex = &v
	}
	a.Payload.Options = append([]dom.Option(nil), a.Payload.Options...)
	a.Payload.Files = append([]dom.File(nil), a.Payload.Files...)
	if a.Custom != nil {
		c := *a.Custom
		a.Custom = &c
	}
	return a
}

func CloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = a.Clone()
	}
	return out
}

type Profile struct {
	ID          string         `json:"id" gorm:"primaryKey;size:36"`
	Name        string         `json:"name" gorm:"size:200;not null"`
	URL         string         `json:"url" gorm:"size:2000"`
	Actions     []Action       `json:"actions" gorm:"-"`
	ActionsJSON string         `json:"-" gorm:"column:actions;type:longtext"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `json:"-" gorm:"index"`
}

// NewProfile builds a profile from a finished recording. A recording that
// captured nothing does not become a profile.
func NewProfile(id, name, url string, actions []Action) (*Profile, error) {
	if len(actions) == 0 {
		return nil, ErrEmptyProfile
	}
	return &Profile{ID: id, Name: name, URL: url, Actions: CloneActions(actions)}, nil
}

// GetActions decodes the stored action log.
func (p *Profile) GetActions() ([]Action, error) {
	var actions []Action
	if p.ActionsJSON == "" {
		return actions, nil
	}
	err := json.Unmarshal([]byte(p.ActionsJSON), &actions)
	return actions, err
}

// SetActions encodes actions into the stored column.
func (p *Profile) SetActions(actions []Action) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	p.Actions = actions
	p.ActionsJSON = string(raw)
	return nil
}

func (p *Profile) BeforeSave(*gorm.DB) error {
	return p.SetActions(p.Actions)
}

func (p *Profile) AfterFind(*gorm.DB) error {
	actions, err := p.GetActions()
	if err != nil {
		return err
	}
	p.Actions = actions
	return nil
}

func (p *Profile) indexOf(actionID int) int {
	for i, a := range p.Actions {
		if a.ID == actionID {
			return i
		}
	}
	return -1
}

// Run is one replay of a profile, kept as history.
type Run struct {
	BaseModel
	ProfileID string     `json:"profile_id" gorm:"size:36;index"`
	URL       string     `json:"url" gorm:"size:2000"`
	Status    string     `json:"status" gorm:"size:20"` // running, completed, cancelled, interrupted
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Skipped   int        `json:"skipped"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Duration  int64      `json:"duration"`                  // in milliseconds
	Logs      string     `json:"logs" gorm:"type:longtext"` // JSON format
}

const (
	RunRunning     = "running"
	RunCompleted   = "completed"
	RunCancelled   = "cancelled"
	RunInterrupted = "interrupted"
)
