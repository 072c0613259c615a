package workflow

import "github.com/ignite/newsletter-ai/internal/domain"

// State is a workflow state.
type State string

const (
	Idle              State = "Idle"
	FetchingReference State = "FetchingReference"
	Generating        State = "Generating"
	Generated         State = "Generated"
	Editing           State = "Editing"
	Saving            State = "Saving"
	Saved             State = "Saved"
	SaveFailed        State = "SaveFailed"
	Sending           State = "Sending"
	Sent              State = "Sent"
	SendFailed        State = "SendFailed"
)

var stateLabels = map[State]string{
	Idle:              "Ready",
	FetchingReference: "Fetching reference...",
	Generating:        "Generating...",
	Generated:         "Generated",
	Editing:           "Editing",
	Saving:            "Saving...",
	Saved:             "Saved",
	SaveFailed:        "Failed to save",
	Sending:           "Sending...",
	Sent:              "Email sent!",
	SendFailed:        "Failed to send",
}

// Label returns the user-facing status text for s.
func (s State) Label() string { return stateLabels[s] }

// Busy reports whether an external call is outstanding in s.
func (s State) Busy() bool {
	switch s {
	case FetchingReference, Generating, Saving, Sending:
		return true
	}
	return false
}

// Button labels shown by the editor.
const (
	LabelGenerate      = "Generate"
	LabelGenerating    = "Generating..."
	LabelGenerated     = "Generated"
	LabelGenerateAgain = "Generate again"
	LabelSave          = "Save"
	LabelSaving        = "Saving..."
	LabelSaved         = "Saved"
	LabelTryAgain      = "Try again"
	LabelSendEmail     = "Send email to subscribers"
	LabelSending       = "Sending..."
	LabelEmailSent     = "Email sent!"
	LabelSendFailed    = "Failed to send, try again"
	LabelCopy          = "Copy"
	LabelCopied        = "Copied"
)

// Notification messages.
const (
	MsgSaved      = "Data saved successfully"
	MsgSaveFailed = "Failed to save, Try again!"
	MsgSendFailed = "Failed to send email, try again!"
	MsgCopied     = "Copied to clipboard"
)

// Slot identifies one of the editor's action buttons.
type Slot string

const (
	SlotGenerate Slot = "generate"
	SlotSave     Slot = "save"
	SlotEmail    Slot = "email"
	SlotCopy     Slot = "copy"
)

// Labels holds the current text of every action button.
type Labels struct {
	Generate string `json:"generate"`
	Save     string `json:"save"`
	Email    string `json:"email"`
	Copy     string `json:"copy"`
}

// DefaultLabels returns the resting labels of a fresh session.
func DefaultLabels() Labels {
	return Labels{
		Generate: LabelGenerate,
		Save:     LabelSave,
		Email:    LabelSendEmail,
		Copy:     LabelCopy,
	}
}

func (l *Labels) slot(s Slot) *string {
	switch s {
	case SlotGenerate:
		return &l.Generate
	case SlotSave:
		return &l.Save
	case SlotEmail:
		return &l.Email
	case SlotCopy:
		return &l.Copy
	}
	return nil
}

// Get returns the label in slot s.
func (l Labels) Get(s Slot) string {
	if p := l.slot(s); p != nil {
		return *p
	}
	return ""
}

// Session is the complete state of one editor's workflow.
type Session struct {
	ID            string                `json:"id"`
	State         State                 `json:"state"`
	Topic         string                `json:"topic,omitempty"`
	Category      domain.Category       `json:"category,omitempty"`
	ReferenceURL  string                `json:"reference_url,omitempty"`
	Document      *domain.Newsletter    `json:"document,omitempty"`
	Draft         *domain.Draft         `json:"draft,omitempty"`
	Link          string                `json:"link,omitempty"`
	Labels        Labels                `json:"labels"`
	LastError     string                `json:"last_error,omitempty"`
	Notifications []domain.Notification `json:"notifications,omitempty"`

	// Revision counts committed changes. A process adopts a stored snapshot
	// only when its revision is higher than the one it holds.
	Revision int64 `json:"revision"`
}

// NewSession returns an idle session with resting labels.
func NewSession(id string) Session {
	return Session{ID: id, State: Idle, Labels: DefaultLabels()}
}

// Clone returns a copy of s that shares no mutable data with it.
func (s Session) Clone() Session {
	cp := s
	cp.Document = s.Document.Clone()
	cp.Draft = s.Draft.Clone()
	if s.Notifications != nil {
		cp.Notifications = append([]domain.Notification(nil), s.Notifications...)
	}
	return cp
}
