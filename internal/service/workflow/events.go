package workflow

import (
	"time"

	"github.com/ignite/newsletter-ai/internal/domain"
)

// Event is an input to Machine.Transition.
type Event interface{ event() }

// SubmitGeneration starts a generation cycle.
type SubmitGeneration struct {
	Topic        string
	Category     domain.Category
	ReferenceURL string
}

// ReferenceFetched reports the outcome of a FetchReference effect.
type ReferenceFetched struct {
	Reference string
	Err       error
}

// GenerationCompleted reports the outcome of a Generate effect. At is the
// moment the text arrived and becomes the newsletter date.
type GenerationCompleted struct {
	Text string
	Err  error
	At   time.Time
}

// ToggleEdit enters or leaves edit mode.
type ToggleEdit struct{}

// DraftField names the draft field an EditDraft changes.
type DraftField string

const (
	FieldTitle     DraftField = "title"
	FieldSubtitle  DraftField = "subtitle"
	FieldParagraph DraftField = "paragraph"
)

// EditDraft changes one field of the draft. Index selects the section for
// subtitle and paragraph edits and is ignored for the title.
type EditDraft struct {
	Field DraftField
	Index int
	Value string
}

// RequestSave persists the document, merged with the draft when editing.
type RequestSave struct{}

// SaveCompleted reports the outcome of a Persist effect.
type SaveCompleted struct {
	Document *domain.Newsletter
	Code     int
	Err      error
}

// RequestSend dispatches the newsletter to the manual recipients followed
// by the already-read file lines.
type RequestSend struct {
	Manual    string
	FileLines []string
}

// SendCompleted reports the outcome of a Dispatch effect.
type SendCompleted struct {
	Status string
	Err    error
}

// CopyLink marks the share link as copied.
type CopyLink struct{}

// RevertLabel returns a slot to To if it still shows From.
type RevertLabel struct {
	Slot Slot
	From string
	To   string
}

func (SubmitGeneration) event()    {}
func (ReferenceFetched) event()    {}
func (GenerationCompleted) event() {}
func (ToggleEdit) event()          {}
func (EditDraft) event()           {}
func (RequestSave) event()         {}
func (SaveCompleted) event()       {}
func (RequestSend) event()         {}
func (SendCompleted) event()       {}
func (CopyLink) event()            {}
func (RevertLabel) event()         {}

// Effect is work requested by Machine.Transition.
type Effect interface{ effect() }

// FetchReference asks for the reference text behind URL.
type FetchReference struct{ URL string }

// Generate asks the generation provider for newsletter text.
type Generate struct{ Request domain.GenerationRequest }

// Persist asks for Document to be stored.
type Persist struct{ Document *domain.Newsletter }

// Dispatch asks for the announcement email to be sent.
type Dispatch struct{ Request domain.EmailRequest }

// Notify queues a user-visible notification.
type Notify struct {
	Level   domain.NotificationLevel
	Message string
}

// ScheduleRevert asks for a RevertLabel after the slot's display interval.
type ScheduleRevert struct {
	Slot Slot
	From string
	To   string
}

func (FetchReference) effect() {}
func (Generate) effect()       {}
func (Persist) effect()        {}
func (Dispatch) effect()       {}
func (Notify) effect()         {}
func (ScheduleRevert) effect() {}
