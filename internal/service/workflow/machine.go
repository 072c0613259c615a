package workflow

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/ignite/newsletter-ai/internal/content"
	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/recipients"
)

// Machine holds the fixed parameters of the state machine.
type Machine struct {
	// ShareBaseURL is the base shareable links are derived from.
	ShareBaseURL    string
	MaxOutputTokens int
	Temperature     float64
	// AllowOverlap accepts new triggers while a call is outstanding; the
	// last completion to arrive wins.
	AllowOverlap bool
}

// Transition computes the session that follows s on ev, and the effects to
// perform. On error s is returned unchanged and no effects are requested.
func (m Machine) Transition(s Session, ev Event) (Session, []Effect, error) {
	var (
		next    Session
		effects []Effect
		err     error
	)
	switch e := ev.(type) {
	case SubmitGeneration:
		next, effects, err = m.submitGeneration(s, e)
	case ReferenceFetched:
		next, effects, err = m.referenceFetched(s, e)
	case GenerationCompleted:
		next, effects, err = m.generationCompleted(s, e)
	case ToggleEdit:
		next, effects, err = m.toggleEdit(s)
	case EditDraft:
		next, effects, err = m.editDraft(s, e)
	case RequestSave:
		next, effects, err = m.requestSave(s)
	case SaveCompleted:
		next, effects, err = m.saveCompleted(s, e)
	case RequestSend:
		next, effects, err = m.requestSend(s, e)
	case SendCompleted:
		next, effects, err = m.sendCompleted(s, e)
	case CopyLink:
		next, effects, err = m.copyLink(s)
	case RevertLabel:
		next = revertLabel(s, e)
	default:
		err = fmt.Errorf("%w: unknown event %T", ErrInvalidTransition, ev)
	}
	if err != nil {
		return s, nil, err
	}
	return next, effects, nil
}

func (m Machine) checkIdle(s Session) error {
	if s.State.Busy() && !m.AllowOverlap {
		return fmt.Errorf("%w: session is %s", ErrOperationInFlight, s.State)
	}
	return nil
}

func (m Machine) expect(s Session, want State, ev Event) error {
	if s.State != want && !m.AllowOverlap {
		return fmt.Errorf("%w: %T while %s", ErrInvalidTransition, ev, s.State)
	}
	return nil
}

func (m Machine) link(title string) string {
	return content.DeriveLink(m.ShareBaseURL, title)
}

func (m Machine) submitGeneration(s Session, e SubmitGeneration) (Session, []Effect, error) {
	if s.State == Editing {
		return s, nil, fmt.Errorf("%w: finish editing before generating", ErrInvalidTransition)
	}
	if err := m.checkIdle(s); err != nil {
		return s, nil, err
	}
	if e.Category == "" {
		return s, nil, ErrCategoryRequired
	}
	if !e.Category.Valid() {
		return s, nil, fmt.Errorf("%w: %q", ErrUnknownCategory, e.Category)
	}
	url := strings.TrimSpace(e.ReferenceURL)
	if url == "" {
		return s, nil, ErrReferenceURLRequired
	}

	s.Topic = e.Topic
	s.Category = e.Category
	s.ReferenceURL = url
	s.LastError = ""
	s.State = FetchingReference
	s.Labels.Generate = LabelGenerating
	return s, []Effect{FetchReference{URL: url}}, nil
}

func (m Machine) referenceFetched(s Session, e ReferenceFetched) (Session, []Effect, error) {
	if err := m.expect(s, FetchingReference, e); err != nil {
		return s, nil, err
	}
	reference := e.Reference
	if e.Err != nil {
		// Generation still runs, just without reference context.
		s.LastError = "reference fetch: " + e.Err.Error()
		reference = ""
	}

	maxTokens := m.MaxOutputTokens
	if maxTokens <= 0 {
		maxTokens = domain.DefaultMaxOutputTokens
	}
	temperature := m.Temperature
	if temperature <= 0 {
		temperature = domain.DefaultTemperature
	}

	s.State = Generating
	return s, []Effect{Generate{Request: domain.GenerationRequest{
		Prompt:           s.Topic,
		ReferenceContext: content.SystemInstruction(reference),
		MaxOutputTokens:  maxTokens,
		Temperature:      temperature,
	}}}, nil
}

func (m Machine) generationCompleted(s Session, e GenerationCompleted) (Session, []Effect, error) {
	if err := m.expect(s, Generating, e); err != nil {
		return s, nil, err
	}
	if e.Err != nil || strings.TrimSpace(e.Text) == "" {
		if e.Err != nil {
			s.LastError = "generation: " + e.Err.Error()
		} else {
			s.LastError = "generation: empty response"
		}
		if s.Document != nil {
			s.State = Generated
			s.Labels.Generate = LabelGenerateAgain
		} else {
			s.State = Idle
			s.Labels.Generate = LabelGenerate
		}
		return s, nil, nil
	}

	doc := content.Parse(e.Text, s.Category, e.At)
	doc.ShareLink = m.link(doc.Title)
	s.Document = doc
	s.Link = doc.ShareLink
	s.Draft = nil
	s.State = Generated
	s.Labels = Labels{
		Generate: LabelGenerated,
		Save:     LabelSave,
		Email:    LabelSendEmail,
		Copy:     LabelCopy,
	}
	return s, []Effect{ScheduleRevert{Slot: SlotGenerate, From: LabelGenerated, To: LabelGenerateAgain}}, nil
}

func (m Machine) toggleEdit(s Session) (Session, []Effect, error) {
	if err := m.checkIdle(s); err != nil {
		return s, nil, err
	}
	if s.Draft != nil {
		s.Draft = nil
		s.State = Generated
		return s, nil, nil
	}
	if s.Document == nil {
		return s, nil, ErrNoDocument
	}
	s.Draft = domain.NewDraft(s.Document)
	s.State = Editing
	return s, nil, nil
}

func (m Machine) editDraft(s Session, e EditDraft) (Session, []Effect, error) {
	if err := m.checkIdle(s); err != nil {
		return s, nil, err
	}
	if s.Draft == nil {
		return s, nil, ErrNotEditing
	}
	d := s.Draft.Clone()
	switch e.Field {
	case FieldTitle:
		d.Title = e.Value
	case FieldSubtitle, FieldParagraph:
		if e.Index < 0 || e.Index >= len(d.Sections) {
			return s, nil, fmt.Errorf("%w: %d of %d", ErrSectionIndex, e.Index, len(d.Sections))
		}
		if e.Field == FieldSubtitle {
			d.Sections[e.Index].Subtitle = e.Value
		} else {
			d.Sections[e.Index].Paragraph = e.Value
		}
	default:
		return s, nil, fmt.Errorf("%w: unknown draft field %q", ErrInvalidTransition, e.Field)
	}
	s.Draft = d
	return s, nil, nil
}

func (m Machine) requestSave(s Session) (Session, []Effect, error) {
	if err := m.checkIdle(s); err != nil {
		return s, nil, err
	}
	if s.Document == nil {
		return s, nil, ErrNoDocument
	}
	target := s.Document.WithDraft(s.Draft)
	s.State = Saving
	s.Labels.Save = LabelSaving
	return s, []Effect{Persist{Document: target}}, nil
}

func (m Machine) saveCompleted(s Session, e SaveCompleted) (Session, []Effect, error) {
	if err := m.expect(s, Saving, e); err != nil {
		return s, nil, err
	}
	if e.Err == nil && e.Code == http.StatusOK && e.Document != nil {
		saved := e.Document.Clone()
		saved.ShareLink = m.link(saved.Title)
		s.Document = saved
		s.Link = saved.ShareLink
		s.Draft = nil
		s.State = Saved
		s.Labels.Save = LabelSaved
		return s, []Effect{
			Notify{Level: domain.NotifySuccess, Message: MsgSaved},
			ScheduleRevert{Slot: SlotSave, From: LabelSaved, To: LabelSave},
		}, nil
	}

	switch {
	case e.Err != nil:
		s.LastError = "save: " + e.Err.Error()
	default:
		s.LastError = fmt.Sprintf("save: persistence returned code %d", e.Code)
	}
	// The document and any draft stay as they were so the save can be retried.
	s.State = SaveFailed
	s.Labels.Save = LabelTryAgain
	return s, []Effect{Notify{Level: domain.NotifyError, Message: MsgSaveFailed}}, nil
}

func (m Machine) requestSend(s Session, e RequestSend) (Session, []Effect, error) {
	if err := m.checkIdle(s); err != nil {
		return s, nil, err
	}
	if s.Document == nil {
		return s, nil, ErrNoDocument
	}
	if s.State == Editing {
		return s, nil, fmt.Errorf("%w: finish editing before sending", ErrInvalidTransition)
	}
	if len(s.Document.Sections) == 0 {
		return s, nil, ErrNoSections
	}

	req := domain.EmailRequest{
		Title:       s.Document.Title,
		Link:        s.Link,
		Description: s.Document.Description(),
		Category:    s.Document.Category,
		Emails:      recipients.Build(e.Manual, e.FileLines),
	}
	s.State = Sending
	s.Labels.Email = LabelSending
	return s, []Effect{Dispatch{Request: req}}, nil
}

func (m Machine) sendCompleted(s Session, e SendCompleted) (Session, []Effect, error) {
	if err := m.expect(s, Sending, e); err != nil {
		return s, nil, err
	}
	if e.Err != nil {
		s.LastError = "send: " + e.Err.Error()
		s.State = SendFailed
		s.Labels.Email = LabelSendFailed
		return s, []Effect{Notify{Level: domain.NotifyError, Message: MsgSendFailed}}, nil
	}
	status := e.Status
	if status == "" {
		status = LabelEmailSent
	}
	s.State = Sent
	s.Labels.Email = LabelEmailSent
	return s, []Effect{Notify{Level: domain.NotifySuccess, Message: status}}, nil
}

func (m Machine) copyLink(s Session) (Session, []Effect, error) {
	if s.Document == nil || s.Link == "" {
		return s, nil, ErrNoDocument
	}
	s.Labels.Copy = LabelCopied
	return s, []Effect{
		Notify{Level: domain.NotifySuccess, Message: MsgCopied},
		ScheduleRevert{Slot: SlotCopy, From: LabelCopied, To: LabelCopy},
	}, nil
}

func revertLabel(s Session, e RevertLabel) Session {
	if p := s.Labels.slot(e.Slot); p != nil && *p == e.From {
		*p = e.To
	}
	return s
}
