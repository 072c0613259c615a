package workflow

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/distlock"
	"github.com/ignite/newsletter-ai/internal/pkg/logger"
	"github.com/ignite/newsletter-ai/internal/recipients"
)

// Options configures controllers.
type Options struct {
	ShareBaseURL    string
	MaxOutputTokens int
	Temperature     float64

	// SingleFlight rejects a new step while another is outstanding. Store
	// shares sessions between processes; Locks then keeps one outbound step
	// per session across all of them.
	SingleFlight bool
	Locks        distlock.Factory
	Store        SessionStore

	Delays     RevertDelays
	SessionTTL time.Duration

	Scheduler Scheduler
	Clock     func() time.Time
	Logger    *logger.Logger
}

func (o Options) withDefaults() Options {
	if o.Delays == (RevertDelays{}) {
		o.Delays = DefaultRevertDelays()
	}
	if o.SessionTTL <= 0 {
		o.SessionTTL = 24 * time.Hour
	}
	if o.Scheduler == nil {
		o.Scheduler = realScheduler{}
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Logger == nil {
		o.Logger = logger.Default()
	}
	if !o.SingleFlight {
		o.Locks = nil
	}
	return o
}

const storeTimeout = 3 * time.Second

// GenerateInput is the generation form.
type GenerateInput struct {
	Topic        string          `json:"topic"`
	Category     domain.Category `json:"category"`
	ReferenceURL string          `json:"reference_url"`
}

// Controller owns one Session. Transitions are applied under a mutex;
// collaborator calls run outside it so snapshots stay available while a
// step is in flight.
type Controller struct {
	id      string
	machine Machine
	deps    Dependencies
	opts    Options
	log     *logger.Logger

	mu       sync.Mutex
	session  Session
	timers   map[Slot]Timer
	lastUsed time.Time
	closed   bool
}

// NewController returns a controller for a fresh session with the given ID.
func NewController(id string, deps Dependencies, opts Options) *Controller {
	return newController(NewSession(id), deps, opts)
}

// newController wraps an existing session, such as one loaded from the
// session store.
func newController(s Session, deps Dependencies, opts Options) *Controller {
	opts = opts.withDefaults()
	return &Controller{
		id:      s.ID,
		machine: Machine{
			ShareBaseURL:    opts.ShareBaseURL,
			MaxOutputTokens: opts.MaxOutputTokens,
			Temperature:     opts.Temperature,
			AllowOverlap:    !opts.SingleFlight,
		},
		deps:     deps,
		opts:     opts,
		log:      opts.Logger.With("session", s.ID),
		session:  s,
		timers:   make(map[Slot]Timer),
		lastUsed: opts.Clock(),
	}
}

// ID returns the session ID.
func (c *Controller) ID() string { return c.id }

// Snapshot returns a copy of the current session.
func (c *Controller) Snapshot() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

// Generate fetches the reference, generates text and parses it into the
// session's document. Upstream failures are recorded on the session rather
// than returned.
func (c *Controller) Generate(ctx context.Context, in GenerateInput) (Session, error) {
	release, err := c.guard(ctx)
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	err = c.apply(ctx, SubmitGeneration{Topic: in.Topic, Category: in.Category, ReferenceURL: in.ReferenceURL})
	return c.Snapshot(), err
}

// ToggleEdit enters edit mode with a snapshot of the document, or leaves it
// discarding the draft.
func (c *Controller) ToggleEdit() (Session, error) {
	err := c.apply(context.Background(), ToggleEdit{})
	return c.Snapshot(), err
}

// EditTitle changes the draft title.
func (c *Controller) EditTitle(title string) (Session, error) {
	err := c.apply(context.Background(), EditDraft{Field: FieldTitle, Value: title})
	return c.Snapshot(), err
}

// EditSection changes the subtitle and/or paragraph of draft section index.
func (c *Controller) EditSection(index int, subtitle, paragraph *string) (Session, error) {
	if subtitle != nil {
		if err := c.apply(context.Background(), EditDraft{Field: FieldSubtitle, Index: index, Value: *subtitle}); err != nil {
			return c.Snapshot(), err
		}
	}
	if paragraph != nil {
		if err := c.apply(context.Background(), EditDraft{Field: FieldParagraph, Index: index, Value: *paragraph}); err != nil {
			return c.Snapshot(), err
		}
	}
	return c.Snapshot(), nil
}

// Save persists the document, merged with the draft when editing.
func (c *Controller) Save(ctx context.Context) (Session, error) {
	release, err := c.guard(ctx)
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	err = c.apply(ctx, RequestSave{})
	return c.Snapshot(), err
}

// Send reads the optional recipient file, merges it after the manual
// comma-separated addresses and dispatches the announcement.
func (c *Controller) Send(ctx context.Context, manual string, file recipients.LineSource) (Session, error) {
	release, err := c.guard(ctx)
	if err != nil {
		return c.Snapshot(), err
	}
	defer release()

	lines, err := recipients.Lines(ctx, file)
	if err != nil {
		return c.Snapshot(), fmt.Errorf("%w: %v", ErrRecipientFile, err)
	}
	err = c.apply(ctx, RequestSend{Manual: manual, FileLines: lines})
	return c.Snapshot(), err
}

// CopyLink returns the share link and flashes the copy label.
func (c *Controller) CopyLink() (string, error) {
	if err := c.apply(context.Background(), CopyLink{}); err != nil {
		return "", err
	}
	return c.Snapshot().Link, nil
}

// DrainNotifications returns and clears queued notifications.
func (c *Controller) DrainNotifications() []domain.Notification {
	ctx := context.Background()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked(ctx)
	out := c.session.Notifications
	c.session.Notifications = nil
	c.lastUsed = c.opts.Clock()
	if out != nil {
		c.commitLocked(ctx)
	}
	return out
}

// LastUsed returns when the session last changed or was drained.
func (c *Controller) LastUsed() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// Close stops pending label timers. A closed controller ignores reverts.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for slot, t := range c.timers {
		t.Stop()
		delete(c.timers, slot)
	}
}

// refresh adopts a newer snapshot from the session store.
func (c *Controller) refresh(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked(ctx)
}

// publish writes the current session to the session store.
func (c *Controller) publish(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commitLocked(ctx)
}

// syncLocked replaces the session with the stored snapshot when another
// process has committed a later revision.
func (c *Controller) syncLocked(ctx context.Context) {
	if c.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	stored, ok, err := c.opts.Store.Load(ctx, c.id)
	if err != nil {
		c.log.Warn("workflow: load session snapshot", "error", err)
		return
	}
	if ok && stored.Revision > c.session.Revision {
		c.session = stored
	}
}

// commitLocked bumps the revision and writes the snapshot through.
func (c *Controller) commitLocked(ctx context.Context) {
	c.session.Revision++
	if c.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer cancel()
	if err := c.opts.Store.Store(ctx, c.session, c.opts.SessionTTL); err != nil {
		c.log.Warn("workflow: store session snapshot", "error", err)
	}
}

// guard takes the per-session lock for a step that calls out.
func (c *Controller) guard(ctx context.Context) (func(), error) {
	if c.opts.Locks == nil {
		return func() {}, nil
	}
	lock := c.opts.Locks("newsletter:session:" + c.id)
	ok, err := lock.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session lock: %w", err)
	}
	if !ok {
		return nil, ErrOperationInFlight
	}
	return func() {
		// The step's ctx may already be done; release on a fresh one.
		rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := lock.Release(rctx); err != nil {
			c.log.Warn("workflow: release session lock", "error", err)
		}
	}, nil
}

// apply runs ev through the machine, then performs any outbound effects
// and applies their outcomes in turn.
func (c *Controller) apply(ctx context.Context, ev Event) error {
	pending, err := c.step(ctx, ev)
	if err != nil {
		return err
	}
	for _, eff := range pending {
		outcome := c.perform(ctx, eff)
		if outcome == nil {
			continue
		}
		if err := c.apply(ctx, outcome); err != nil {
			// Only possible when overlapping steps moved the session on.
			c.log.Warn("workflow: outcome dropped", "event", fmt.Sprintf("%T", outcome), "error", err)
		}
	}
	return nil
}

// step applies ev under the mutex. Notifications and label timers are
// handled in place; effects needing I/O are returned.
func (c *Controller) step(ctx context.Context, ev Event) ([]Effect, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.syncLocked(ctx)

	from := c.session.State
	next, effects, err := c.machine.Transition(c.session, ev)
	if err != nil {
		return nil, err
	}
	c.session = next
	c.lastUsed = c.opts.Clock()
	if from != next.State {
		c.log.Debug("workflow: transition", "from", from, "to", next.State, "event", fmt.Sprintf("%T", ev))
	}

	var outbound []Effect
	for _, eff := range effects {
		switch e := eff.(type) {
		case Notify:
			c.session.Notifications = append(c.session.Notifications, domain.Notification{
				Level:   e.Level,
				Message: e.Message,
				At:      c.opts.Clock(),
			})
		case ScheduleRevert:
			c.scheduleRevertLocked(e)
		default:
			outbound = append(outbound, eff)
		}
	}
	c.commitLocked(ctx)
	return outbound, nil
}

func (c *Controller) perform(ctx context.Context, eff Effect) Event {
	switch e := eff.(type) {
	case FetchReference:
		ref, err := c.deps.Reference.FetchReference(ctx, e.URL)
		if err != nil {
			c.log.Warn("workflow: reference fetch failed, generating without it", "url", e.URL, "error", err)
		}
		return ReferenceFetched{Reference: ref, Err: err}

	case Generate:
		start := c.opts.Clock()
		text, err := c.deps.Generator.Generate(ctx, e.Request)
		if err != nil {
			c.log.Warn("workflow: generation failed", "error", err)
		} else {
			c.log.Info("workflow: generated", "chars", len(text), "took", c.opts.Clock().Sub(start))
		}
		return GenerationCompleted{Text: text, Err: err, At: c.opts.Clock()}

	case Persist:
		code, err := c.deps.Persister.Persist(ctx, e.Document)
		if err != nil || code != http.StatusOK {
			c.log.Error("workflow: save failed", "newsletter", e.Document.ID, "code", code, "error", err)
		}
		return SaveCompleted{Document: e.Document, Code: code, Err: err}

	case Dispatch:
		status, err := c.deps.Dispatcher.Dispatch(ctx, e.Request)
		if err != nil {
			c.log.Error("workflow: send failed", "recipients", e.Request.Emails, "error", err)
		} else {
			c.log.Info("workflow: sent", "recipients", len(e.Request.Emails), "status", status)
		}
		return SendCompleted{Status: status, Err: err}
	}
	c.log.Error("workflow: unhandled effect", "effect", fmt.Sprintf("%T", eff))
	return nil
}

func (c *Controller) scheduleRevertLocked(e ScheduleRevert) {
	if t, ok := c.timers[e.Slot]; ok {
		t.Stop()
		delete(c.timers, e.Slot)
	}
	if c.closed {
		return
	}
	rev := RevertLabel{Slot: e.Slot, From: e.From, To: e.To}
	d := c.opts.Delays.For(e.Slot)
	if d <= 0 {
		c.session, _, _ = c.machine.Transition(c.session, rev)
		return
	}
	c.timers[e.Slot] = c.opts.Scheduler.AfterFunc(d, func() { c.revert(rev) })
}

func (c *Controller) revert(rev RevertLabel) {
	ctx := context.Background()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.syncLocked(ctx)
	if next, _, err := c.machine.Transition(c.session, rev); err == nil {
		c.session = next
		c.commitLocked(ctx)
	}
}
