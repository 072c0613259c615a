package api

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/httputil"
	"github.com/ignite/newsletter-ai/internal/recipients"
	"github.com/ignite/newsletter-ai/internal/service/archive"
	"github.com/ignite/newsletter-ai/internal/service/workflow"
)

// ArchiveReader is the read side of the local newsletter archive.
type ArchiveReader interface {
	Get(ctx context.Context, id string) (*domain.Newsletter, error)
	FindByTitle(ctx context.Context, title string) (*domain.Newsletter, error)
	List(ctx context.Context, f archive.ListFilter) ([]domain.Newsletter, int, error)
}

// Options configures optional handler features.
type Options struct {
	// Archive enables the /api/newsletters routes.
	Archive ArchiveReader
	// Objects and Bucket enable sending to a recipient list stored in S3.
	Objects      recipients.ObjectGetter
	Bucket       string
	MaxFileBytes int64
}

// Handlers contains the HTTP handlers for editor sessions and the archive.
type Handlers struct {
	sessions     *workflow.Manager
	archive      ArchiveReader
	objects      recipients.ObjectGetter
	bucket       string
	maxFileBytes int64
}

// NewHandlers creates handlers over a session manager.
func NewHandlers(sessions *workflow.Manager, opts Options) *Handlers {
	if opts.MaxFileBytes <= 0 {
		opts.MaxFileBytes = recipients.DefaultMaxFileBytes
	}
	return &Handlers{
		sessions:     sessions,
		archive:      opts.Archive,
		objects:      opts.Objects,
		bucket:       opts.Bucket,
		maxFileBytes: opts.MaxFileBytes,
	}
}

// ListCategories returns the fixed category set.
func (h *Handlers) ListCategories(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]interface{}{"categories": domain.Categories()})
}

// CreateSession starts a new editor session.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	c := h.sessions.Create(r.Context())
	httputil.Created(w, c.Snapshot())
}

// controller resolves the {sessionID} URL parameter, writing a 404 when the
// session does not exist.
func (h *Handlers) controller(w http.ResponseWriter, r *http.Request) (*workflow.Controller, bool) {
	c, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		respondError(w, err)
		return nil, false
	}
	return c, true
}

// respondSession writes the session, or the error when the step was rejected.
func respondSession(w http.ResponseWriter, s workflow.Session, err error) {
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, s)
}

// GetSession returns the current session snapshot.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	httputil.OK(w, c.Snapshot())
}

// Generate runs reference fetch, generation and parsing. Upstream failures
// come back as a 200 with the session in its failure state.
func (h *Handlers) Generate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var in workflow.GenerateInput
	if !httputil.Decode(w, r, &in) {
		return
	}
	s, err := c.Generate(r.Context(), in)
	respondSession(w, s, err)
}

// ToggleEdit enters or leaves edit mode.
func (h *Handlers) ToggleEdit(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	s, err := c.ToggleEdit()
	respondSession(w, s, err)
}

type editTitleRequest struct {
	Title string `json:"title"`
}

// EditTitle changes the draft title.
func (h *Handlers) EditTitle(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	var req editTitleRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	s, err := c.EditTitle(req.Title)
	respondSession(w, s, err)
}

type editSectionRequest struct {
	Subtitle  *string `json:"subtitle"`
	Paragraph *string `json:"paragraph"`
}

// EditSection changes one draft section. Omitted fields are left as they are.
func (h *Handlers) EditSection(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, fmt.Errorf("%w: %q", workflow.ErrSectionIndex, chi.URLParam(r, "index")))
		return
	}
	var req editSectionRequest
	if !httputil.Decode(w, r, &req) {
		return
	}
	s, err := c.EditSection(index, req.Subtitle, req.Paragraph)
	respondSession(w, s, err)
}

// Save persists the newsletter, merged with the draft when editing.
func (h *Handlers) Save(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	s, err := c.Save(r.Context())
	respondSession(w, s, err)
}

type sendRequest struct {
	Emails string `json:"emails"`
	S3Key  string `json:"s3_key"`
}

// Send dispatches the announcement. It accepts either a multipart form with
// an "emails" field and an optional "file" upload, or JSON naming an
// optional recipient list stored in S3.
func (h *Handlers) Send(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}

	var (
		manual string
		file   recipients.LineSource
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxFileBytes+httputil.MaxJSONBody)
		if err := r.ParseMultipartForm(h.maxFileBytes); err != nil {
			respondError(w, fmt.Errorf("%w: %v", workflow.ErrRecipientFile, err))
			return
		}
		manual = r.FormValue("emails")
		upload, err := h.readUpload(r)
		if err != nil {
			respondError(w, err)
			return
		}
		if upload != nil {
			file = upload
		}
	} else {
		var req sendRequest
		if !httputil.Decode(w, r, &req) {
			return
		}
		manual = req.Emails
		if req.S3Key != "" {
			if h.objects == nil || h.bucket == "" {
				httputil.ErrorCode(w, http.StatusBadRequest, codeNoS3Bucket, "recipient bucket is not configured")
				return
			}
			file = recipients.S3Object{Client: h.objects, Bucket: h.bucket, Key: req.S3Key, MaxBytes: h.maxFileBytes}
		}
	}

	s, err := c.Send(r.Context(), manual, file)
	respondSession(w, s, err)
}

// readUpload returns the "file" part, or nil when none was sent.
func (h *Handlers) readUpload(r *http.Request) (*recipients.Upload, error) {
	f, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", workflow.ErrRecipientFile, err)
	}
	defer f.Close()
	return recipients.ReadUpload(header.Filename, f, h.maxFileBytes)
}

// CopyLink returns the share link and flashes the copy label.
func (h *Handlers) CopyLink(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	link, err := c.CopyLink()
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, map[string]interface{}{
		"link":    link,
		"session": c.Snapshot(),
	})
}

// DrainNotifications returns and clears queued notifications.
func (h *Handlers) DrainNotifications(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r)
	if !ok {
		return
	}
	notes := c.DrainNotifications()
	if notes == nil {
		notes = []domain.Notification{}
	}
	httputil.OK(w, map[string]interface{}{"notifications": notes})
}
