package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/newsletter-ai/internal/domain"
	"github.com/ignite/newsletter-ai/internal/pkg/httputil"
	"github.com/ignite/newsletter-ai/internal/service/archive"
)

func respondArchiveDisabled(w http.ResponseWriter) {
	httputil.ErrorCode(w, http.StatusNotFound, codeNoArchive, "newsletters are not archived locally")
}

// ListNewsletters returns saved newsletters, newest first.
//
//	GET /api/newsletters?category=Technology&limit=20&offset=0
func (h *Handlers) ListNewsletters(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := archive.ListFilter{Category: domain.Category(q.Get("category"))}
	var err error
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil {
			httputil.BadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			httputil.BadRequest(w, "offset must be a non-negative integer")
			return
		}
	}

	items, total, err := h.archive.List(r.Context(), f)
	if err != nil {
		respondError(w, err)
		return
	}
	if items == nil {
		items = []domain.Newsletter{}
	}
	httputil.OK(w, map[string]interface{}{
		"newsletters": items,
		"total":       total,
		"offset":      f.Offset,
	})
}

// GetNewsletter returns one saved newsletter by ID.
func (h *Handlers) GetNewsletter(w http.ResponseWriter, r *http.Request) {
	n, err := h.archive.Get(r.Context(), chi.URLParam(r, "newsletterID"))
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, n)
}

// LookupNewsletter resolves a share link's title to the newest newsletter
// saved under it.
//
//	GET /api/newsletters/lookup?title=Mars%20Weekly
func (h *Handlers) LookupNewsletter(w http.ResponseWriter, r *http.Request) {
	title := r.URL.Query().Get("title")
	if title == "" {
		httputil.BadRequest(w, "title is required")
		return
	}
	n, err := h.archive.FindByTitle(r.Context(), title)
	if err != nil {
		respondError(w, err)
		return
	}
	httputil.OK(w, n)
}
