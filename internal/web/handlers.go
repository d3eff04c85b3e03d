package web

import (
	"database/sql"
	"html/template"
	"net/http"
	"strconv"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/experience"
	"github.com/artcodes/registry/internal/ops"
)

// Handlers contains HTTP route handlers for the web UI.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	renderer *Renderer
}

// HandleList handles GET /experiences.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	input := ops.ListInput{
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.List(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, "list", ListPageData{
		PageData:   h.renderer.page("Experiences", "experiences"),
		Items:      result.Items,
		Pagination: result.Pagination,
		Deleted:    input.IncludeDeleted,
	})
}

// HandleSearch handles GET /experiences/search. An empty query shows the form.
func (h *Handlers) HandleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	data := SearchPageData{
		PageData: h.renderer.page("Search", "search"),
		Query:    query,
		Deleted:  parseBoolParam(r, "include_deleted"),
		HasQuery: query != "",
	}

	if query == "" && !wantsJSON(r) {
		h.renderer.renderPage(w, "search", data)
		return
	}

	result, err := ops.Search(r.Context(), h.db, ops.SearchInput{
		Query:          query,
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: data.Deleted,
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	data.Items = result.Items
	data.Pagination = result.Pagination
	h.renderer.renderPage(w, "search", data)
}

// HandleDetail handles GET /experiences/{id}.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("experience ID is required"))
		return
	}

	e, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{
		ID:             id,
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, e)
		return
	}

	name := displayName(e.NameRaw, e.ID)
	h.renderer.renderPage(w, "detail", DetailPageData{
		PageData:        h.renderer.page(name, "experiences"),
		Experience:      e,
		DescriptionHTML: renderMarkdown(e.Description),
		Settings:        experience.NewDetectionSettings(e.Markers),
		DisplayName:     name,
	})
}

// HandleMarker handles GET /experiences/{id}/markers/{code}.
func (h *Handlers) HandleMarker(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	code := r.PathValue("code")
	if id == "" || code == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("experience ID and marker code are required"))
		return
	}

	result, err := ops.FetchMarker(r.Context(), h.db, ops.MarkerInput{ID: id, Code: code})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	e, err := ops.Fetch(r.Context(), h.db, ops.FetchInput{ID: id, IncludeMarkers: boolPtr(false)})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	title := result.Marker.Title
	if title == "" {
		title = result.Marker.Code
	}
	h.renderer.renderPage(w, "marker", MarkerPageData{
		PageData:        h.renderer.page(title, "experiences"),
		ExperienceID:    result.ExperienceID,
		ExperienceName:  displayName(e.NameRaw, e.ID),
		Marker:          result.Marker,
		DescriptionHTML: renderMarkdown(result.Marker.Description),
	})
}

// HandleDelete handles DELETE /experiences/{id}, a soft delete.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("experience ID is required"))
		return
	}

	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{ID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	http.Redirect(w, r, "/experiences", http.StatusSeeOther)
}

// HandlePurge handles POST /experiences/purge.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	var input ops.PurgeInput
	if days := r.FormValue("older_than_days"); days != "" {
		d, err := strconv.Atoi(days)
		if err != nil {
			h.renderer.renderError(w, r, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.log.Info().Int("purged", result.Purged).Msg("purged deleted experiences")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`<p class="purge-result">` + template.HTMLEscapeString(result.Message) +
		` <a href="/experiences?include_deleted=true">Back</a></p>`))
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}

func boolPtr(b bool) *bool { return &b }

// displayName returns the experience name if present, or a truncated ID.
func displayName(name, id string) string {
	if name != "" {
		return name
	}
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}
