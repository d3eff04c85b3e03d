package mcp

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *sql.DB, cfg *config.Config) *Handlers {
	return &Handlers{db: db, cfg: cfg}
}

// Request types for each tool

// StoreRequest represents the arguments for experience_store.
type StoreRequest struct {
	Experience map[string]any `json:"experience"`
	Mode       string         `json:"mode,omitempty"`
}

// AddressRequest addresses an experience by id or name.
type AddressRequest struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// FetchRequest represents the arguments for experience_fetch.
type FetchRequest struct {
	AddressRequest
	IncludeDeleted bool  `json:"include_deleted,omitempty"`
	IncludeMarkers *bool `json:"include_markers,omitempty"`
}

// ListRequest represents the arguments for experience_list.
type ListRequest struct {
	Limit          int  `json:"limit,omitempty"`
	Offset         int  `json:"offset,omitempty"`
	IncludeDeleted bool `json:"include_deleted,omitempty"`
}

// SearchRequest represents the arguments for experience_search.
type SearchRequest struct {
	Query string `json:"query"`
	ListRequest
}

// PurgeRequest represents the arguments for experience_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// ExportRequest represents the arguments for experience_export.
type ExportRequest struct {
	Path           string `json:"path,omitempty"`
	Prefix         string `json:"prefix,omitempty"`
	IncludeDeleted bool   `json:"include_deleted,omitempty"`
}

// ImportRequest represents the arguments for experience_import.
type ImportRequest struct {
	Path string `json:"path"`
	Mode string `json:"mode,omitempty"`
}

// MarkerPutRequest represents the arguments for marker_put.
type MarkerPutRequest struct {
	AddressRequest
	Marker map[string]any `json:"marker"`
}

// MarkerRequest represents the arguments for marker_fetch and marker_delete.
type MarkerRequest struct {
	AddressRequest
	Code string `json:"code"`
}

// Handler implementations

// HandleStore handles the experience_store tool call.
func (h *Handlers) HandleStore(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[StoreRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Store(ctx, h.db, h.cfg, ops.StoreInput{
		Definition: input.Experience,
		Mode:       ops.StoreMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleFetch handles the experience_fetch tool call.
func (h *Handlers) HandleFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FetchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Fetch(ctx, h.db, ops.FetchInput{
		ID:             input.ID,
		Name:           input.Name,
		IncludeDeleted: input.IncludeDeleted,
		IncludeMarkers: input.IncludeMarkers,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleList handles the experience_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.List(ctx, h.db, ops.ListInput{
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSearch handles the experience_search tool call.
func (h *Handlers) HandleSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Search(ctx, h.db, ops.SearchInput{
		Query:          input.Query,
		Limit:          input.Limit,
		Offset:         input.Offset,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleDelete handles the experience_delete tool call.
func (h *Handlers) HandleDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddressRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Delete(ctx, h.db, ops.DeleteInput{ID: input.ID, Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandlePurge handles the experience_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Purge(ctx, h.db, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleSettings handles the experience_settings tool call.
func (h *Handlers) HandleSettings(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddressRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Settings(ctx, h.db, ops.SettingsInput{ID: input.ID, Name: input.Name})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleExport handles the experience_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Export(ctx, h.db, h.cfg, ops.ExportInput{
		Path:           input.Path,
		Prefix:         input.Prefix,
		IncludeDeleted: input.IncludeDeleted,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleImport handles the experience_import tool call.
func (h *Handlers) HandleImport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ImportRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.Import(ctx, h.db, h.cfg, ops.ImportInput{
		Path: input.Path,
		Mode: ops.ImportMode(input.Mode),
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleMarkerPut handles the marker_put tool call.
func (h *Handlers) HandleMarkerPut(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MarkerPutRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.PutMarker(ctx, h.db, h.cfg, ops.PutMarkerInput{
		ID:     input.ID,
		Name:   input.Name,
		Marker: input.Marker,
	})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleMarkerFetch handles the marker_fetch tool call.
func (h *Handlers) HandleMarkerFetch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MarkerRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.FetchMarker(ctx, h.db, ops.MarkerInput{ID: input.ID, Name: input.Name, Code: input.Code})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// HandleMarkerDelete handles the marker_delete tool call.
func (h *Handlers) HandleMarkerDelete(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[MarkerRequest](req)
	if err != nil {
		return errorResult(err), nil
	}

	result, err := ops.RemoveMarker(ctx, h.db, ops.MarkerInput{ID: input.ID, Name: input.Name, Code: input.Code})
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result (IsError: true) from any error.
// INTERNAL errors never carry details; their cause may include paths or SQL.
func errorResult(err error) *mcp.CallToolResult {
	errorObj := map[string]any{
		"code":    string(errors.ErrInternal),
		"message": "an internal error occurred",
		"status":  500,
	}

	var aErr *errors.ArtcodesError
	if stderrors.As(err, &aErr) {
		message := aErr.Message
		// Keep context added by wrapping, e.g. "markers[2]: ...".
		if outer := err.Error(); outer != aErr.Error() {
			message = strings.TrimSuffix(outer, aErr.Error()) + aErr.Message
		}
		errorObj["code"] = string(aErr.Code)
		errorObj["status"] = aErr.Status
		if aErr.Code == errors.ErrInternal {
			message = "an internal error occurred"
		} else if len(aErr.Details) > 0 {
			errorObj["details"] = aErr.Details
		}
		errorObj["message"] = message
	}

	content, _ := json.Marshal(map[string]any{"error": errorObj})
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
