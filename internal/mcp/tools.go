package mcp

import "github.com/mark3labs/mcp-go/mcp"

// Shared parameter options for id XOR name addressing.
var (
	idParam   = mcp.WithString("id", mcp.Description("Experience ID (ULID). Mutually exclusive with name."))
	nameParam = mcp.WithString("name", mcp.Description("Experience name (case-insensitive). Mutually exclusive with id."))
)

var markerSchema = map[string]any{
	"code":                           map[string]any{"type": "string", "description": "Scanner code, e.g. \"1:1:2:4\". Unique within the experience."},
	"title":                          map[string]any{"type": "string"},
	"description":                    map[string]any{"type": "string", "description": "Markdown shown when the marker is opened."},
	"action":                         map[string]any{"type": "string", "description": "URL opened when the marker is scanned."},
	"image":                          map[string]any{"type": "string"},
	"showDetail":                     map[string]any{"type": "boolean"},
	"resetHistoryOnOpen":             map[string]any{"type": "boolean"},
	"changeToExperienceWithIdOnOpen": map[string]any{"type": "string"},
}

var storeToolDef = mcp.NewTool("experience_store",
	mcp.WithDescription("Store an experience with its markers. Marker codes must be unique and non-empty."),
	mcp.WithObject("experience",
		mcp.Required(),
		mcp.Description("Experience definition: name, description and a markers array."),
		mcp.Properties(map[string]any{
			"name":        map[string]any{"type": "string"},
			"description": map[string]any{"type": "string"},
			"markers": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object", "properties": markerSchema},
			},
		}),
	),
	mcp.WithString("mode",
		mcp.Description("Collision behavior when the name exists: error (default) or replace."),
		mcp.Enum("error", "replace"),
	),
)

var fetchToolDef = mcp.NewTool("experience_fetch",
	mcp.WithDescription("Fetch an experience and its markers by id or name."),
	idParam,
	nameParam,
	mcp.WithBoolean("include_deleted", mcp.Description("Also match soft-deleted experiences.")),
	mcp.WithBoolean("include_markers", mcp.Description("Return markers (default true).")),
)

var listToolDef = mcp.NewTool("experience_list",
	mcp.WithDescription("List experience summaries, most recently updated first."),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100).")),
	mcp.WithNumber("offset", mcp.Description("Page offset.")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted experiences.")),
)

var searchToolDef = mcp.NewTool("experience_search",
	mcp.WithDescription("Search experience names, descriptions and marker titles."),
	mcp.WithString("query", mcp.Required(), mcp.Description("At least 3 characters.")),
	mcp.WithNumber("limit", mcp.Description("Page size (default 20, max 100).")),
	mcp.WithNumber("offset", mcp.Description("Page offset.")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted experiences.")),
)

var deleteToolDef = mcp.NewTool("experience_delete",
	mcp.WithDescription("Soft-delete an experience. Its name becomes available again."),
	idParam,
	nameParam,
)

var purgeToolDef = mcp.NewTool("experience_purge",
	mcp.WithDescription("Permanently remove soft-deleted experiences and their markers."),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge experiences deleted more than N days ago.")),
)

var settingsToolDef = mcp.NewTool("experience_settings",
	mcp.WithDescription("Derive scanner detection settings (region counts, checksum, valid codes) for an experience."),
	idParam,
	nameParam,
)

var exportToolDef = mcp.NewTool("experience_export",
	mcp.WithDescription("Export experiences to a JSONL file."),
	mcp.WithString("path", mcp.Description("Destination .jsonl path (default ~/.artcodes/exports/<prefix>-<timestamp>.jsonl).")),
	mcp.WithString("prefix", mcp.Description("File name prefix for the default path.")),
	mcp.WithBoolean("include_deleted", mcp.Description("Include soft-deleted experiences.")),
)

var importToolDef = mcp.NewTool("experience_import",
	mcp.WithDescription("Import experiences from a JSONL export file."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Source .jsonl path.")),
	mcp.WithString("mode",
		mcp.Description("Collision behavior: error (atomic, default), replace or rename."),
		mcp.Enum("error", "replace", "rename"),
	),
)

var markerPutToolDef = mcp.NewTool("marker_put",
	mcp.WithDescription("Add a marker to an experience, or replace the marker with the same code."),
	idParam,
	nameParam,
	mcp.WithObject("marker",
		mcp.Required(),
		mcp.Description("Marker dictionary. code is required."),
		mcp.Properties(markerSchema),
	),
)

var markerFetchToolDef = mcp.NewTool("marker_fetch",
	mcp.WithDescription("Fetch one marker of an experience by code."),
	idParam,
	nameParam,
	mcp.WithString("code", mcp.Required(), mcp.Description("Marker code.")),
)

var markerDeleteToolDef = mcp.NewTool("marker_delete",
	mcp.WithDescription("Remove one marker from an experience."),
	idParam,
	nameParam,
	mcp.WithString("code", mcp.Required(), mcp.Description("Marker code.")),
)
