package ops

import (
	"context"
	"testing"

	"github.com/artcodes/registry/internal/config"
	"github.com/artcodes/registry/internal/errors"
)

func TestStore_Basic(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()

	def := definition("Museum Tour", "1:1:2", "1:1:3")
	def["description"] = "Ground floor"
	def["id"] = "ignored"

	out, err := Store(ctx, database, config.DefaultConfig(), StoreInput{Definition: def})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if out.ID == "" || out.ID == "ignored" {
		t.Errorf("ID = %q, want a generated ULID", out.ID)
	}
	if out.Name != "Museum Tour" || out.MarkerCount != 2 || out.Replaced {
		t.Errorf("output = %+v", out)
	}

	fetched, err := Fetch(ctx, database, FetchInput{Name: "museum tour"})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if fetched.Description != "Ground floor" || len(fetched.Markers) != 2 {
		t.Errorf("fetched = %+v", fetched)
	}
	if fetched.Markers[0].Code != "1:1:2" || fetched.Markers[1].Title != "Marker 1:1:3" {
		t.Errorf("markers out of order: %+v", fetched.Markers)
	}
}

func TestStore_Unnamed(t *testing.T) {
	database := setupDB(t)

	first := mustStore(t, database, "", "1")
	second := mustStore(t, database, "", "1")
	if first == second {
		t.Error("unnamed experiences should get distinct IDs")
	}
}

func TestStore_NameCollision(t *testing.T) {
	database := setupDB(t)
	mustStore(t, database, "Trail", "1")

	_, err := Store(context.Background(), database, config.DefaultConfig(), StoreInput{Definition: definition("  TRAIL ", "2")})
	if !errors.Is(err, errors.ErrNameAlreadyExists) {
		t.Fatalf("err = %v, want NAME_ALREADY_EXISTS", err)
	}
}

func TestStore_ReplaceMode(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()

	id := mustStore(t, database, "Trail", "1", "2")
	before, err := Fetch(ctx, database, FetchInput{ID: id})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	out, err := Store(ctx, database, cfg, StoreInput{Definition: definition("trail", "9"), Mode: StoreModeReplace})
	if err != nil {
		t.Fatalf("Store replace failed: %v", err)
	}
	if out.ID != id || !out.Replaced {
		t.Errorf("output = %+v, want replace of %s", out, id)
	}

	after, err := Fetch(ctx, database, FetchInput{ID: id})
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(after.Markers) != 1 || after.Markers[0].Code != "9" {
		t.Errorf("markers = %+v, want only 9", after.Markers)
	}
	if after.CreatedAt != before.CreatedAt {
		t.Errorf("CreatedAt changed: %d -> %d", before.CreatedAt, after.CreatedAt)
	}

	// Replace of an unknown name inserts.
	out, err = Store(ctx, database, cfg, StoreInput{Definition: definition("New Trail", "1"), Mode: StoreModeReplace})
	if err != nil {
		t.Fatalf("Store replace (new) failed: %v", err)
	}
	if out.Replaced || out.ID == id {
		t.Errorf("output = %+v, want fresh insert", out)
	}
}

func TestStore_Validation(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxMarkersPerExperience = 2

	tests := []struct {
		name     string
		input    StoreInput
		wantCode errors.ErrorCode
	}{
		{"nil definition", StoreInput{}, errors.ErrInvalidRequest},
		{"bad mode", StoreInput{Definition: definition("x", "1"), Mode: "merge"}, errors.ErrInvalidRequest},
		{"replace without name", StoreInput{Definition: definition("", "1"), Mode: StoreModeReplace}, errors.ErrInvalidRequest},
		{"empty code", StoreInput{Definition: definition("x", "1", " ")}, errors.ErrInvalidMarker},
		{"duplicate code", StoreInput{Definition: definition("x", "1", "1")}, errors.ErrDuplicateCode},
		{"too many", StoreInput{Definition: definition("x", "1", "2", "3")}, errors.ErrTooManyMarkers},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			database := setupDB(t)
			_, err := Store(context.Background(), database, cfg, tc.input)
			if !errors.Is(err, tc.wantCode) {
				t.Fatalf("err = %v, want %s", err, tc.wantCode)
			}
		})
	}
}

func TestStore_MissingCodeKeyRejected(t *testing.T) {
	database := setupDB(t)
	def := map[string]any{
		"name":    "x",
		"markers": []any{map[string]any{"title": "No code"}},
	}

	_, err := Store(context.Background(), database, config.DefaultConfig(), StoreInput{Definition: def})
	if !errors.Is(err, errors.ErrInvalidMarker) {
		t.Fatalf("err = %v, want INVALID_MARKER", err)
	}
	ae, ok := err.(*errors.ArtcodesError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if got, _ := ae.Details["marker_indexes"].([]int); len(got) != 1 || got[0] != 0 {
		t.Errorf("marker_indexes = %v, want [0]", ae.Details["marker_indexes"])
	}
}

func TestStore_TrimsMarkerCodes(t *testing.T) {
	database := setupDB(t)
	ctx := context.Background()
	cfg := config.DefaultConfig()

	out, err := Store(ctx, database, cfg, StoreInput{Definition: map[string]any{
		"name":    "Padded",
		"markers": []any{map[string]any{"code": " 1:1:2 ", "title": "Door"}},
	}})
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}

	got, err := FetchMarker(ctx, database, MarkerInput{ID: out.ID, Code: "1:1:2"})
	if err != nil {
		t.Fatalf("FetchMarker failed: %v", err)
	}
	if got.Marker.Code != "1:1:2" || got.Marker.Title != "Door" {
		t.Errorf("marker = %+v", got.Marker)
	}

	put, err := PutMarker(ctx, database, cfg, PutMarkerInput{ID: out.ID, Marker: map[string]any{"code": "1:1:2", "title": "Door A"}})
	if err != nil {
		t.Fatalf("PutMarker failed: %v", err)
	}
	if put.Created {
		t.Error("PutMarker created a second marker for the same trimmed code")
	}

	settings, err := Settings(ctx, database, SettingsInput{ID: out.ID})
	if err != nil {
		t.Fatalf("Settings failed: %v", err)
	}
	if len(settings.ValidCodes) != 1 || settings.ValidCodes[0] != "1:1:2" {
		t.Errorf("ValidCodes = %q", settings.ValidCodes)
	}

	if _, err := RemoveMarker(ctx, database, MarkerInput{ID: out.ID, Code: " 1:1:2 "}); err != nil {
		t.Errorf("RemoveMarker failed: %v", err)
	}
}

func TestStore_PaddedDuplicateCodes(t *testing.T) {
	database := setupDB(t)
	_, err := Store(context.Background(), database, config.DefaultConfig(), StoreInput{Definition: map[string]any{
		"markers": []any{map[string]any{"code": "1:1"}, map[string]any{"code": " 1:1\t"}},
	}})
	if !errors.Is(err, errors.ErrDuplicateCode) {
		t.Fatalf("err = %v, want DUPLICATE_CODE", err)
	}
}
