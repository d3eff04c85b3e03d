package db

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/artcodes/registry/internal/errors"
	"github.com/artcodes/registry/internal/experience"
	"github.com/artcodes/registry/internal/marker"
)

// newTestExperience creates an experience with default values for testing.
func newTestExperience(id, name string, markers ...marker.Marker) *experience.Experience {
	now := time.Now().Unix()
	if markers == nil {
		markers = []marker.Marker{}
	}
	return &experience.Experience{
		ID:        id,
		NameRaw:   name,
		NameNorm:  experience.Normalize(name),
		Markers:   markers,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertAndGetByID(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := newTestExperience("01EXP", "Museum Trail",
		marker.Marker{Code: "1:1:2", Title: "Entrance", Description: "Start *here*", ShowDetail: true},
		marker.Marker{Code: "1:1:3", Action: "https://example.com", ResetHistoryOnOpen: true, ChangeToExperienceWithIDOnOpen: "01NEXT"},
	)
	e.Description = "Codes around the gallery"

	if err := Insert(ctx, db, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := GetByID(ctx, db, "01EXP", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}

	if got.NameRaw != "Museum Trail" || got.NameNorm != "museum trail" {
		t.Errorf("name = %q/%q", got.NameRaw, got.NameNorm)
	}
	if got.Description != e.Description {
		t.Errorf("Description = %q, want %q", got.Description, e.Description)
	}
	if len(got.Markers) != 2 {
		t.Fatalf("len(Markers) = %d, want 2", len(got.Markers))
	}
	if got.Markers[0] != e.Markers[0] || got.Markers[1] != e.Markers[1] {
		t.Errorf("Markers = %+v, want %+v", got.Markers, e.Markers)
	}
	if got.DeletedAt != nil {
		t.Errorf("DeletedAt = %v, want nil", *got.DeletedAt)
	}
}

func TestGetByID_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetByID(context.Background(), db, "missing", false)
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetByID error = %v, want NOT_FOUND", err)
	}
}

func TestInsert_NameCollision(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01A", "Trail")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	err := Insert(ctx, db, newTestExperience("01B", "  TRAIL "))
	if err != ErrUniqueConstraint {
		t.Errorf("Insert error = %v, want ErrUniqueConstraint", err)
	}
}

func TestInsert_UnnamedExperiencesDoNotCollide(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"01A", "01B"} {
		if err := Insert(ctx, db, newTestExperience(id, "")); err != nil {
			t.Fatalf("Insert(%s) failed: %v", id, err)
		}
	}
}

func TestInsert_DuplicateMarkerCodeRollsBack(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := newTestExperience("01A", "Dupes", marker.Marker{Code: "1:1"}, marker.Marker{Code: "1:1"})
	err := Insert(ctx, db, e)
	if !errors.Is(err, errors.ErrDuplicateCode) {
		t.Fatalf("Insert error = %v, want DUPLICATE_CODE", err)
	}

	if _, err := GetByID(ctx, db, "01A", true); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("experience persisted after rollback: %v", err)
	}
}

func TestGetByName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01A", "Trail")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, "01A"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	if err := Insert(ctx, db, newTestExperience("01B", "Trail")); err != nil {
		t.Fatalf("Insert after soft delete failed: %v", err)
	}

	got, err := GetByName(ctx, db, "trail", true)
	if err != nil {
		t.Fatalf("GetByName failed: %v", err)
	}
	if got.ID != "01B" {
		t.Errorf("GetByName(includeDeleted) = %s, want active 01B", got.ID)
	}
}

func TestReplace(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := newTestExperience("01A", "Trail", marker.Marker{Code: "1:1"}, marker.Marker{Code: "1:2"})
	if err := Insert(ctx, db, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	e.Description = "updated"
	e.Markers = []marker.Marker{{Code: "2:2", Title: "Only"}}
	if err := Replace(ctx, db, e); err != nil {
		t.Fatalf("Replace failed: %v", err)
	}

	got, err := GetByID(ctx, db, "01A", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.Description != "updated" || len(got.Markers) != 1 || got.Markers[0].Code != "2:2" {
		t.Errorf("after Replace = %+v", got)
	}
}

func TestReplace_NotFound(t *testing.T) {
	db := openTestDB(t)

	err := Replace(context.Background(), db, newTestExperience("nope", "x"))
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("Replace error = %v, want NOT_FOUND", err)
	}
}

func TestListAndPagination(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, id := range []string{"01A", "01B", "01C"} {
		e := newTestExperience(id, id, marker.Marker{Code: "1"})
		e.UpdatedAt = int64(100 + i)
		if err := Insert(ctx, db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	items, total, err := List(ctx, db, 2, 0, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 3 || len(items) != 2 {
		t.Fatalf("List = %d items, total %d; want 2, 3", len(items), total)
	}
	if items[0].ID != "01C" || items[0].MarkerCount != 1 {
		t.Errorf("items[0] = %+v, want 01C with 1 marker", items[0])
	}

	if err := SoftDelete(ctx, db, "01C"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}
	_, total, err = List(ctx, db, 10, 0, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if total != 2 {
		t.Errorf("total after delete = %d, want 2", total)
	}
}

func TestSearch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := newTestExperience("01A", "Museum Trail")
	b := newTestExperience("01B", "Garden", marker.Marker{Code: "1", Title: "Old museum gate"})
	c := newTestExperience("01C", "100% Fun")
	for _, e := range []*experience.Experience{a, b, c} {
		if err := Insert(ctx, db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	items, total, err := Search(ctx, db, "MUSEUM", 10, 0, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 2 || len(items) != 2 {
		t.Errorf("Search(MUSEUM) = %d results, want 2", total)
	}

	items, _, err = Search(ctx, db, "0%", 10, 0, false)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(items) != 1 || items[0].ID != "01C" {
		t.Errorf("Search(0%%) = %+v, want only 01C (literal %%)", items)
	}
}

func TestSearch_NonASCIICase(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := newTestExperience("01A", "École Tour")
	b := newTestExperience("01B", "Garden", marker.Marker{Code: "1", Title: "ΣΤΟΆ gate"})
	for _, e := range []*experience.Experience{a, b} {
		if err := Insert(ctx, db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	tests := []struct {
		query string
		want  string
	}{
		{"école", "01A"},
		{"ÉCOLE", "01A"},
		{"École", "01A"},
		{"στοά", "01B"},
	}
	for _, tc := range tests {
		items, total, err := Search(ctx, db, tc.query, 10, 0, false)
		if err != nil {
			t.Fatalf("Search(%q) failed: %v", tc.query, err)
		}
		if total != 1 || len(items) != 1 || items[0].ID != tc.want {
			t.Errorf("Search(%q) = %d results %+v, want only %s", tc.query, total, items, tc.want)
		}
	}
}

func TestSoftDelete_NotFound(t *testing.T) {
	db := openTestDB(t)

	if err := SoftDelete(context.Background(), db, "missing"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("SoftDelete error = %v, want NOT_FOUND", err)
	}
}

func TestPurge(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, id := range []string{"01A", "01B"} {
		if err := Insert(ctx, db, newTestExperience(id, id, marker.Marker{Code: "1"})); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := SoftDelete(ctx, db, "01A"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	old := time.Now().Add(-24 * time.Hour).Unix()
	n, err := Purge(ctx, db, &old)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Purge(older than a day) = %d, want 0", n)
	}

	n, err = Purge(ctx, db, nil)
	if err != nil {
		t.Fatalf("Purge failed: %v", err)
	}
	if n != 1 {
		t.Errorf("Purge = %d, want 1", n)
	}
	if count, _ := countMarkers(ctx, db, "01A"); count != 0 {
		t.Errorf("markers left after purge = %d", count)
	}
	if _, err := GetByID(ctx, db, "01B", false); err != nil {
		t.Errorf("active experience purged: %v", err)
	}
}

func TestUpsertMarker(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	e := newTestExperience("01A", "Trail", marker.Marker{Code: "1:1", Title: "first"}, marker.Marker{Code: "1:2"})
	if err := Insert(ctx, db, e); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	created, err := UpsertMarker(ctx, db, "01A", marker.Marker{Code: "1:1", Title: "renamed", ShowDetail: true}, 0)
	if err != nil {
		t.Fatalf("UpsertMarker failed: %v", err)
	}
	if created {
		t.Error("created = true for existing code")
	}

	created, err = UpsertMarker(ctx, db, "01A", marker.Marker{Code: "3:3"}, 0)
	if err != nil {
		t.Fatalf("UpsertMarker failed: %v", err)
	}
	if !created {
		t.Error("created = false for new code")
	}

	got, err := GetByID(ctx, db, "01A", false)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if len(got.Markers) != 3 {
		t.Fatalf("len(Markers) = %d, want 3", len(got.Markers))
	}
	if got.Markers[0].Title != "renamed" || !got.Markers[0].ShowDetail {
		t.Errorf("Markers[0] = %+v, want updated in place", got.Markers[0])
	}
	if got.Markers[2].Code != "3:3" {
		t.Errorf("Markers[2].Code = %q, want appended 3:3", got.Markers[2].Code)
	}
}

func TestUpsertMarker_DeletedExperience(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01A", "Trail")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if err := SoftDelete(ctx, db, "01A"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	if _, err := UpsertMarker(ctx, db, "01A", marker.Marker{Code: "1"}, 0); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("UpsertMarker error = %v, want NOT_FOUND", err)
	}
}

func TestUpsertMarker_Limit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01A", "Trail", marker.Marker{Code: "1"}, marker.Marker{Code: "2"})); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if _, err := UpsertMarker(ctx, db, "01A", marker.Marker{Code: "3"}, 2); !errors.Is(err, errors.ErrTooManyMarkers) {
		t.Errorf("new code over limit: err = %v, want TOO_MANY_MARKERS", err)
	}
	if created, err := UpsertMarker(ctx, db, "01A", marker.Marker{Code: "2", Title: "edited"}, 2); err != nil || created {
		t.Errorf("existing code at limit: created = %v, err = %v", created, err)
	}
	if n, _ := countMarkers(ctx, db, "01A"); n != 2 {
		t.Errorf("markers = %d, want 2", n)
	}
}

func TestUpsertMarker_ConcurrentLimit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01A", "Trail")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	const limit = 3
	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := UpsertMarker(ctx, db, "01A", marker.Marker{Code: fmt.Sprintf("%d:1", i)}, limit)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		switch {
		case err == nil:
			ok++
		case !errors.Is(err, errors.ErrTooManyMarkers):
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != limit {
		t.Errorf("successful puts = %d, want %d", ok, limit)
	}
	if n, _ := countMarkers(ctx, db, "01A"); n != limit {
		t.Errorf("markers = %d, want %d", n, limit)
	}
}

func TestDeleteMarker(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01A", "Trail", marker.Marker{Code: "1:1"})); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	if err := DeleteMarker(ctx, db, "01A", "1:1"); err != nil {
		t.Fatalf("DeleteMarker failed: %v", err)
	}
	if err := DeleteMarker(ctx, db, "01A", "1:1"); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("second DeleteMarker error = %v, want NOT_FOUND", err)
	}
}

func TestListForExport(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	a := newTestExperience("01A", "A", marker.Marker{Code: "1"})
	a.CreatedAt = 1
	b := newTestExperience("01B", "B", marker.Marker{Code: "2"}, marker.Marker{Code: "3"})
	b.CreatedAt = 2
	for _, e := range []*experience.Experience{b, a} {
		if err := Insert(ctx, db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}
	if err := SoftDelete(ctx, db, "01B"); err != nil {
		t.Fatalf("SoftDelete failed: %v", err)
	}

	active, err := ListForExport(ctx, db, false)
	if err != nil {
		t.Fatalf("ListForExport failed: %v", err)
	}
	if len(active) != 1 || active[0].ID != "01A" {
		t.Errorf("ListForExport(active) = %d items", len(active))
	}

	all, err := ListForExport(ctx, db, true)
	if err != nil {
		t.Fatalf("ListForExport failed: %v", err)
	}
	if len(all) != 2 || all[0].ID != "01A" || len(all[1].Markers) != 2 {
		t.Errorf("ListForExport(all) unexpected: %+v", all)
	}
}

func TestEscapeLike(t *testing.T) {
	if got := escapeLike(`50%_off\`); got != `50\%\_off\\` {
		t.Errorf("escapeLike = %q", got)
	}
}

func TestInsertAll_Atomic(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01X", "Taken")); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	err := InsertAll(ctx, db, []*experience.Experience{
		newTestExperience("01A", "Fresh"),
		newTestExperience("01B", "taken"),
	})
	if err != ErrUniqueConstraint {
		t.Fatalf("InsertAll error = %v, want ErrUniqueConstraint", err)
	}
	if _, err := GetByID(ctx, db, "01A", true); !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("01A persisted despite failed batch: %v", err)
	}
}

func TestOverwrite_KeepsDeletedAt(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := Insert(ctx, db, newTestExperience("01A", "Trail", marker.Marker{Code: "1"})); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	deleted := int64(42)
	e := newTestExperience("01A", "Trail v2", marker.Marker{Code: "9"})
	e.DeletedAt = &deleted
	if err := Overwrite(ctx, db, e); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}

	got, err := GetByID(ctx, db, "01A", true)
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if got.DeletedAt == nil || *got.DeletedAt != 42 || got.NameRaw != "Trail v2" || got.Markers[0].Code != "9" {
		t.Errorf("after Overwrite = %+v", got)
	}
}

func TestFindUniqueName(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for _, e := range []*experience.Experience{newTestExperience("01A", "trail"), newTestExperience("01B", "trail-2")} {
		if err := Insert(ctx, db, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	name, err := FindUniqueName(ctx, db, "trail")
	if err != nil {
		t.Fatalf("FindUniqueName failed: %v", err)
	}
	if name != "trail-3" {
		t.Errorf("FindUniqueName = %q, want trail-3", name)
	}
}
