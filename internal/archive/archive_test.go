package archive

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/haneul/mindsketch/pkg/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStoreWithPath(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("NewStoreWithPath() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleResult(id string) *models.AnalysisResult {
	return &models.AnalysisResult{
		ID:      id,
		Date:    time.Date(2026, 8, 28, 10, 30, 0, 0, time.UTC),
		Summary: "안정적이고 개방적인 성향",
		PersonalityTraits: []models.PersonalityTrait{
			{Trait: "개방성", Score: 72, Description: "새로운 경험을 즐깁니다"},
			{Trait: "안정성", Score: 58, Description: "대체로 차분합니다"},
		},
		EmotionalState: "평온",
		Advice:         "지금처럼 자신만의 속도를 유지하세요",
		KeyInsights:    []string{"집의 창문이 크고 열려 있음", "나무 뿌리가 튼튼함"},
	}
}

func TestStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	want := sampleResult("1700000000001")
	if err := store.Save(ctx, want); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := store.Get(ctx, want.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	if got.ID != want.ID || got.Summary != want.Summary ||
		got.EmotionalState != want.EmotionalState || got.Advice != want.Advice {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
	if !got.Date.Equal(want.Date) {
		t.Errorf("Date = %v, want %v", got.Date, want.Date)
	}
	if len(got.PersonalityTraits) != 2 || got.PersonalityTraits[0].Score != 72 {
		t.Errorf("PersonalityTraits = %+v", got.PersonalityTraits)
	}
	if len(got.KeyInsights) != 2 || got.KeyInsights[1] != "나무 뿌리가 튼튼함" {
		t.Errorf("KeyInsights = %v", got.KeyInsights)
	}
}

func TestStore_SaveRejectsMissingID(t *testing.T) {
	store := newTestStore(t)
	if err := store.Save(context.Background(), &models.AnalysisResult{}); err == nil {
		t.Error("Save() error = nil, want missing-id failure")
	}
	if err := store.Save(context.Background(), nil); err == nil {
		t.Error("Save(nil) error = nil, want failure")
	}
}

func TestStore_GetNotFound(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_ListAllMostRecentFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := store.Save(ctx, sampleResult(fmt.Sprintf("id-%d", i))); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	results, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("ListAll() returned %d results, want 3", len(results))
	}
	for i, wantID := range []string{"id-2", "id-1", "id-0"} {
		if results[i].ID != wantID {
			t.Errorf("results[%d].ID = %q, want %q", i, results[i].ID, wantID)
		}
	}
}

func TestStore_CapacityEviction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < Capacity+1; i++ {
		if err := store.Save(ctx, sampleResult(fmt.Sprintf("id-%02d", i))); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	results, err := store.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll() error = %v", err)
	}
	if len(results) != Capacity {
		t.Fatalf("ListAll() returned %d results, want %d", len(results), Capacity)
	}

	// The oldest entry is gone; the newest survives.
	if _, err := store.Get(ctx, "id-00"); !errors.Is(err, ErrNotFound) {
		t.Errorf("oldest entry Get() error = %v, want ErrNotFound", err)
	}
	if results[0].ID != fmt.Sprintf("id-%02d", Capacity) {
		t.Errorf("newest entry = %q, want id-%02d", results[0].ID, Capacity)
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	res := sampleResult("1700000000002")
	if err := store.Save(ctx, res); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if err := store.Delete(ctx, res.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Get(ctx, res.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	// Deleting again is a no-op.
	if err := store.Delete(ctx, res.ID); err != nil {
		t.Errorf("second Delete() error = %v, want nil", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()

	store, err := NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("NewStoreWithPath() error = %v", err)
	}
	if err := store.Save(ctx, sampleResult("persist-1")); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	store.Close()

	reopened, err := NewStoreWithPath(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "persist-1")
	if err != nil {
		t.Fatalf("Get() after reopen error = %v", err)
	}
	if got.Summary != "안정적이고 개방적인 성향" {
		t.Errorf("Summary = %q", got.Summary)
	}
}
