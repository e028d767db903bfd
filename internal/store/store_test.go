package store_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/thesyncim/mediacapture/capture"
	"github.com/thesyncim/mediacapture/internal/store"
)

func openStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "artifacts"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func recording(id string, at time.Time) *capture.Artifact {
	return &capture.Artifact{
		ID:        id,
		Name:      "Screen Recording 1714564800000",
		Kind:      capture.KindScreen,
		MIMEType:  capture.MIMEWebM,
		Payload:   []byte("webm-bytes"),
		Snapshots: []capture.Snapshot{{Index: 0, Image: []byte("png0")}, {Index: 1, Image: []byte("png1")}},
		Timestamp: at,
		Duration:  3 * time.Second,
	}
}

func TestSaveWritesFilesAndIndex(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	rec, err := s.Save(ctx, recording("a1", at))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	payload, err := os.ReadFile(rec.PayloadPath)
	if err != nil || string(payload) != "webm-bytes" {
		t.Fatalf("payload = %q, %v", payload, err)
	}
	if filepath.Base(rec.PayloadPath) != "payload.webm" {
		t.Errorf("payload path = %q", rec.PayloadPath)
	}
	snap, err := os.ReadFile(filepath.Join(rec.Dir, "snapshots", "0001.png"))
	if err != nil || string(snap) != "png1" {
		t.Errorf("snapshot 1 = %q, %v", snap, err)
	}

	meta, err := os.ReadFile(filepath.Join(rec.Dir, "artifact.json"))
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(meta, &doc); err != nil {
		t.Fatalf("artifact.json: %v", err)
	}
	if doc["id"] != "a1" || doc["snapshotCount"] != float64(2) {
		t.Errorf("artifact.json = %v", doc)
	}

	got, err := s.Get(ctx, "a1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != capture.KindScreen || got.PayloadSize != 10 || got.SnapshotCount != 2 ||
		got.Duration != 3*time.Second || !got.CreatedAt.Equal(at) || got.PayloadPath != rec.PayloadPath {
		t.Errorf("Get = %+v", got)
	}
}

func TestSaveURLImportHasNoPayload(t *testing.T) {
	s := openStore(t)
	art := &capture.Artifact{
		ID:        "u1",
		Name:      "URL Import - https://example.com/v.mp4",
		Kind:      capture.KindURLImport,
		SourceURL: "https://example.com/v.mp4",
		Timestamp: time.Now(),
	}
	rec, err := s.Save(context.Background(), art)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.PayloadPath != "" {
		t.Errorf("payload path = %q", rec.PayloadPath)
	}
	if _, err := os.Stat(filepath.Join(rec.Dir, "snapshots")); !os.IsNotExist(err) {
		t.Errorf("snapshots dir exists: %v", err)
	}

	got, err := s.Get(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.SourceURL != art.SourceURL || got.MIMEType != "" {
		t.Errorf("Get = %+v", got)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"old", "new", "mid"} {
		offset := []time.Duration{0, 2 * time.Minute, time.Minute}[i]
		if _, err := s.Save(ctx, recording(id, base.Add(offset))); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	var ids []string
	for _, r := range list {
		ids = append(ids, r.ID)
	}
	if len(ids) != 3 || ids[0] != "new" || ids[1] != "mid" || ids[2] != "old" {
		t.Errorf("List order = %v", ids)
	}
}

func TestSaveDuplicateIDKeepsFirst(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	first, err := s.Save(ctx, recording("dup", time.Now()))
	if err != nil {
		t.Fatal(err)
	}

	second := recording("dup", time.Now())
	second.Payload = []byte("other")
	if _, err := s.Save(ctx, second); !errors.Is(err, store.ErrExists) {
		t.Fatalf("second Save = %v, want ErrExists", err)
	}

	if _, err := s.Get(ctx, "dup"); err != nil {
		t.Fatalf("Get after duplicate: %v", err)
	}
	if _, err := os.Stat(filepath.Join(first.Dir, "artifact.json")); err != nil {
		t.Errorf("first artifact.json removed: %v", err)
	}
	payload, err := os.ReadFile(first.PayloadPath)
	if err != nil || string(payload) != "webm-bytes" {
		t.Errorf("first payload = %q, %v", payload, err)
	}
}

func TestSaveLeavesForeignDirectory(t *testing.T) {
	s := openStore(t)
	dir := filepath.Join(s.Dir(), "stray")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	keep := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := s.Save(context.Background(), recording("stray", time.Now())); !errors.Is(err, store.ErrExists) {
		t.Fatalf("Save = %v, want ErrExists", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("existing file removed: %v", err)
	}
	if _, err := s.Get(context.Background(), "stray"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get = %v, want ErrNotFound", err)
	}
}

func TestSaveRejectsPathIDs(t *testing.T) {
	s := openStore(t)
	for _, id := range []string{"../escape", "a/b", ".."} {
		if _, err := s.Save(context.Background(), recording(id, time.Now())); err == nil {
			t.Errorf("Save(%q) succeeded", id)
		}
	}
}

func TestListOrdersSubSecondTimes(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 5, 0, time.UTC)
	if _, err := s.Save(ctx, recording("whole", base)); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(ctx, recording("half", base.Add(500*time.Millisecond))); err != nil {
		t.Fatal(err)
	}

	list, err := s.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "half" || list[1].ID != "whole" {
		t.Fatalf("List order = %+v", list)
	}
	if !list[0].CreatedAt.Equal(base.Add(500 * time.Millisecond)) {
		t.Errorf("CreatedAt = %v", list[0].CreatedAt)
	}
}

func TestGetMissing(t *testing.T) {
	s := openStore(t)
	if _, err := s.Get(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestSaveConcurrent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Save(ctx, recording(string(rune('a'+i)), time.Now()))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("Save: %v", err)
		}
	}
	list, err := s.List(ctx)
	if err != nil || len(list) != 8 {
		t.Fatalf("List = %d, %v", len(list), err)
	}
}

func TestReopenKeepsIndex(t *testing.T) {
	dir := t.TempDir()
	s, err := store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Save(context.Background(), recording("keep", time.Now())); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	s, err = store.Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if _, err := s.Get(context.Background(), "keep"); err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
}
