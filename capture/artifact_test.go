package capture

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thesyncim/mediacapture/internal/logging"
)

func TestAssemble(t *testing.T) {
	segs := []Segment{{Data: []byte("ab")}, {Data: []byte("cd")}, {Data: []byte("e")}}
	snaps := []Snapshot{{Index: 0}, {Index: 1}}
	started := testEpoch.Add(-90 * time.Second)

	art := assemble(ModeScreen.Descriptor(), segs, snaps, started, testEpoch, testEpoch, "id")

	if string(art.Payload) != "abcde" {
		t.Errorf("payload = %q", art.Payload)
	}
	if &art.Snapshots[0] != &snaps[0] {
		t.Error("snapshots were copied")
	}
	if art.Duration != 90*time.Second {
		t.Errorf("duration = %v", art.Duration)
	}
	if !strings.HasPrefix(art.Name, "Screen Recording ") {
		t.Errorf("name = %q", art.Name)
	}
	if art.Extension() != "webm" {
		t.Errorf("extension = %q", art.Extension())
	}
}

func TestArtifact_MarshalJSON(t *testing.T) {
	art := &Artifact{
		ID:        "0190",
		Name:      "Audio Recording 1714564800000",
		Kind:      KindMicOnly,
		MIMEType:  MIMEOgg,
		Payload:   make([]byte, 10),
		Timestamp: time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600)),
		Duration:  1500 * time.Millisecond,
	}
	raw, err := json.Marshal(art)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatal(err)
	}
	if got["timestamp"] != "2024-05-01T12:00:00Z" {
		t.Errorf("timestamp = %v", got["timestamp"])
	}
	if got["payloadSize"] != float64(10) || got["durationMs"] != float64(1500) {
		t.Errorf("sizes = %v/%v", got["payloadSize"], got["durationMs"])
	}
	if _, ok := got["sourceUrl"]; ok {
		t.Error("sourceUrl present for a recording")
	}
}

func TestImporter_Import(t *testing.T) {
	var imports, backs atomic.Int32
	var imported *Artifact
	im := &Importer{
		Delay: 10 * time.Millisecond,
		OnImport: func(a *Artifact) {
			imports.Add(1)
			imported = a
		},
		OnBack: func() { backs.Add(1) },
		Now:    func() time.Time { return testEpoch },
		NewID:  func() string { return "imp-1" },
		Logger: logging.Discard(),
	}

	const url = "https://example.com/video.mp4"
	art, err := im.Import(context.Background(), url)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if art.Kind != KindURLImport || !strings.Contains(art.Name, url) || art.SourceURL != url {
		t.Errorf("artifact = %+v", art)
	}
	if art.Payload != nil || len(art.Snapshots) != 0 || art.Extension() != "" {
		t.Error("url import carries a payload")
	}
	if imports.Load() != 1 || backs.Load() != 1 || imported != art {
		t.Errorf("onImport=%d onBack=%d", imports.Load(), backs.Load())
	}
}

func TestImporter_BlankURL(t *testing.T) {
	var calls atomic.Int32
	im := &Importer{
		Delay:    -1,
		OnImport: func(*Artifact) { calls.Add(1) },
		OnBack:   func() { calls.Add(1) },
		Logger:   logging.Discard(),
	}
	for _, url := range []string{"", "   ", "\t\n"} {
		art, err := im.Import(context.Background(), url)
		if art != nil || err != nil {
			t.Errorf("Import(%q) = %v, %v; want nil, nil", url, art, err)
		}
	}
	if calls.Load() != 0 {
		t.Errorf("callbacks ran %d times", calls.Load())
	}
}

func TestImporter_BusyAndCancel(t *testing.T) {
	im := &Importer{Delay: time.Hour, Logger: logging.Discard()}
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := im.Import(ctx, "https://example.com/a")
		errCh <- err
	}()
	waitFor(t, "import to start", im.Busy)

	if _, err := im.Import(context.Background(), "https://example.com/b"); !errors.Is(err, ErrImportBusy) {
		t.Errorf("concurrent Import = %v, want ErrImportBusy", err)
	}

	cancel()
	if err := <-errCh; !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Import = %v, want context.Canceled", err)
	}
	if im.Busy() {
		t.Error("importer still busy after cancel")
	}
}
