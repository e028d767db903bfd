package capture

import (
	"context"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/thesyncim/mediacapture/internal/logging"
)

// DefaultImportDelay is the simulated processing time of a URL import.
const DefaultImportDelay = 2 * time.Second

// Importer turns a URL into a url-import artifact. The URL is not fetched
// or validated beyond being non-blank.
type Importer struct {
	Delay    time.Duration // Default 2s; negative means none
	OnImport func(*Artifact)
	OnBack   func()

	Now    func() time.Time
	NewID  func() string
	Logger *slog.Logger

	busy atomic.Bool
}

// Import waits out the processing delay, then builds the artifact, passes it
// to OnImport and calls OnBack. A blank URL returns (nil, nil) with no
// callbacks. Import returns ErrImportBusy while another import is running
// and ctx.Err() if ctx ends during the delay.
func (im *Importer) Import(ctx context.Context, url string) (*Artifact, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil, nil
	}
	if !im.busy.CompareAndSwap(false, true) {
		return nil, ErrImportBusy
	}
	defer im.busy.Store(false)

	log := im.Logger
	if log == nil {
		log = logging.L("import")
	}

	delay := im.Delay
	if delay == 0 {
		delay = DefaultImportDelay
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			log.Info("import cancelled", "url", url)
			return nil, ctx.Err()
		}
	}

	now := time.Now
	if im.Now != nil {
		now = im.Now
	}
	newID := newArtifactID
	if im.NewID != nil {
		newID = im.NewID
	}

	art := &Artifact{
		ID:        newID(),
		Name:      "URL Import - " + url,
		Kind:      KindURLImport,
		Timestamp: now(),
		SourceURL: url,
	}
	log.Info("url imported", "id", art.ID, "url", url)

	if im.OnImport != nil {
		im.OnImport(art)
	}
	if im.OnBack != nil {
		im.OnBack()
	}
	return art, nil
}

// Busy reports whether an import is running.
func (im *Importer) Busy() bool { return im.busy.Load() }
