package capture

import (
	"encoding/json"
	"fmt"
	"time"
)

// Artifact is the immutable result of a capture session or URL import.
type Artifact struct {
	ID        string
	Name      string // "<Mode label> <unix ms>"
	Kind      string // One of the Kind constants
	MIMEType  string // Payload container; empty for URL imports
	Payload   []byte // Concatenated segments; nil for URL imports
	Snapshots []Snapshot
	Timestamp time.Time // Creation time
	Duration  time.Duration
	SourceURL string // URL imports only
}

// assemble builds the artifact for a stopped session. Segments are
// concatenated in order; snapshots are shared, not copied.
func assemble(d Descriptor, segments []Segment, snapshots []Snapshot, startedAt, stoppedAt, now time.Time, id string) *Artifact {
	size := 0
	for _, s := range segments {
		size += len(s.Data)
	}
	payload := make([]byte, 0, size)
	for _, s := range segments {
		payload = append(payload, s.Data...)
	}

	art := &Artifact{
		ID:        id,
		Name:      artifactName(d.Label, now),
		Kind:      d.Kind,
		MIMEType:  d.MIMEType,
		Payload:   payload,
		Snapshots: snapshots,
		Timestamp: now,
	}
	if !startedAt.IsZero() && stoppedAt.After(startedAt) {
		art.Duration = stoppedAt.Sub(startedAt)
	}
	return art
}

func artifactName(label string, t time.Time) string {
	return fmt.Sprintf("%s %d", label, t.UnixMilli())
}

// Extension returns the payload file extension, or "" when there is no
// payload.
func (a *Artifact) Extension() string {
	switch a.MIMEType {
	case MIMEWebM:
		return "webm"
	case MIMEOgg:
		return "ogg"
	}
	return ""
}

type artifactJSON struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Kind          string `json:"kind"`
	MIMEType      string `json:"mimeType,omitempty"`
	Timestamp     string `json:"timestamp"`
	DurationMs    int64  `json:"durationMs,omitempty"`
	PayloadSize   int    `json:"payloadSize"`
	SnapshotCount int    `json:"snapshotCount"`
	SourceURL     string `json:"sourceUrl,omitempty"`
}

// MarshalJSON encodes the artifact's metadata. Payload and snapshot bytes
// are left out; Timestamp is RFC 3339 in UTC.
func (a *Artifact) MarshalJSON() ([]byte, error) {
	return json.Marshal(artifactJSON{
		ID:            a.ID,
		Name:          a.Name,
		Kind:          a.Kind,
		MIMEType:      a.MIMEType,
		Timestamp:     a.Timestamp.UTC().Format(time.RFC3339Nano),
		DurationMs:    a.Duration.Milliseconds(),
		PayloadSize:   len(a.Payload),
		SnapshotCount: len(a.Snapshots),
		SourceURL:     a.SourceURL,
	})
}
