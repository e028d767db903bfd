package capture

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/webm"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"

	"github.com/thesyncim/mediacapture"
)

// container muxes encoded media into a segmentBuffer. Timestamps are offsets
// from the start of the recording. Close writes any trailer and returns once
// every byte has reached the buffer.
type container interface {
	WriteVideo(frame *mediacapture.EncodedFrame, ts time.Duration) error
	WriteAudio(packet *mediacapture.EncodedAudio, ts time.Duration) error
	Close() error
}

// segmentBuffer accumulates container output between cuts.
type segmentBuffer struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newSegmentBuffer() *segmentBuffer {
	return &segmentBuffer{closed: make(chan struct{})}
}

func (b *segmentBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Close marks the muxer as finished. The bytes stay available to take.
func (b *segmentBuffer) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

// take returns and clears everything written since the last take.
func (b *segmentBuffer) take() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.buf.Len() == 0 {
		return nil
	}
	out := bytes.Clone(b.buf.Bytes())
	b.buf.Reset()
	return out
}

// Matroska track types.
const (
	trackTypeVideo = 1
	trackTypeAudio = 2
)

// webmContainer writes a live (unknown-size) WebM stream.
type webmContainer struct {
	buf   *segmentBuffer
	mu    sync.Mutex
	video webm.BlockWriteCloser
	audio webm.BlockWriteCloser
	all   []webm.BlockWriteCloser
}

type webmVideoTrack struct {
	Codec         mediacapture.VideoCodec
	Width, Height int
	FPS           int
}

type webmAudioTrack struct {
	SampleRate int
	Channels   int
}

func newWebMContainer(buf *segmentBuffer, video *webmVideoTrack, audio *webmAudioTrack) (*webmContainer, error) {
	var entries []webm.TrackEntry
	if video != nil {
		entry := webm.TrackEntry{
			Name:        "Video",
			TrackNumber: uint64(len(entries) + 1),
			TrackUID:    rand.Uint64(),
			CodecID:     video.Codec.MatroskaID(),
			TrackType:   trackTypeVideo,
			Video: &webm.Video{
				PixelWidth:  uint64(video.Width),
				PixelHeight: uint64(video.Height),
			},
		}
		if video.FPS > 0 {
			entry.DefaultDuration = uint64(time.Second / time.Duration(video.FPS))
		}
		entries = append(entries, entry)
	}
	if audio != nil {
		entries = append(entries, webm.TrackEntry{
			Name:         "Audio",
			TrackNumber:  uint64(len(entries) + 1),
			TrackUID:     rand.Uint64(),
			CodecID:      mediacapture.AudioCodecOpus.MatroskaID(),
			CodecPrivate: opusHead(audio.SampleRate, audio.Channels),
			TrackType:    trackTypeAudio,
			Audio: &webm.Audio{
				SamplingFrequency: float64(audio.SampleRate),
				Channels:          uint64(audio.Channels),
			},
		})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("webm container needs at least one track")
	}

	writers, err := webm.NewSimpleBlockWriter(buf, entries)
	if err != nil {
		return nil, fmt.Errorf("webm writer: %w", err)
	}

	c := &webmContainer{buf: buf, all: writers}
	i := 0
	if video != nil {
		c.video = writers[i]
		i++
	}
	if audio != nil {
		c.audio = writers[i]
	}
	return c, nil
}

func (c *webmContainer) WriteVideo(frame *mediacapture.EncodedFrame, ts time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.video == nil {
		return fmt.Errorf("webm container has no video track")
	}
	_, err := c.video.Write(frame.IsKeyframe(), ts.Milliseconds(), frame.Data)
	return err
}

func (c *webmContainer) WriteAudio(packet *mediacapture.EncodedAudio, ts time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.audio == nil {
		return fmt.Errorf("webm container has no audio track")
	}
	_, err := c.audio.Write(true, ts.Milliseconds(), packet.Data)
	return err
}

// Close closes every track writer; the muxer closes the buffer once the
// last track is done.
func (c *webmContainer) Close() error {
	c.mu.Lock()
	var firstErr error
	for _, w := range c.all {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	c.all = nil
	c.mu.Unlock()

	<-c.buf.closed
	return firstErr
}

// opusHead builds the OpusHead identification header used as CodecPrivate.
func opusHead(sampleRate, channels int) []byte {
	head := make([]byte, 19)
	copy(head, "OpusHead")
	head[8] = 1 // Version
	head[9] = byte(channels)
	binary.LittleEndian.PutUint16(head[10:], 312) // Pre-skip
	binary.LittleEndian.PutUint32(head[12:], uint32(sampleRate))
	return head
}

// oggContainer writes Ogg/Opus. Packets go through an Opus RTP payloader
// because oggwriter consumes RTP.
type oggContainer struct {
	buf       *segmentBuffer
	mu        sync.Mutex
	writer    *oggwriter.OggWriter
	payloader codecs.OpusPayloader
	sequencer rtp.Sequencer
	ssrc      uint32
}

func newOggContainer(buf *segmentBuffer, sampleRate, channels int) (*oggContainer, error) {
	w, err := oggwriter.NewWith(buf, uint32(sampleRate), uint16(channels))
	if err != nil {
		return nil, fmt.Errorf("ogg writer: %w", err)
	}
	return &oggContainer{
		buf:       buf,
		writer:    w,
		sequencer: rtp.NewRandomSequencer(),
		ssrc:      rand.Uint32(),
	}, nil
}

func (c *oggContainer) WriteVideo(*mediacapture.EncodedFrame, time.Duration) error {
	return fmt.Errorf("ogg container is audio only")
}

func (c *oggContainer) WriteAudio(packet *mediacapture.EncodedAudio, ts time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return fmt.Errorf("ogg container closed")
	}
	for _, payload := range c.payloader.Payload(1200, packet.Data) {
		err := c.writer.WriteRTP(&rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				PayloadType:    111,
				SequenceNumber: c.sequencer.NextSequenceNumber(),
				Timestamp:      uint32(ts * 48000 / time.Second),
				SSRC:           c.ssrc,
			},
			Payload: payload,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (c *oggContainer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writer == nil {
		return nil
	}
	err := c.writer.Close()
	c.writer = nil
	return err
}
