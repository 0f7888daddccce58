// ABOUTME: Local audio playback sink backed by oto
// ABOUTME: Keeps one persistent player over an io.Pipe for the life of a stream
package sink

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// OtoSink plays PCM directly on a local audio device via oto. Intended
// for standalone/CLI use without a host media player to hand a stream
// to. It keeps one persistent player reading from an io.Pipe for the
// lifetime of a stream, rather than spinning up a new player per
// chunk.
type OtoSink struct {
	mu         sync.Mutex
	ctx        *oto.Context
	player     *oto.Player
	pipeReader *io.PipeReader
	pipeWriter *io.PipeWriter
	active     bool

	volume func() (int, bool) // returns (0-100, muted)
}

// NewOtoSink creates an OtoSink. volumeFunc is polled on every Play
// call to apply the player's current volume/mute state in software,
// since oto has no hardware volume control.
func NewOtoSink(volumeFunc func() (int, bool)) *OtoSink {
	if volumeFunc == nil {
		volumeFunc = func() (int, bool) { return 100, false }
	}
	return &OtoSink{volume: volumeFunc}
}

func (s *OtoSink) Start(sampleRate, channels, bitDepth int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bitDepth != 16 {
		log.Printf("sink: oto only supports 16-bit output, ignoring requested bitDepth=%d", bitDepth)
	}

	if s.ctx != nil {
		s.closeLocked()
	}

	op := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("sink: create oto context: %w", err)
	}
	<-ready

	s.ctx = ctx
	s.pipeReader, s.pipeWriter = io.Pipe()
	s.player = ctx.NewPlayer(s.pipeReader)
	s.player.Play()
	s.active = true
	log.Printf("sink: oto output started: %dHz, %d channels", sampleRate, channels)
	return nil
}

// Play applies the current volume/mute state and writes the result
// into the persistent player's pipe. It blocks until the pipe read
// side has consumed the bytes, matching the teacher's blocking-write
// streaming pattern.
func (s *OtoSink) Play(pcm []byte) error {
	s.mu.Lock()
	w := s.pipeWriter
	s.mu.Unlock()

	if w == nil {
		return fmt.Errorf("sink: oto not started")
	}

	volume, muted := s.volume()
	adjusted := applyVolume(pcm, volume, muted)

	if _, err := w.Write(adjusted); err != nil {
		return fmt.Errorf("sink: pipe write failed: %w", err)
	}
	return nil
}

func (s *OtoSink) ClearBuffer() {
	// The persistent player has no addressable queue to flush, so this
	// is a no-op; playback resumes with whatever the scheduler releases
	// once it has rebuffered.
}

func (s *OtoSink) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
	return nil
}

func (s *OtoSink) closeLocked() {
	if s.pipeWriter != nil {
		s.pipeWriter.Close()
		s.pipeWriter = nil
	}
	if s.player != nil {
		s.player.Close()
		s.player = nil
	}
	if s.pipeReader != nil {
		s.pipeReader.Close()
		s.pipeReader = nil
	}
	if s.ctx != nil {
		s.ctx.Suspend()
		s.ctx = nil
	}
	s.active = false
}

func (s *OtoSink) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// applyVolume returns PCM16LE samples scaled by volume/100, or silence
// when muted, in a new buffer; at full volume and unmuted it returns pcm
// itself unchanged.
func applyVolume(pcm []byte, volume int, muted bool) []byte {
	multiplier := float64(volume) / 100.0
	if muted {
		multiplier = 0
	}
	if multiplier == 1.0 {
		return pcm
	}

	out := make([]byte, len(pcm))
	for i := 0; i+2 <= len(pcm); i += 2 {
		sample := int16(binary.LittleEndian.Uint16(pcm[i : i+2]))
		scaled := int16(float64(sample) * multiplier)
		binary.LittleEndian.PutUint16(out[i:i+2], uint16(scaled))
	}
	return out
}
