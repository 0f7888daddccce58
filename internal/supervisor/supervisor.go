// ABOUTME: Supervisor wires session, scheduler, decoder, and sink together
// ABOUTME: Owns goroutine lifecycle for one player connection end to end
// Package supervisor wires the session state machine to its
// collaborators: the jitter scheduler, a decoder per active stream, a
// playback sink, and the connection manager. It is the only piece of
// the player that owns goroutine lifecycle end to end.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sendspin/sendspin-go/internal/artwork"
	"github.com/sendspin/sendspin-go/internal/clockfilter"
	"github.com/sendspin/sendspin-go/internal/connection"
	"github.com/sendspin/sendspin-go/internal/scheduler"
	"github.com/sendspin/sendspin-go/internal/session"
	"github.com/sendspin/sendspin-go/internal/wire"
)

// Decoder decodes one stream's codec-specific chunks to interleaved PCM.
// internal/decode.Decoder satisfies this.
type Decoder interface {
	Decode(payload []byte) ([]byte, error)
	Close() error
}

// Sink receives decoded PCM in play order. internal/sink.Sink
// satisfies this.
type Sink interface {
	Start(sampleRate, channels, bitDepth int) error
	Play(pcm []byte) error
	ClearBuffer()
	Stop() error
	IsActive() bool
}

// DecoderFactory constructs a Decoder for one stream's format.
type DecoderFactory func(codec string, sampleRate, channels, bitDepth int, codecHeader string) (Decoder, error)

// decodeTimeout bounds how long a single chunk's decode may run before
// it is dropped rather than stalling the inbound reader. Overridable
// in tests.
var decodeTimeout = 1 * time.Second

// ErrDecodeTimeout is returned (and logged, never propagated past
// OnAudioChunk) when a decoder does not return within decodeTimeout.
var ErrDecodeTimeout = errors.New("supervisor: decode timeout")

// Observer receives player-level notifications. The host application
// implements whichever hooks it cares about; an embedded NoopObserver
// makes every hook optional.
type Observer interface {
	OnConnectionStateChanged(connected bool)
	OnStreamStarted(format wire.StreamStartPlayer)
	OnStreamEnded()
	OnMetadataChanged(meta wire.MetadataState)
	OnPlaybackStateChanged(state string)
	OnStatsUpdated(Stats)

	// OnArtworkReady fires once metadata.artwork_url has been resolved
	// to a local file path, suitable for a host UI to read directly.
	OnArtworkReady(localPath string)
}

// NoopObserver implements Observer with no-ops, so callers can embed it
// and override only the hooks they need.
type NoopObserver struct{}

func (NoopObserver) OnConnectionStateChanged(bool)          {}
func (NoopObserver) OnStreamStarted(wire.StreamStartPlayer) {}
func (NoopObserver) OnStreamEnded()                         {}
func (NoopObserver) OnMetadataChanged(wire.MetadataState)   {}
func (NoopObserver) OnPlaybackStateChanged(string)          {}
func (NoopObserver) OnStatsUpdated(Stats)                   {}
func (NoopObserver) OnArtworkReady(string)                  {}

// Stats mirrors the scheduler's counters plus clock quality, for
// observer consumption.
type Stats struct {
	Received    int64
	Played      int64
	Dropped     int64
	QueueLen    int
	ClockQuality clockfilter.Quality
	RTTUS        int64
}

// Params configures a Supervisor.
type Params struct {
	Identity session.Identity
	BufferMs int
	Volume   int
	Muted    bool

	DecoderFactory DecoderFactory
	Sink           Sink
	Observer       Observer
}

// Supervisor owns the Clock Filter, the Scheduler, the active
// decoder, and the session state machine for one connection's
// lifetime.
type Supervisor struct {
	params  Params
	conn    *connection.Manager
	clock   *clockfilter.Filter
	sched   *scheduler.Scheduler
	session *session.Session

	decoder Decoder
	art     *artwork.Downloader

	mu             sync.Mutex
	lastArtworkURL string

	group  *errgroup.Group
	cancel context.CancelFunc
}

// New creates a Supervisor and the connection manager it drives.
func New(params Params) *Supervisor {
	if params.Observer == nil {
		params.Observer = NoopObserver{}
	}

	s := &Supervisor{params: params}
	s.clock = clockfilter.New()
	s.sched = scheduler.New(s.clock, scheduler.Params{BufferMs: params.BufferMs})
	s.conn = connection.New(s)
	s.session = session.New(params.Identity, s.conn, s, s.clock, params.Volume, params.Muted)

	if art, err := artwork.NewDownloader(); err != nil {
		log.Printf("supervisor: artwork cache unavailable: %v", err)
	} else {
		s.art = art
	}

	s.conn.OnOpen(func() {
		if err := s.session.Start(); err != nil {
			log.Printf("supervisor: failed to start session: %v", err)
		}
	})
	s.conn.OnClose(func(err error) {
		s.params.Observer.OnConnectionStateChanged(false)
		if s.sched != nil {
			s.sched.Stop()
		}
		s.closeDecoder()
	})

	return s
}

// Run connects (blocking on the first attempt so startup errors
// surface immediately) and then drives the reconnect loop, sync loop,
// and scheduler until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context, resolve connection.AddressResolver) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	addr, err := resolve(runCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("supervisor: resolve address: %w", err)
	}
	if err := s.conn.Connect(runCtx, addr); err != nil {
		cancel()
		return fmt.Errorf("supervisor: initial connect: %w", err)
	}
	s.params.Observer.OnConnectionStateChanged(true)

	g, gctx := errgroup.WithContext(runCtx)
	s.group = g

	g.Go(func() error {
		s.conn.Run(gctx, resolve)
		return nil
	})
	g.Go(func() error {
		s.session.RunSyncLoop(gctx)
		return nil
	})

	s.sched.Start(runCtx, s.release)

	go func() {
		s.session.RunInitialSync(runCtx)
	}()

	return g.Wait()
}

// Stop shuts down cleanly: goodbye, scheduler, decoder, socket, and
// waits for every background goroutine Run started.
func (s *Supervisor) Stop() {
	s.session.Close()
	s.conn.Goodbye("client shutdown")
	s.sched.Stop()
	s.closeDecoder()
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
	s.conn.Stop()
	if s.params.Sink != nil && s.params.Sink.IsActive() {
		if err := s.params.Sink.Stop(); err != nil {
			log.Printf("supervisor: sink stop: %v", err)
		}
	}
}

// SetVolume and Mute are host-initiated actions, passed straight
// through to the session.
func (s *Supervisor) SetVolume(volume int) error { return s.session.SetVolume(volume) }
func (s *Supervisor) Mute(muted bool) error      { return s.session.Mute(muted) }

// VolumeState returns the current volume and mute mirror, for a sink
// that needs to apply software volume (e.g. OtoSink).
func (s *Supervisor) VolumeState() (int, bool) {
	return s.session.Volume(), s.session.Muted()
}

// Stats returns a snapshot combining scheduler and clock filter state.
func (s *Supervisor) Stats() Stats {
	schedStats := s.sched.Stats()
	clockStats := s.clock.Snapshot()
	return Stats{
		Received:     schedStats.Received,
		Played:       schedStats.Played,
		Dropped:      schedStats.Dropped,
		QueueLen:     s.sched.QueueLen(),
		ClockQuality: clockStats.Quality,
		RTTUS:        clockStats.RTTUS,
	}
}

// HandleText and HandleBinary satisfy connection.Handler by forwarding
// to the session.
func (s *Supervisor) HandleText(msgType string, payload []byte) {
	s.session.HandleText(msgType, payload)
}

func (s *Supervisor) HandleBinary(data []byte) {
	s.session.HandleBinary(data)
}

// release is the scheduler's Release callback: it hands decoded PCM to
// the sink, applying no further processing (volume/mute is the sink's
// job).
func (s *Supervisor) release(pcm []byte) {
	if s.params.Sink == nil {
		return
	}
	if err := s.params.Sink.Play(pcm); err != nil {
		log.Printf("supervisor: sink play: %v", err)
	}
}

func (s *Supervisor) closeDecoder() {
	if s.decoder != nil {
		if err := s.decoder.Close(); err != nil {
			log.Printf("supervisor: decoder close: %v", err)
		}
		s.decoder = nil
	}
}

// session.Events implementation.

func (s *Supervisor) OnHandshakeComplete() {
	log.Printf("supervisor: handshake complete")
}

func (s *Supervisor) OnSyncBootstrapped() {
	log.Printf("supervisor: initial clock sync complete")
}

func (s *Supervisor) OnStreamStart(format wire.StreamStartPlayer) {
	s.closeDecoder()

	// Re-stamp the jitter buffer's startup window here, not just in New:
	// otherwise a watchdog tick during discovery/handshake could force
	// buffering off before the stream ever delivers a chunk.
	s.sched.Clear()

	if s.params.DecoderFactory != nil {
		dec, err := s.params.DecoderFactory(format.Codec, format.SampleRate, format.Channels, format.BitDepth, format.CodecHeader)
		if err != nil {
			log.Printf("supervisor: create decoder for codec %q: %v", format.Codec, err)
		} else {
			s.decoder = dec
		}
	}

	if s.params.Sink != nil {
		if err := s.params.Sink.Start(format.SampleRate, format.Channels, format.BitDepth); err != nil {
			log.Printf("supervisor: sink start: %v", err)
		}
	}

	s.params.Observer.OnStreamStarted(format)
}

func (s *Supervisor) OnStreamClear() {
	s.sched.Clear()
	if s.params.Sink != nil {
		s.params.Sink.ClearBuffer()
	}
}

func (s *Supervisor) OnStreamEnd() {
	s.sched.Clear()
	s.closeDecoder()
	if s.params.Sink != nil && s.params.Sink.IsActive() {
		if err := s.params.Sink.Stop(); err != nil {
			log.Printf("supervisor: sink stop: %v", err)
		}
	}
	s.params.Observer.OnStreamEnded()
}

// decodeResult carries one decoder.Decode call's outcome across the
// goroutine boundary used to bound it by decodeTimeout.
type decodeResult struct {
	pcm []byte
	err error
}

func (s *Supervisor) OnAudioChunk(serverTimestampUS int64, payload []byte) {
	decoder := s.decoder
	if decoder == nil {
		log.Printf("supervisor: audio chunk received with no active decoder, dropping")
		return
	}

	done := make(chan decodeResult, 1)
	go func() {
		pcm, err := decoder.Decode(payload)
		done <- decodeResult{pcm: pcm, err: err}
	}()

	var result decodeResult
	select {
	case result = <-done:
	case <-time.After(decodeTimeout):
		log.Printf("supervisor: decode chunk: %v", ErrDecodeTimeout)
		return
	}

	if result.err != nil {
		log.Printf("supervisor: decode chunk: %v", result.err)
		return
	}
	if err := s.sched.Enqueue(serverTimestampUS, result.pcm); err != nil {
		log.Printf("supervisor: enqueue chunk: %v", err)
	}
}

func (s *Supervisor) OnMetadata(meta wire.MetadataState) {
	s.params.Observer.OnMetadataChanged(meta)

	if s.art == nil || meta.ArtworkURL == nil || *meta.ArtworkURL == "" {
		return
	}

	url := *meta.ArtworkURL
	s.mu.Lock()
	unchanged := url == s.lastArtworkURL
	s.lastArtworkURL = url
	s.mu.Unlock()
	if unchanged {
		return
	}

	go func() {
		path, err := s.art.Download(url)
		if err != nil {
			log.Printf("supervisor: artwork download: %v", err)
			return
		}
		s.params.Observer.OnArtworkReady(path)
	}()
}

func (s *Supervisor) OnPlaybackStateChange(state string) {
	s.params.Observer.OnPlaybackStateChanged(state)
}
