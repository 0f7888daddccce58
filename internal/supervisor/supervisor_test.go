// ABOUTME: Tests for the supervisor's stream lifecycle and decode-timeout handling
// ABOUTME: Exercises OnStreamStart/OnStreamEnd/OnAudioChunk against fake collaborators
package supervisor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/sendspin/sendspin-go/internal/connection"
	"github.com/sendspin/sendspin-go/internal/session"
	"github.com/sendspin/sendspin-go/internal/wire"
)

type fakeSink struct {
	mu        sync.Mutex
	started   bool
	startArgs [3]int
	played    [][]byte
	cleared   int
	stopped   bool
}

func (f *fakeSink) Start(sampleRate, channels, bitDepth int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = true
	f.startArgs = [3]int{sampleRate, channels, bitDepth}
	return nil
}
func (f *fakeSink) Play(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.played = append(f.played, pcm)
	return nil
}
func (f *fakeSink) ClearBuffer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared++
}
func (f *fakeSink) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	f.started = false
	return nil
}
func (f *fakeSink) IsActive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started
}

type fakeDecoder struct {
	closed bool
}

func (d *fakeDecoder) Decode(payload []byte) ([]byte, error) { return []byte{0xAB, 0xCD}, nil }
func (d *fakeDecoder) Close() error                           { d.closed = true; return nil }

type slowDecoder struct {
	delay time.Duration
}

func (d *slowDecoder) Decode(payload []byte) ([]byte, error) {
	time.Sleep(d.delay)
	return []byte{0xFF, 0xFF}, nil
}
func (d *slowDecoder) Close() error { return nil }

type fakeObserver struct {
	NoopObserver
	mu           sync.Mutex
	streamStarts []wire.StreamStartPlayer
	streamEnds   int
	artworkPaths []string
}

func (f *fakeObserver) OnArtworkReady(path string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.artworkPaths = append(f.artworkPaths, path)
}

func (f *fakeObserver) artworkCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.artworkPaths)
}

func (f *fakeObserver) OnStreamStarted(format wire.StreamStartPlayer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamStarts = append(f.streamStarts, format)
}
func (f *fakeObserver) OnStreamEnded() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.streamEnds++
}

func newTestSupervisor() (*Supervisor, *fakeSink, *fakeObserver) {
	sink := &fakeSink{}
	observer := &fakeObserver{}
	decoderCalls := 0
	s := New(Params{
		Identity: session.Identity{ClientID: "c1", Name: "test"},
		BufferMs: 100,
		Volume:   80,
		Sink:     sink,
		Observer: observer,
		DecoderFactory: func(codec string, sampleRate, channels, bitDepth int, codecHeader string) (Decoder, error) {
			decoderCalls++
			return &fakeDecoder{}, nil
		},
	})
	return s, sink, observer
}

func TestSetVolumeUpdatesSessionStateEvenWithoutConnection(t *testing.T) {
	s, _, _ := newTestSupervisor()

	err := s.SetVolume(30)
	if err != connection.ErrNotConnected {
		t.Fatalf("expected ErrNotConnected (no socket yet), got %v", err)
	}
	if s.session.Volume() != 30 {
		t.Fatalf("expected volume updated locally despite send failure, got %d", s.session.Volume())
	}
}

func TestOnStreamStartCreatesDecoderStartsSinkAndNotifiesObserver(t *testing.T) {
	s, sink, observer := newTestSupervisor()

	format := wire.StreamStartPlayer{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16}
	s.OnStreamStart(format)

	if s.decoder == nil {
		t.Fatal("expected decoder to be created")
	}
	if !sink.IsActive() {
		t.Fatal("expected sink started")
	}
	if sink.startArgs != [3]int{48000, 2, 16} {
		t.Errorf("expected sink.Start called with stream format, got %v", sink.startArgs)
	}
	if len(observer.streamStarts) != 1 {
		t.Fatalf("expected 1 observer notification, got %d", len(observer.streamStarts))
	}
}

func TestOnStreamEndClosesDecoderAndStopsSink(t *testing.T) {
	s, sink, observer := newTestSupervisor()
	s.OnStreamStart(wire.StreamStartPlayer{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16})

	dec := s.decoder.(*fakeDecoder)
	s.OnStreamEnd()

	if s.decoder != nil {
		t.Error("expected decoder cleared")
	}
	if !dec.closed {
		t.Error("expected decoder closed")
	}
	if !sink.stopped {
		t.Error("expected sink stopped")
	}
	if observer.streamEnds != 1 {
		t.Errorf("expected 1 OnStreamEnded, got %d", observer.streamEnds)
	}
}

func TestOnStreamClearFlushesSchedulerAndSink(t *testing.T) {
	s, sink, _ := newTestSupervisor()
	s.OnStreamStart(wire.StreamStartPlayer{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16})

	s.OnAudioChunk(1, []byte{0x01})
	if s.sched.QueueLen() != 1 {
		t.Fatalf("expected 1 queued buffer before clear, got %d", s.sched.QueueLen())
	}

	s.OnStreamClear()

	if s.sched.QueueLen() != 0 {
		t.Errorf("expected queue flushed after stream/clear, got %d", s.sched.QueueLen())
	}
	if sink.cleared != 1 {
		t.Errorf("expected sink.ClearBuffer called once, got %d", sink.cleared)
	}
}

func TestOnAudioChunkDropsChunkWhenDecoderExceedsTimeout(t *testing.T) {
	s, _, _ := newTestSupervisor()
	s.OnStreamStart(wire.StreamStartPlayer{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16})

	old := decodeTimeout
	decodeTimeout = 20 * time.Millisecond
	defer func() { decodeTimeout = old }()
	s.decoder = &slowDecoder{delay: 200 * time.Millisecond}

	s.OnAudioChunk(1, []byte{0x01})

	if s.sched.QueueLen() != 0 {
		t.Fatalf("expected timed-out chunk to be dropped, got queue len %d", s.sched.QueueLen())
	}
}

func TestOnStreamStartRebuffersEvenAfterPreStreamWatchdogForceExit(t *testing.T) {
	s, _, _ := newTestSupervisor()

	// Simulate the watchdog forcing buffering off before the stream ever
	// starts, e.g. because discovery+connect+handshake ran past
	// bufferingMaxWait with no chunks enqueued yet.
	s.sched.ForceExitBuffering()
	if s.sched.Buffering() {
		t.Fatal("test setup: expected buffering forced off")
	}

	s.OnStreamStart(wire.StreamStartPlayer{Codec: "opus", SampleRate: 48000, Channels: 2, BitDepth: 16})

	if !s.sched.Buffering() {
		t.Fatal("expected OnStreamStart to re-enter buffering for the new stream")
	}
	if s.sched.QueueLen() != 0 {
		t.Fatalf("expected a fresh stream to start with an empty queue, got %d", s.sched.QueueLen())
	}
}

func TestOnAudioChunkWithNoDecoderIsDroppedSafely(t *testing.T) {
	s, _, _ := newTestSupervisor()
	s.OnAudioChunk(1, []byte{0x01}) // no stream started, no decoder
	if s.sched.QueueLen() != 0 {
		t.Errorf("expected no enqueue without a decoder, got %d", s.sched.QueueLen())
	}
}

func TestOnMetadataDownloadsArtworkOnce(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("cover art"))
	}))
	defer server.Close()

	s, _, observer := newTestSupervisor()
	if s.art == nil {
		t.Skip("artwork cache unavailable in this environment")
	}
	defer s.art.Cleanup()

	title := "Track"
	url := server.URL
	s.OnMetadata(wire.MetadataState{Title: &title, ArtworkURL: &url})
	s.OnMetadata(wire.MetadataState{Title: &title, ArtworkURL: &url})

	deadline := time.Now().Add(2 * time.Second)
	for observer.artworkCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if observer.artworkCount() != 1 {
		t.Fatalf("expected 1 artwork notification for a repeated URL, got %d", observer.artworkCount())
	}
	if requests != 1 {
		t.Errorf("expected 1 HTTP request for the duplicate metadata update, got %d", requests)
	}
}

func TestHandleTextForwardsToSessionAndUpdatesVolume(t *testing.T) {
	s, _, _ := newTestSupervisor()

	payload, _ := json.Marshal(wire.ServerCommand{Player: &wire.PlayerCommand{Command: "volume", Volume: 55}})
	s.HandleText(wire.TypeServerCommand, payload)

	if s.session.Volume() != 55 {
		t.Fatalf("expected volume 55 after forwarded server/command, got %d", s.session.Volume())
	}
}
