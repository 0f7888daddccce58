// ABOUTME: Sendspin session state machine
// ABOUTME: Handshake, clock sync, stream lifecycle, and server command dispatch
// Package session implements the Sendspin session state machine:
// handshake, initial and continuous clock sync, stream lifecycle, and
// server command handling. It knows nothing about decoding audio or
// scheduling playback — those are wired by the supervisor in response
// to the events this package emits.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/sendspin/sendspin-go/internal/clockfilter"
	"github.com/sendspin/sendspin-go/internal/wire"
)

// State is one node of the session lifecycle described in the spec:
// Disconnected -> Connecting -> HandshakePending -> SyncBootstrapping ->
// Streaming <-> Idle -> Closing -> Disconnected.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshakePending
	StateSyncBootstrapping
	StateIdle
	StateStreaming
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshakePending:
		return "handshake_pending"
	case StateSyncBootstrapping:
		return "sync_bootstrapping"
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	default:
		return "unknown"
	}
}

const (
	pendingSyncMaxAge = 2 * time.Second

	initialSyncRounds    = 5
	initialSyncSpacing   = 100 * time.Millisecond
	initialSyncRoundWait = 500 * time.Millisecond

	continuousSyncInterval = 1 * time.Second
)

// nowFunc is overridable in tests.
var nowFunc = func() int64 { return time.Now().UnixMicro() }

// Sender is the subset of the connection manager a session needs: one
// serialized outbound text send.
type Sender interface {
	Send(msgType string, payload any) error
}

// Events is implemented by the supervisor to react to protocol-level
// transitions that need collaborators (decoder, scheduler, sink) the
// session itself does not own.
type Events interface {
	OnHandshakeComplete()
	OnSyncBootstrapped()
	OnStreamStart(format wire.StreamStartPlayer)
	OnStreamClear()
	OnStreamEnd()
	OnAudioChunk(serverTimestampUS int64, payload []byte)
	OnMetadata(meta wire.MetadataState)
	OnPlaybackStateChange(state string)
}

// Identity is the fixed player identity advertised in client/hello.
type Identity struct {
	ClientID   string
	Name       string
	DeviceInfo wire.DeviceInfo
}

// Session drives the Sendspin protocol state machine for one
// connection's lifetime. It owns the clock filter, the pending sync
// table, the stream format descriptor, the playback-state mirror, and
// the metadata record.
type Session struct {
	identity Identity
	sender   Sender
	events   Events
	clock    *clockfilter.Filter

	mu            sync.Mutex
	state         State
	volume        int
	muted         bool
	pending       map[int64]int64 // client_transmitted -> local send time
	format        *wire.StreamStartPlayer
	playbackState string
	metadata      wire.MetadataState

	syncReply chan struct{}
}

// New creates a session in the Disconnected state.
func New(identity Identity, sender Sender, events Events, clock *clockfilter.Filter, initialVolume int, initialMuted bool) *Session {
	return &Session{
		identity:      identity,
		sender:        sender,
		events:        events,
		clock:         clock,
		state:         StateDisconnected,
		volume:        initialVolume,
		muted:         initialMuted,
		pending:       make(map[int64]int64),
		playbackState: "idle",
		syncReply:     make(chan struct{}, 1),
	}
}

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Start transitions Connecting -> HandshakePending and immediately
// sends client/hello.
func (s *Session) Start() error {
	s.setState(StateHandshakePending)
	return s.sender.Send(wire.TypeClientHello, s.buildHello())
}

func (s *Session) buildHello() wire.ClientHello {
	playerSupport := wire.PlayerV1Support{
		SupportedFormats:  wire.SupportedFormats,
		BufferCapacity:    wire.PlayerBufferCapacity,
		SupportedCommands: wire.SupportedCommands,
	}
	artworkSupport := wire.ArtworkV1Support{
		SupportPictureFormats: []string{"jpeg", "png", "webp"},
		MediaWidth:            600,
		MediaHeight:           600,
	}
	visualizerSupport := wire.VisualizerV1Support{
		BufferCapacity: wire.PlayerBufferCapacity,
	}

	return wire.ClientHello{
		ClientID:            s.identity.ClientID,
		Name:                s.identity.Name,
		Version:             1,
		SupportedRoles:      wire.SupportedRoles,
		DeviceInfo:          &s.identity.DeviceInfo,
		PlayerV1Support:     &playerSupport,
		ArtworkV1Support:    &artworkSupport,
		VisualizerV1Support: &visualizerSupport,

		PlayerSupport: &wire.LegacyPlayerSupport{
			SupportFormats:     wire.SupportedFormats,
			BufferCapacity:     wire.PlayerBufferCapacity,
			SupportedCommands:  wire.SupportedCommands,
			SupportCodecs:      []string{"pcm", "opus"},
			SupportChannels:    []int{2, 1},
			SupportSampleRates: []int{192000, 176400, 96000, 88200, 48000, 44100},
			SupportBitDepth:    []int{24, 16},
		},
		MetadataSupport: &wire.LegacyMetadataSupport{
			SupportPictureFormats: []string{"jpeg", "png", "webp"},
			MediaWidth:            600,
			MediaHeight:           600,
		},
		ArtworkSupport: &wire.LegacyMetadataSupport{
			SupportPictureFormats: []string{"jpeg", "png", "webp"},
			MediaWidth:            600,
			MediaHeight:           600,
		},
		VisualizerSupport: &wire.LegacyVisualizerSupport{
			BufferCapacity: wire.PlayerBufferCapacity,
		},
	}
}

// HandleText dispatches one decoded text message. Unknown types are
// logged and ignored (ErrUnknownMessageType is not fatal).
func (s *Session) HandleText(msgType string, payload json.RawMessage) {
	switch msgType {
	case wire.TypeServerHello:
		s.handleServerHello()
	case wire.TypeServerTime:
		s.handleServerTime(payload)
	case wire.TypeServerCommand:
		s.handleServerCommand(payload)
	case wire.TypeStreamStart:
		s.handleStreamStart(payload)
	case wire.TypeStreamClear:
		s.handleStreamClear()
	case wire.TypeStreamEnd:
		s.handleStreamEnd()
	case wire.TypeServerState:
		s.handleServerState(payload)
	case wire.TypeGroupUpdate:
		s.handleGroupUpdate(payload)
	case wire.TypeSessionUpdate:
		s.handleSessionUpdate(payload)
	default:
		log.Printf("session: unknown message type %q", msgType)
	}
}

// HandleBinary dispatches one decoded binary frame. Malformed frames
// and unrecognized kinds are logged and dropped without affecting the
// connection.
func (s *Session) HandleBinary(data []byte) {
	chunk, kind, err := wire.DecodeBinaryFrame(data)
	if err != nil {
		log.Printf("session: malformed binary frame: %v", err)
		return
	}
	switch kind {
	case wire.KindAudioChunk:
		s.events.OnAudioChunk(int64(chunk.ServerTimestampUS), chunk.Payload)
	case wire.KindAuxBinary:
		log.Printf("session: auxiliary binary frame received, %d bytes (discarded)", len(data))
	default:
		log.Printf("session: unknown binary frame kind %#x (discarded)", kind)
	}
}

func (s *Session) handleServerHello() {
	s.setState(StateSyncBootstrapping)

	s.mu.Lock()
	state := wire.PlayerState{State: "synchronized", Volume: s.volume, Muted: s.muted}
	s.mu.Unlock()

	if err := s.sender.Send(wire.TypeClientState, wire.ClientState{Player: &state}); err != nil {
		log.Printf("session: failed to send initial client/state: %v", err)
	}
	s.events.OnHandshakeComplete()
}

func (s *Session) handleServerTime(payload json.RawMessage) {
	var resp wire.ServerTime
	if err := wire.DecodePayload(payload, &resp); err != nil {
		log.Printf("session: %v", err)
		return
	}
	t4 := nowFunc()

	s.mu.Lock()
	t1, ok := s.pending[resp.ClientTransmitted]
	if ok {
		delete(s.pending, resp.ClientTransmitted)
	}
	s.mu.Unlock()

	if !ok {
		// StaleSyncResponse: the client_transmitted key is not in the
		// pending table (already matched, expired, or never sent).
		return
	}

	s.clock.SubmitSample(t1, resp.ServerReceived, resp.ServerTransmitted, t4)

	select {
	case s.syncReply <- struct{}{}:
	default:
	}
}

func (s *Session) handleServerCommand(payload json.RawMessage) {
	var cmd wire.ServerCommand
	if err := wire.DecodePayload(payload, &cmd); err != nil {
		log.Printf("session: %v", err)
		return
	}
	if cmd.Player == nil {
		return
	}

	switch cmd.Player.Command {
	case "volume":
		s.mu.Lock()
		s.volume = cmd.Player.Volume
		s.mu.Unlock()
		s.echoState()
	case "mute":
		s.mu.Lock()
		s.muted = cmd.Player.Mute
		s.mu.Unlock()
		s.echoState()
	default:
		log.Printf("session: unknown player command %q", cmd.Player.Command)
	}
}

func (s *Session) echoState() {
	s.mu.Lock()
	state := wire.PlayerState{State: "synchronized", Volume: s.volume, Muted: s.muted}
	s.mu.Unlock()

	if err := s.sender.Send(wire.TypeClientState, wire.ClientState{Player: &state}); err != nil {
		log.Printf("session: failed to echo client/state: %v", err)
	}
}

func (s *Session) handleStreamStart(payload json.RawMessage) {
	var start wire.StreamStart
	if err := wire.DecodePayload(payload, &start); err != nil {
		log.Printf("session: %v", err)
		return
	}
	if start.Player == nil {
		log.Printf("session: stream/start with no player format")
		return
	}

	s.mu.Lock()
	s.format = start.Player
	s.mu.Unlock()

	s.setState(StateStreaming)
	s.events.OnStreamStart(*start.Player)
}

func (s *Session) handleStreamClear() {
	s.events.OnStreamClear()
}

func (s *Session) handleStreamEnd() {
	s.mu.Lock()
	s.format = nil
	s.mu.Unlock()

	s.setState(StateIdle)
	s.events.OnStreamEnd()
}

func (s *Session) handleServerState(payload json.RawMessage) {
	var state wire.ServerState
	if err := wire.DecodePayload(payload, &state); err != nil {
		log.Printf("session: %v", err)
		return
	}
	if state.Metadata != nil {
		s.mu.Lock()
		s.metadata = *state.Metadata
		s.mu.Unlock()
		s.events.OnMetadata(*state.Metadata)
	}
	if state.Controller != nil && state.Controller.PlaybackState != "" {
		s.setPlaybackState(state.Controller.PlaybackState)
	}
}

func (s *Session) handleGroupUpdate(payload json.RawMessage) {
	var update wire.GroupUpdate
	if err := wire.DecodePayload(payload, &update); err != nil {
		log.Printf("session: %v", err)
		return
	}
	if update.PlaybackState != "" {
		s.setPlaybackState(update.PlaybackState)
	}
}

func (s *Session) handleSessionUpdate(payload json.RawMessage) {
	var update wire.SessionUpdate
	if err := wire.DecodePayload(payload, &update); err != nil {
		log.Printf("session: %v", err)
		return
	}
	if update.PlaybackState != "" {
		s.setPlaybackState(update.PlaybackState)
	}
}

func (s *Session) setPlaybackState(state string) {
	s.mu.Lock()
	s.playbackState = state
	s.mu.Unlock()
	s.events.OnPlaybackStateChange(state)
}

// Format returns the current stream format descriptor, or nil if no
// stream is active.
func (s *Session) Format() *wire.StreamStartPlayer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// PlaybackState returns the current playback-state mirror.
func (s *Session) PlaybackState() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playbackState
}

// Metadata returns the current metadata record.
func (s *Session) Metadata() wire.MetadataState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata
}

// Volume and Muted return the locally mirrored player state.
func (s *Session) Volume() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Session) Muted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.muted
}

// SetVolume is host-initiated (not server-initiated): it updates local
// state and echoes client/state, the same as a server/command would.
func (s *Session) SetVolume(volume int) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
	return s.sendEchoOrErr()
}

// Mute is host-initiated, mirroring SetVolume.
func (s *Session) Mute(muted bool) error {
	s.mu.Lock()
	s.muted = muted
	s.mu.Unlock()
	return s.sendEchoOrErr()
}

func (s *Session) sendEchoOrErr() error {
	s.mu.Lock()
	state := wire.PlayerState{State: "synchronized", Volume: s.volume, Muted: s.muted}
	s.mu.Unlock()
	return s.sender.Send(wire.TypeClientState, wire.ClientState{Player: &state})
}

// sendTimeSync records a pending entry and sends client/time for t1.
func (s *Session) sendTimeSync() {
	t1 := nowFunc()
	s.mu.Lock()
	s.pending[t1] = t1
	s.mu.Unlock()

	if err := s.sender.Send(wire.TypeClientTime, wire.ClientTime{ClientTransmitted: t1}); err != nil {
		log.Printf("session: failed to send client/time: %v", err)
	}
}

// drainStalePending removes pending entries older than 2s.
func (s *Session) drainStalePending() {
	cutoff := nowFunc() - int64(pendingSyncMaxAge/time.Microsecond)
	s.mu.Lock()
	for k, sentAt := range s.pending {
		if sentAt < cutoff {
			delete(s.pending, k)
		}
	}
	s.mu.Unlock()
}

// RunInitialSync sends five client/time bursts spaced 100ms apart, each
// waiting up to 500ms for a matching response, then transitions
// SyncBootstrapping -> Idle regardless of how many rounds succeeded.
func (s *Session) RunInitialSync(ctx context.Context) {
	for i := 0; i < initialSyncRounds; i++ {
		s.sendTimeSync()

		select {
		case <-s.syncReply:
		case <-time.After(initialSyncRoundWait):
		case <-ctx.Done():
			return
		}

		select {
		case <-time.After(initialSyncSpacing):
		case <-ctx.Done():
			return
		}
	}

	s.setState(StateIdle)
	s.events.OnSyncBootstrapped()
}

// RunSyncLoop runs the continuous 1s sync cadence until ctx is
// cancelled: drain stale pending entries, then send a client/time. It
// runs for the lifetime of Idle and Streaming alike.
func (s *Session) RunSyncLoop(ctx context.Context) {
	ticker := time.NewTicker(continuousSyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.drainStalePending()
			s.sendTimeSync()
		}
	}
}

// Close transitions to Closing. The actual goodbye send and socket
// close are performed by the supervisor via the connection manager.
func (s *Session) Close() {
	s.setState(StateClosing)
}

// String is a convenience for log lines.
func (s *Session) String() string {
	return fmt.Sprintf("session{state=%s}", s.State())
}
