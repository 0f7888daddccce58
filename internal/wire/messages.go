// ABOUTME: Sendspin JSON wire message types
// ABOUTME: Typed payloads for every message the session state machine handles
// Package wire defines the Sendspin protocol's wire messages: the JSON
// text envelope and its typed payloads, and the binary audio-frame
// layout.
package wire

// Message is the top-level envelope for every text frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// DeviceInfo identifies the player hardware/software to the server.
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// AudioFormat describes one PCM or Opus format the player can accept.
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// PlayerV1Support is the versioned player@v1_support capability block.
type PlayerV1Support struct {
	SupportedFormats  []AudioFormat `json:"supported_formats"`
	BufferCapacity    int           `json:"buffer_capacity"`
	SupportedCommands []string      `json:"supported_commands"`
}

// ArtworkV1Support is the versioned artwork@v1_support capability block.
type ArtworkV1Support struct {
	SupportPictureFormats []string `json:"support_picture_formats"`
	MediaWidth            int      `json:"media_width"`
	MediaHeight           int      `json:"media_height"`
}

// VisualizerV1Support is the versioned visualizer@v1_support capability
// block.
type VisualizerV1Support struct {
	BufferCapacity int `json:"buffer_capacity"`
}

// LegacyPlayerSupport duplicates PlayerV1Support under the unversioned
// key some server implementations still expect.
type LegacyPlayerSupport struct {
	SupportFormats     []AudioFormat `json:"supported_formats"`
	BufferCapacity     int           `json:"buffer_capacity"`
	SupportedCommands  []string      `json:"supported_commands"`
	SupportCodecs      []string      `json:"support_codecs"`
	SupportChannels    []int         `json:"support_channels"`
	SupportSampleRates []int         `json:"support_sample_rates"`
	SupportBitDepth    []int         `json:"support_bit_depth"`
}

// LegacyMetadataSupport duplicates artwork/metadata support under the
// unversioned key.
type LegacyMetadataSupport struct {
	SupportPictureFormats []string `json:"support_picture_formats"`
	MediaWidth            int      `json:"media_width"`
	MediaHeight           int      `json:"media_height"`
}

// LegacyVisualizerSupport duplicates VisualizerV1Support under the
// unversioned key.
type LegacyVisualizerSupport struct {
	BufferCapacity int `json:"buffer_capacity"`
}

// ClientHello is sent once, immediately after the transport opens.
type ClientHello struct {
	ClientID       string      `json:"client_id"`
	Name           string      `json:"name"`
	Version        int         `json:"version"`
	SupportedRoles []string    `json:"supported_roles"`
	DeviceInfo     *DeviceInfo `json:"device_info,omitempty"`

	PlayerV1Support     *PlayerV1Support     `json:"player@v1_support,omitempty"`
	ArtworkV1Support    *ArtworkV1Support    `json:"artwork@v1_support,omitempty"`
	VisualizerV1Support *VisualizerV1Support `json:"visualizer@v1_support,omitempty"`

	// Legacy unversioned duplicates, carried for server implementations
	// that predate the versioned role namespace.
	PlayerSupport     *LegacyPlayerSupport     `json:"player_support,omitempty"`
	MetadataSupport   *LegacyMetadataSupport   `json:"metadata_support,omitempty"`
	ArtworkSupport    *LegacyMetadataSupport   `json:"artwork_support,omitempty"`
	VisualizerSupport *LegacyVisualizerSupport `json:"visualizer_support,omitempty"`
}

// ServerHello answers ClientHello.
type ServerHello struct {
	ServerID    string   `json:"server_id"`
	Name        string   `json:"name"`
	Version     int      `json:"version"`
	ActiveRoles []string `json:"active_roles"`
}

// ClientTime requests a sync sample.
type ClientTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
}

// ServerTime answers ClientTime.
type ServerTime struct {
	ClientTransmitted int64 `json:"client_transmitted"`
	ServerReceived    int64 `json:"server_received"`
	ServerTransmitted int64 `json:"server_transmitted"`
}

// PlayerState is the player-role object nested in client/state.
type PlayerState struct {
	State  string `json:"state"`
	Volume int    `json:"volume,omitempty"`
	Muted  bool   `json:"muted,omitempty"`
}

// ClientState is sent whenever the player's reported state changes.
type ClientState struct {
	Player *PlayerState `json:"player,omitempty"`
}

// PlayerCommand is the player-role object nested in server/command.
type PlayerCommand struct {
	Command string `json:"command"`
	Volume  int    `json:"volume,omitempty"`
	Mute    bool   `json:"mute,omitempty"`
}

// ServerCommand carries a control command from the server.
type ServerCommand struct {
	Player *PlayerCommand `json:"player,omitempty"`
}

// StreamStartPlayer describes the format of the stream about to begin.
type StreamStartPlayer struct {
	Codec       string `json:"codec"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	BitDepth    int    `json:"bit_depth"`
	CodecHeader string `json:"codec_header,omitempty"`
}

// StreamStart announces a new audio stream.
type StreamStart struct {
	Player *StreamStartPlayer `json:"player,omitempty"`
}

// StreamEnd terminates the current stream.
type StreamEnd struct{}

// StreamClear instructs the player to flush its jitter buffer (seek).
type StreamClear struct{}

// ProgressState is nested in MetadataState.
type ProgressState struct {
	TrackProgress int `json:"track_progress"`
	TrackDuration int `json:"track_duration"`
	PlaybackSpeed int `json:"playback_speed"`
}

// MetadataState carries track metadata; any field may be nil/omitted to
// mean "unknown/unchanged".
type MetadataState struct {
	Title       *string        `json:"title,omitempty"`
	Artist      *string        `json:"artist,omitempty"`
	AlbumArtist *string        `json:"album_artist,omitempty"`
	Album       *string        `json:"album,omitempty"`
	ArtworkURL  *string        `json:"artwork_url,omitempty"`
	Year        *int           `json:"year,omitempty"`
	Track       *int           `json:"track,omitempty"`
	Progress    *ProgressState `json:"progress,omitempty"`
	Repeat      *string        `json:"repeat,omitempty"`
	Shuffle     *bool          `json:"shuffle,omitempty"`
}

// ControllerState carries the group/session transport state.
type ControllerState struct {
	PlaybackState string `json:"playback_state,omitempty"`
}

// ServerState carries metadata and/or controller updates.
type ServerState struct {
	Metadata   *MetadataState   `json:"metadata,omitempty"`
	Controller *ControllerState `json:"controller,omitempty"`
}

// GroupUpdate reports group-level transport state.
type GroupUpdate struct {
	PlaybackState string `json:"playback_state,omitempty"`
}

// SessionUpdate reports session-level transport state.
type SessionUpdate struct {
	PlaybackState string `json:"playback_state,omitempty"`
}

// ClientGoodbye is sent before a clean disconnect.
type ClientGoodbye struct {
	Reason string `json:"reason"`
}

// Message type constants, used both for dispatch and for outbound
// Message.Type values.
const (
	TypeClientHello   = "client/hello"
	TypeServerHello   = "server/hello"
	TypeClientTime    = "client/time"
	TypeServerTime    = "server/time"
	TypeClientState   = "client/state"
	TypeServerState   = "server/state"
	TypeServerCommand = "server/command"
	TypeStreamStart   = "stream/start"
	TypeStreamEnd     = "stream/end"
	TypeStreamClear   = "stream/clear"
	TypeGroupUpdate   = "group/update"
	TypeSessionUpdate = "session/update"
	TypeClientGoodbye = "client/goodbye"
)

// SupportedRoles lists every role this player advertises in client/hello.
var SupportedRoles = []string{"player@v1", "metadata@v1", "artwork@v1", "visualizer@v1"}

// SupportedFormats lists the PCM/Opus formats this player accepts, in
// priority order (highest quality PCM first, Opus last).
var SupportedFormats = []AudioFormat{
	{Codec: "pcm", Channels: 2, SampleRate: 192000, BitDepth: 24},
	{Codec: "pcm", Channels: 2, SampleRate: 176400, BitDepth: 24},
	{Codec: "pcm", Channels: 2, SampleRate: 96000, BitDepth: 24},
	{Codec: "pcm", Channels: 2, SampleRate: 88200, BitDepth: 24},
	{Codec: "pcm", Channels: 2, SampleRate: 48000, BitDepth: 16},
	{Codec: "pcm", Channels: 2, SampleRate: 44100, BitDepth: 16},
	{Codec: "opus", Channels: 2, SampleRate: 48000, BitDepth: 16},
}

// SupportedCommands lists the player-role control commands this player
// implements.
var SupportedCommands = []string{"volume", "mute"}

// PlayerBufferCapacity is the buffer_capacity advertised for player@v1.
const PlayerBufferCapacity = 1048576
