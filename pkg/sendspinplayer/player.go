// ABOUTME: Host-facing Player API wiring config into the supervisor
// ABOUTME: The embeddable entry point for applications hosting a Sendspin player
// Package sendspinplayer provides a small, host-facing API for
// embedding a Sendspin player: configure it, connect to a server
// (directly or via mDNS discovery), and forward playback controls.
package sendspinplayer

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/sendspin/sendspin-go/internal/config"
	"github.com/sendspin/sendspin-go/internal/decode"
	"github.com/sendspin/sendspin-go/internal/discovery"
	"github.com/sendspin/sendspin-go/internal/session"
	"github.com/sendspin/sendspin-go/internal/sink"
	"github.com/sendspin/sendspin-go/internal/supervisor"
	"github.com/sendspin/sendspin-go/internal/version"
	"github.com/sendspin/sendspin-go/internal/wire"
)

// discoveryTimeout bounds how long Connect waits for an mDNS server
// when no address was configured.
const discoveryTimeout = 10 * time.Second

// DeviceInfo identifies this player to the server.
type DeviceInfo struct {
	ProductName     string
	Manufacturer    string
	SoftwareVersion string
}

// Config configures a Player.
type Config struct {
	// ServerAddr is "host:port"; empty means discover via mDNS.
	ServerAddr string

	PlayerName string
	Volume     int
	BufferMs   int
	DeviceInfo DeviceInfo

	// SinkMode selects the default playback sink: "http" (default) or
	// "oto". Ignored if Sink is set directly.
	SinkMode     string
	HTTPSinkAddr string

	// AdvertisePort is the port this player announces itself on via mDNS
	// (_sendspin._tcp.local), independent of where the sink actually
	// listens. Advertising is fire-and-forget: a failure to advertise
	// never blocks or fails Connect.
	AdvertisePort int

	Observer supervisor.Observer
}

// Stats mirrors supervisor.Stats.
type Stats = supervisor.Stats

// Player is the embeddable Sendspin player.
type Player struct {
	config     Config
	supervisor *supervisor.Supervisor
	sink       supervisor.Sink
	advertiser *discovery.Advertiser
}

// NewPlayer creates a Player from cfg, applying defaults for anything
// left zero-valued.
func NewPlayer(cfg Config) (*Player, error) {
	if cfg.Volume == 0 {
		cfg.Volume = config.DefaultVolume
	}
	if cfg.BufferMs == 0 {
		cfg.BufferMs = config.DefaultBufferMs
	}
	if cfg.DeviceInfo.ProductName == "" {
		cfg.DeviceInfo.ProductName = version.Product
	}
	if cfg.DeviceInfo.Manufacturer == "" {
		cfg.DeviceInfo.Manufacturer = version.Manufacturer
	}
	if cfg.DeviceInfo.SoftwareVersion == "" {
		cfg.DeviceInfo.SoftwareVersion = version.Version
	}
	if cfg.SinkMode == "" {
		cfg.SinkMode = "http"
	}
	if cfg.PlayerName == "" {
		cfg.PlayerName = fmt.Sprintf("%s Player", cfg.DeviceInfo.ProductName)
	}
	if cfg.AdvertisePort == 0 {
		cfg.AdvertisePort = config.DefaultMDNSPort
	}

	store, err := config.NewStore()
	if err != nil {
		return nil, err
	}
	clientID, err := store.ClientID()
	if err != nil {
		return nil, err
	}

	var sup *supervisor.Supervisor

	var playbackSink supervisor.Sink
	switch cfg.SinkMode {
	case "oto":
		playbackSink = sink.NewOtoSink(func() (int, bool) { return sup.VolumeState() })
	case "http":
		addr := cfg.HTTPSinkAddr
		if addr == "" {
			addr = "127.0.0.1:0"
		}
		playbackSink = sink.NewHTTPSink(addr)
	default:
		return nil, fmt.Errorf("sendspinplayer: unknown sink mode %q", cfg.SinkMode)
	}

	sup = supervisor.New(supervisor.Params{
		Identity: session.Identity{
			ClientID: clientID,
			Name:     cfg.PlayerName,
			DeviceInfo: wire.DeviceInfo{
				ProductName:     cfg.DeviceInfo.ProductName,
				Manufacturer:    cfg.DeviceInfo.Manufacturer,
				SoftwareVersion: cfg.DeviceInfo.SoftwareVersion,
			},
		},
		BufferMs: cfg.BufferMs,
		Volume:   cfg.Volume,
		Sink:     playbackSink,
		Observer: cfg.Observer,
		DecoderFactory: func(codec string, sampleRate, channels, bitDepth int, codecHeader string) (supervisor.Decoder, error) {
			return decode.New(decode.Format{
				Codec:       codec,
				SampleRate:  sampleRate,
				Channels:    channels,
				BitDepth:    bitDepth,
				CodecHeader: codecHeader,
			})
		},
	})

	return &Player{config: cfg, supervisor: sup, sink: playbackSink}, nil
}

// Connect resolves the server address (discovering via mDNS if none
// was configured) and runs the player until ctx is cancelled. It also
// starts advertising this player via mDNS; advertising is fire-and-forget
// and never fails Connect.
func (p *Player) Connect(ctx context.Context) error {
	adv, err := discovery.Advertise(p.config.PlayerName, p.config.AdvertisePort)
	if err != nil {
		log.Printf("sendspinplayer: mdns advertise failed: %v", err)
	} else {
		p.advertiser = adv
	}

	resolve := p.resolver()
	return p.supervisor.Run(ctx, resolve)
}

// resolver returns an AddressResolver: sticky if ServerAddr was
// configured, otherwise one that (re-)runs mDNS discovery each call.
func (p *Player) resolver() func(ctx context.Context) (string, error) {
	if p.config.ServerAddr != "" {
		addr := p.config.ServerAddr
		return func(ctx context.Context) (string, error) { return addr, nil }
	}

	return func(ctx context.Context) (string, error) {
		server, err := discovery.Discover(ctx, discoveryTimeout)
		if err != nil {
			return "", fmt.Errorf("sendspinplayer: discover server: %w", err)
		}
		return fmt.Sprintf("%s:%d", server.Host, server.Port), nil
	}
}

// Stop disconnects and releases every resource the player owns.
func (p *Player) Stop() {
	if p.advertiser != nil {
		p.advertiser.Stop()
	}
	p.supervisor.Stop()
}

// SetVolume and Mute forward host-initiated controls to the session.
func (p *Player) SetVolume(volume int) error { return p.supervisor.SetVolume(volume) }
func (p *Player) Mute(muted bool) error      { return p.supervisor.Mute(muted) }

// Stats returns a snapshot of playback statistics.
func (p *Player) Stats() Stats { return p.supervisor.Stats() }

// SinkAddr returns the HTTP sink's listening address. It is empty if
// SinkMode is not "http", and also while the sink is not started (it
// starts on stream/start and stops on stream/end).
func (p *Player) SinkAddr() string {
	if s, ok := p.sink.(*sink.HTTPSink); ok {
		return s.Addr()
	}
	return ""
}
