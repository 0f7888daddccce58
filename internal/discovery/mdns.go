// ABOUTME: mDNS discovery and advertisement for Sendspin servers and players
// ABOUTME: Browses for servers and announces this player on the local network
// Package discovery finds Sendspin servers on the local network via
// mDNS, and can advertise this player as a target for a controller
// that enumerates devices before connecting to one directly.
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service type Sendspin servers advertise
// under.
const ServiceType = "_sendspin-server._tcp"

// playerServiceType is what this player advertises itself as, so a
// controller can discover it without first knowing its address.
const playerServiceType = "_sendspin._tcp"

// ServerInfo describes one discovered server.
type ServerInfo struct {
	Name string
	Host string
	Port int
}

// Browser finds Sendspin servers via mDNS browsing.
type Browser struct {
	ctx     context.Context
	cancel  context.CancelFunc
	servers chan ServerInfo
}

// NewBrowser creates a Browser. Call Start to begin browsing.
func NewBrowser() *Browser {
	ctx, cancel := context.WithCancel(context.Background())
	return &Browser{
		ctx:     ctx,
		cancel:  cancel,
		servers: make(chan ServerInfo, 10),
	}
}

// Start launches the background browse loop.
func (b *Browser) Start() {
	go b.browseLoop()
}

// Stop cancels browsing.
func (b *Browser) Stop() {
	b.cancel()
}

// Servers returns the channel of discovered servers. It stays open for
// the Browser's lifetime; callers select on it alongside ctx.Done.
func (b *Browser) Servers() <-chan ServerInfo {
	return b.servers
}

func (b *Browser) browseLoop() {
	for {
		select {
		case <-b.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		go func() {
			for entry := range entries {
				info := ServerInfo{Name: entry.Name, Host: entry.AddrV4.String(), Port: entry.Port}
				log.Printf("discovery: found server %s at %s:%d", info.Name, info.Host, info.Port)
				select {
				case b.servers <- info:
				case <-b.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: 3,
			Entries: entries,
		}
		mdns.Query(params)
		close(entries)
	}
}

// ErrNoServerFound is returned by Discover when no server answers
// within timeout.
var ErrNoServerFound = fmt.Errorf("discovery: no server found")

// Discover satisfies the Supervisor's discover(timeout) -> Option<Address>
// contract: it browses for up to timeout and returns the first server
// found, or ErrNoServerFound. It owns its own Browser for the call's
// duration.
func Discover(ctx context.Context, timeout time.Duration) (ServerInfo, error) {
	b := NewBrowser()
	b.Start()
	defer b.Stop()

	select {
	case server := <-b.Servers():
		return server, nil
	case <-time.After(timeout):
		return ServerInfo{}, ErrNoServerFound
	case <-ctx.Done():
		return ServerInfo{}, ctx.Err()
	}
}

// Advertiser advertises this player via mDNS so a controller can
// discover it directly, per the player@v1 role's discovery contract.
type Advertiser struct {
	server *mdns.Server
}

// Advertise starts advertising name on port. The returned Advertiser
// must be stopped to release the mDNS server.
func Advertise(name string, port int) (*Advertiser, error) {
	ips, err := localIPs()
	if err != nil {
		return nil, fmt.Errorf("discovery: get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(name, playerServiceType, "", "", port, ips, []string{"path=/sendspin"})
	if err != nil {
		return nil, fmt.Errorf("discovery: create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("discovery: create mdns server: %w", err)
	}

	log.Printf("discovery: advertising %s on port %d", name, port)
	return &Advertiser{server: server}, nil
}

// Stop shuts down the advertised service.
func (a *Advertiser) Stop() {
	if a.server != nil {
		a.server.Shutdown()
	}
}

func localIPs() ([]net.IP, error) {
	var ips []net.IP
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}
	return ips, nil
}
