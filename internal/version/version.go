// ABOUTME: Build-time version identity
// ABOUTME: Holds the device_info fields this player reports to the server
// Package version holds the build-time identity this player reports in
// its device_info block.
package version

// Version is overridden at build time via -ldflags, e.g.
// -X github.com/sendspin/sendspin-go/internal/version.Version=1.2.3
var Version = "dev"

// Product and Manufacturer identify this player to the server.
const (
	Product      = "Sendspin Player"
	Manufacturer = "Sendspin"
)
