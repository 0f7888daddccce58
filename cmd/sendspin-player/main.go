// ABOUTME: Entry point for the sendspin-player CLI
// ABOUTME: Parses flags and runs the player until a shutdown signal arrives
// Command sendspin-player connects to a Sendspin server (discovered
// via mDNS, or a manually specified address) and plays the resulting
// audio stream.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sendspin/sendspin-go/internal/config"
	"github.com/sendspin/sendspin-go/internal/version"
	"github.com/sendspin/sendspin-go/pkg/sendspinplayer"
)

var (
	serverAddr    = flag.String("server", "", "Manual server address (skip mDNS)")
	name          = flag.String("name", "", "Player friendly name (default: hostname-sendspin-player)")
	bufferMs      = flag.Int("buffer-ms", 11_000, "Jitter buffer size in milliseconds")
	volume        = flag.Int("volume", 100, "Initial volume (0-100)")
	sinkMode      = flag.String("sink", "http", "Playback sink: http or oto")
	httpSinkAddr  = flag.String("sink-addr", "127.0.0.1:0", "Listen address for the http sink")
	advertisePort = flag.Int("advertise-port", config.DefaultMDNSPort, "Port this player announces itself on via mDNS")
	logFile       = flag.String("log-file", "sendspin-player.log", "Log file path")
	streamLogs    = flag.Bool("stream-logs", false, "Also log to stdout")
)

func main() {
	flag.Parse()

	f, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
	if err != nil {
		log.Fatalf("error opening log file: %v", err)
	}
	defer func() { _ = f.Close() }()

	if *streamLogs {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	} else {
		log.SetOutput(f)
	}

	playerName := *name
	if playerName == "" {
		hostname, err := os.Hostname()
		if err != nil {
			hostname = "unknown"
		}
		playerName = fmt.Sprintf("%s-sendspin-player", hostname)
	}

	log.Printf("Starting %s: %s", version.Product, playerName)

	player, err := sendspinplayer.NewPlayer(sendspinplayer.Config{
		ServerAddr:    *serverAddr,
		PlayerName:    playerName,
		Volume:        *volume,
		BufferMs:      *bufferMs,
		SinkMode:      *sinkMode,
		HTTPSinkAddr:  *httpSinkAddr,
		AdvertisePort: *advertisePort,
	})
	if err != nil {
		log.Fatalf("failed to create player: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- player.Connect(ctx)
	}()

	if addr := player.SinkAddr(); addr != "" {
		log.Printf("Streaming decoded PCM at http://%s/stream", addr)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Printf("shutdown signal received")
	case err := <-runErr:
		if err != nil {
			log.Printf("player stopped with error: %v", err)
		}
	}

	cancel()
	player.Stop()
	log.Printf("player stopped")
}
