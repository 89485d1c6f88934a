// Package discovery announces the server on the local network over
// mDNS so editor clients on the same LAN can find the room without
// configuration.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/grandcat/zeroconf"
)

const service = "_gogala._tcp"

// Announce registers the mDNS service and keeps the registration alive
// until ctx is cancelled.
func Announce(ctx context.Context, port int, log *slog.Logger) error {
	host, _ := os.Hostname()
	server, err := zeroconf.Register(
		fmt.Sprintf("gogala-%s", host),
		service,
		"local.",
		port,
		[]string{"txtv=0"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("register mdns service: %w", err)
	}
	log.Info("mdns service registered", "service", service, "port", port)

	<-ctx.Done()
	server.Shutdown()
	return nil
}
