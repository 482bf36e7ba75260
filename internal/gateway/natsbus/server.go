package natsbus

import (
	"fmt"
	"os"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
)

// Bus is an in-process NATS server for single-node deployments.
type Bus struct {
	server *natsserver.Server
}

// NewBus starts an embedded server. port -1 picks a random free port.
func NewBus(port int, dataDir string) (*Bus, error) {
	if dataDir != "" {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create nats data dir: %w", err)
		}
	}
	opts := &natsserver.Options{
		Host:     "127.0.0.1",
		Port:     port,
		NoLog:    true,
		NoSigs:   true,
		StoreDir: dataDir,
	}
	ns, err := natsserver.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create nats server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("nats server not ready")
	}
	return &Bus{server: ns}, nil
}

func (b *Bus) ClientURL() string { return b.server.ClientURL() }

func (b *Bus) Close() {
	b.server.Shutdown()
	b.server.WaitForShutdown()
}
