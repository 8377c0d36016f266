package bootstrap

import (
	"net"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
)

// NewLogger builds the process-wide logger.
func NewLogger() *log.Logger {
	return log.NewWithOptions(os.Stdout, log.Options{
		ReportCaller:    true,
		ReportTimestamp: true,
		Level:           log.DebugLevel,
		TimeFormat:      time.Kitchen,
	})
}

// StartEmbeddedNATSServer runs an in-process NATS server on the default
// port and blocks until it accepts connections.
func StartEmbeddedNATSServer(logger *log.Logger) (*server.Server, error) {
	opts := &server.Options{}

	s, err := server.NewServer(opts)
	if err != nil {
		return nil, err
	}

	go s.Start()

	if !s.ReadyForConnections(10 * time.Second) {
		return nil, errors.New("NATS server not ready in time")
	}

	addr := s.Addr()
	tcpAddr, ok := addr.(*net.TCPAddr)
	if !ok {
		return nil, errors.New("unexpected address type")
	}

	logger.Info("Started NATS server", "port", tcpAddr.Port)
	return s, nil
}

func NewNatsClient(natsURL string) (*nats.Conn, error) {
	return nats.Connect(natsURL)
}
