package bus

import (
	"context"
	"log/slog"

	"github.com/loqalabs/loqa-speech/internal/config"
	"github.com/loqalabs/loqa-speech/internal/natsserver"
)

// Open connects to the broker cfg describes, starting the embedded one
// first when asked to. A disabled bus yields a nil Client, which publishes
// nothing. The returned stop func is always safe to call.
func Open(ctx context.Context, cfg config.BusConfig, name string, log *slog.Logger) (*Client, func(), error) {
	if !cfg.Enabled && !cfg.Embedded {
		return nil, func() {}, nil
	}

	embedded, err := natsserver.Start(cfg, log.With(slog.String("component", "nats-embedded")))
	if err != nil {
		return nil, func() {}, err
	}
	if embedded != nil {
		cfg.Servers = []string{embedded.ClientURL()}
	}

	client, err := Connect(ctx, cfg, name, log.With(slog.String("component", "bus")))
	if err != nil {
		embedded.Shutdown()
		return nil, func() {}, err
	}
	return client, func() {
		client.Close()
		embedded.Shutdown()
	}, nil
}
