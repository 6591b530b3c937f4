package config

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"

	"civicsync-admin/logging"
	"civicsync-admin/store"
)

// OpenStore opens the store backend selected by cfg. The returned function releases the
// backend connection.
func OpenStore(ctx context.Context, cfg Config, logger logging.Logger) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case BackendMongo:
		client, db, err := ConnectDB(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() { _ = client.Disconnect(context.Background()) }
		return store.NewMongo(db, logger), closeFn, nil

	case BackendNATS:
		nc, err := ConnectNATS(cfg.NATSURL)
		if err != nil {
			return nil, nil, err
		}
		js, err := jetstream.New(nc)
		if err != nil {
			nc.Close()
			return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		kv, err := store.EnsureBucket(ctx, js, cfg.NATSBucket, 5)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		return store.NewNATS(kv, logger), nc.Close, nil

	case BackendMemory:
		logger.Warn("using the in-memory store, data is lost on exit")
		return store.NewMemory(), func() {}, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown store backend %q", ErrInvalidConfig, cfg.StoreBackend)
	}
}
