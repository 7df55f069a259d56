package commands

import (
	"context"
	"fmt"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/rumor-ml/commons.systems/bookkeeping/internal/config"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/dedup"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/firestore"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/ingest"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/middleware"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/registry"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/rules"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/storage"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store"
	"github.com/rumor-ml/commons.systems/bookkeeping/internal/store/sqlite"
)

// backend bundles the service dependencies opened from configuration.
type backend struct {
	store    store.Store
	files    storage.FileStore
	verifier middleware.TokenVerifier
	closers  []func() error
}

// Close releases everything the backend opened, newest first.
func (b *backend) Close() error {
	var firstErr error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openBackend opens the store, file source and token verifier for serve.
func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	b := &backend{}

	switch cfg.StoreBackend {
	case config.StoreFirestore:
		client, err := firestore.NewClient(ctx, cfg.GCPProjectID, cfg.CredentialsFile)
		if err != nil {
			return nil, err
		}
		b.store = firestore.NewStore(client.Firestore, firestore.CollectionPrefix(cfg.CollectionPrefix))
		b.verifier = client.Auth
		b.closers = append(b.closers, client.Close)
	default:
		st, err := openSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.store = st
		b.closers = append(b.closers, st.Close)

		authClient, err := newAuthClient(ctx, cfg)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.verifier = authClient
	}

	files, closeFiles, err := openFiles(ctx, cfg)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.files = files
	if closeFiles != nil {
		b.closers = append(b.closers, closeFiles)
	}
	return b, nil
}

func openSQLite(path string) (*sqlite.Store, error) {
	st, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite store %s: %w", path, err)
	}
	return st, nil
}

func clientOptions(cfg config.Config) []option.ClientOption {
	if cfg.CredentialsFile == "" {
		return nil
	}
	return []option.ClientOption{option.WithCredentialsFile(cfg.CredentialsFile)}
}

// newAuthClient creates a Firebase Auth client without Firestore.
func newAuthClient(ctx context.Context, cfg config.Config) (middleware.TokenVerifier, error) {
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.GCPProjectID}, clientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Firebase app: %w", err)
	}
	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Auth client: %w", err)
	}
	return authClient, nil
}

// openFiles returns the configured file source and its close func, if any.
func openFiles(ctx context.Context, cfg config.Config) (storage.FileStore, func() error, error) {
	maxBytes := int64(cfg.MaxUploadBytes)
	if cfg.StorageBackend == config.StorageLocal {
		return storage.NewLocalStore(cfg.LocalStorageRoot, maxBytes), nil, nil
	}
	client, err := gcs.NewClient(ctx, clientOptions(cfg)...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	files := storage.NewGCSStore(client, cfg.GCSBucketName, maxBytes)
	return files, files.Close, nil
}

// newService builds an ingestion service from configuration.
func newService(cfg config.Config, st store.Store, files storage.FileStore, opts ingest.Options) (*ingest.Service, error) {
	engine, err := rules.Load(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	scope, err := dedup.ParseScope(cfg.DedupScope)
	if err != nil {
		return nil, err
	}
	opts.Rules = engine
	opts.Scope = scope
	opts.EmptyResult = ingest.EmptyResultPolicy(cfg.EmptyResultPolicy)
	return ingest.New(st, files, registry.New(), opts), nil
}
