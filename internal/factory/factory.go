package factory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"wallet-engine/internal/bucketing"
	"wallet-engine/internal/config"
	"wallet-engine/internal/encryption"
	"wallet-engine/internal/engine"
	"wallet-engine/internal/hashing"
	"wallet-engine/internal/identity"
	"wallet-engine/internal/mirror"
	"wallet-engine/internal/snapshot"
	"wallet-engine/internal/tls"
	"wallet-engine/internal/util"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
)

// Factory manages the lifecycle of all application dependencies: it
// wires the engine and its mirror sinks at startup, restores the last
// snapshot, and takes the final snapshot at shutdown.
type Factory struct {
	config     *config.Config
	tlsManager *tls.Manager

	// Managers
	deriver           *identity.Deriver
	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager

	// Core
	engine        *engine.Engine
	snapshotStore snapshot.Store

	// Mirror sinks
	summaryCache   *mirror.SummaryCache
	eventPublisher *mirror.EventPublisher
	analyticsSink  *mirror.AnalyticsSink
	mirror         *mirror.Mirror

	closeOnce sync.Once
	closeErr  error
	closed    chan struct{}
}

// NewFactory creates and initializes all application dependencies.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewManager(cfg)
	}

	f.initializeManagers()

	if err := f.initializeSnapshotStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize snapshot store: %w", err)
	}

	if err := f.initializeEngine(); err != nil {
		return nil, fmt.Errorf("failed to initialize engine: %w", err)
	}

	if err := f.initializeMirror(); err != nil {
		return nil, fmt.Errorf("failed to initialize mirror: %w", err)
	}

	util.Info("factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.String("snapshot_backend", cfg.Snapshot.Backend),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return f, nil
}

func (f *Factory) initializeManagers() {
	f.deriver = identity.NewDeriver(f.config)
	f.hasher = hashing.NewHasher(f.config)
	f.bucketingManager = bucketing.NewManager(f.config)

	var kmsClient *kms.Client
	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			util.Warn("failed to load AWS config, falling back to local key wrapping", util.ErrorField(err))
		} else {
			kmsClient = kms.NewFromConfig(awsCfg)
		}
	}
	f.encryptionManager = encryption.NewManager(f.config, kmsClient)

	util.Info("managers initialized",
		util.Bool("kms_client", f.config.KMS.Enabled),
	)
}

func (f *Factory) initializeSnapshotStore() error {
	codec := snapshot.NewCodec(f.config, f.encryptionManager)

	switch f.config.Snapshot.Backend {
	case "scylla":
		store, err := snapshot.NewScyllaStore(f.config, codec)
		if err != nil {
			return err
		}
		f.snapshotStore = store
	default:
		store, err := snapshot.NewFileStore(f.config.Snapshot.Dir, codec)
		if err != nil {
			return err
		}
		f.snapshotStore = store
	}
	return nil
}

// initializeEngine builds the engine and restores the most recent
// snapshot. A missing snapshot means a fresh deployment; anything else
// is fatal, because serving with partial state would corrupt balances.
func (f *Factory) initializeEngine() error {
	f.engine = engine.New(f.config, f.deriver, f.hasher, f.bucketingManager, util.Get())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	snap, err := f.snapshotStore.Load(ctx)
	if err != nil {
		if errors.Is(err, snapshot.ErrNoSnapshot) {
			util.Info("no snapshot found, starting with empty stores")
			return nil
		}
		return fmt.Errorf("failed to load snapshot: %w", err)
	}

	if err := f.engine.Restore(snap); err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	return nil
}

func (f *Factory) initializeMirror() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		cache, err := mirror.NewSummaryCache(f.config)
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.summaryCache = cache
			if err := cache.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			}
		}
	}

	if f.config.Kafka.Enabled {
		publisher, err := mirror.NewEventPublisher(f.config, f.bucketingManager, util.Get())
		if err != nil {
			util.Warn("kafka publisher initialization failed, proceeding without event stream", util.ErrorField(err))
		} else {
			f.eventPublisher = publisher
		}
	}

	if f.config.Clickhouse.Enabled {
		sink, err := mirror.NewAnalyticsSink(f.config, f.bucketingManager, util.Get())
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.analyticsSink = sink
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("mirror sink initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("mirror sink initialization warning", util.ErrorField(err))
		}
	}

	f.mirror = mirror.New(f.summaryCache, f.eventPublisher, f.analyticsSink, util.Get())
	if f.mirror.Enabled() {
		f.engine.SetRecorder(f.mirror)
	}
	return nil
}

// HealthCheck reports the state of every component.
func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.engine == nil {
		healthErrors["engine"] = fmt.Errorf("engine not initialized")
	}
	if f.snapshotStore == nil {
		healthErrors["snapshot_store"] = fmt.Errorf("snapshot store not initialized")
	}
	if store, ok := f.snapshotStore.(*snapshot.ScyllaStore); ok {
		if err := store.HealthCheck(ctx); err != nil {
			healthErrors["snapshot_store"] = err
		}
	}

	if f.summaryCache != nil {
		if err := f.summaryCache.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}
	if f.eventPublisher != nil {
		if err := f.eventPublisher.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}
	if f.analyticsSink != nil {
		if err := f.analyticsSink.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// Close takes a final snapshot and shuts everything down in order. A
// failed shutdown snapshot is returned as an error: losing it means
// losing every transaction since the previous save.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("shutting down factory...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if f.engine != nil && f.snapshotStore != nil {
			snap, err := f.engine.Flatten()
			if err != nil {
				f.closeErr = fmt.Errorf("failed to flatten stores at shutdown: %w", err)
				util.Error("shutdown snapshot failed", util.ErrorField(err))
			} else if err := f.snapshotStore.Save(ctx, snap); err != nil {
				f.closeErr = fmt.Errorf("failed to save shutdown snapshot: %w", err)
				util.Error("shutdown snapshot failed", util.ErrorField(err))
			}
		}

		if f.mirror != nil {
			if err := f.mirror.Close(); err != nil {
				util.Error("failed to close mirror sinks", util.ErrorField(err))
			}
		}

		if f.snapshotStore != nil {
			if err := f.snapshotStore.Close(); err != nil {
				util.Error("failed to close snapshot store", util.ErrorField(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
		util.Info("factory shutdown completed")
	})

	return f.closeErr
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.Manager {
	return f.tlsManager
}

func (f *Factory) Engine() *engine.Engine {
	return f.engine
}

func (f *Factory) Mirror() *mirror.Mirror {
	return f.mirror
}
