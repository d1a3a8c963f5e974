package factory

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"stream-service/internal/analytics"
	"stream-service/internal/bucketing"
	"stream-service/internal/client"
	"stream-service/internal/config"
	"stream-service/internal/entitlement"
	"stream-service/internal/media"
	redisrepo "stream-service/internal/repository/redis"
	"stream-service/internal/repository/scylla"
	"stream-service/internal/security"
	"stream-service/internal/session"
	"stream-service/internal/streaming"
	"stream-service/internal/token"
	"stream-service/internal/util"
)

// Factory wires clients, repositories and services in dependency order and
// tears them down in reverse.
type Factory struct {
	config *config.Config

	// Clients
	redisClient      *client.RedisClient
	kafkaProducer    *client.KafkaProducer
	clickhouseClient *client.ClickHouseClient
	esClient         *client.ESClient
	scylla           *scylla.ScyllaClient

	// Managers
	bucketingMgr *bucketing.Manager
	signer       *token.Signer

	// Repositories
	licenseRepo    scylla.LicenseRepository
	enrollmentRepo scylla.EnrollmentRepository
	progressRepo   scylla.ProgressRepository
	catalogRepo    scylla.CatalogRepository

	// Core components
	sessionStore     session.Store
	registry         *session.Registry
	validator        *entitlement.LicenseValidator
	evaluator        *entitlement.Evaluator
	securityRecorder security.Recorder
	lifecycleSink    analytics.LifecycleSink
	checkpointSink   analytics.CheckpointSink
	checkpointCloser *analytics.ClickHouseCheckpointSink

	streamingService *streaming.Service
	licenseService   *streaming.LicenseService

	closeOnce sync.Once
	closeErr  error
}

// NewFactory builds the full dependency graph from configuration.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()
	f := &Factory{config: cfg}

	if err := f.initializeClients(); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.initializeCore(); err != nil {
		f.Close()
		return nil, err
	}

	util.Info("Factory initialized",
		zap.String("environment", cfg.Environment),
		zap.String("session_store", cfg.Streaming.SessionStore))
	return f, nil
}

func (f *Factory) initializeClients() error {
	cfg := f.config

	scyllaClient, err := scylla.NewScyllaClient(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize scylla: %w", err)
	}
	f.scylla = scyllaClient

	// The session store backend is chosen explicitly; there is no silent
	// fallback from redis to memory.
	if cfg.Streaming.SessionStore == "redis" {
		redisClient, err := client.NewRedisClient(cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize redis: %w", err)
		}
		f.redisClient = redisClient
	}

	if cfg.Kafka.Enabled {
		producer, err := client.NewKafkaProducer(cfg, util.Get())
		if err != nil {
			if cfg.IsProduction() {
				return fmt.Errorf("failed to initialize kafka: %w", err)
			}
			util.Warn("Kafka unavailable, lifecycle events disabled", zap.Error(err))
		} else {
			f.kafkaProducer = producer
		}
	}

	if cfg.Clickhouse.Enabled {
		clickhouseClient, err := client.NewClickHouseClient(cfg)
		if err != nil {
			if cfg.IsProduction() {
				return fmt.Errorf("failed to initialize clickhouse: %w", err)
			}
			util.Warn("ClickHouse unavailable, checkpoint analytics disabled", zap.Error(err))
		} else {
			f.clickhouseClient = clickhouseClient
		}
	}

	if cfg.Elasticsearch.Enabled {
		esClient, err := client.NewElasticsearchClient(cfg)
		if err != nil {
			if cfg.IsProduction() {
				return fmt.Errorf("failed to initialize elasticsearch: %w", err)
			}
			util.Warn("Elasticsearch unavailable, security events log-only", zap.Error(err))
		} else {
			f.esClient = esClient
		}
	}

	return nil
}

func (f *Factory) initializeCore() error {
	cfg := f.config

	f.bucketingMgr = bucketing.NewManager(cfg)

	signer, err := token.NewSigner(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize token signer: %w", err)
	}
	f.signer = signer

	f.licenseRepo = scylla.NewLicenseRepository(f.scylla)
	f.enrollmentRepo = scylla.NewEnrollmentRepository(f.scylla)
	f.progressRepo = scylla.NewProgressRepository(f.scylla, f.bucketingMgr)
	f.catalogRepo = scylla.NewCatalogRepository(f.scylla)

	if f.redisClient != nil {
		f.sessionStore = redisrepo.NewSessionStore(f.redisClient, cfg.Streaming.SessionIdleTimeout)
	} else {
		f.sessionStore = session.NewMemoryStore()
	}
	f.registry = session.NewRegistry(f.sessionStore, f.bucketingMgr,
		cfg.Streaming.SessionIdleTimeout, cfg.Streaming.HeartbeatInterval)

	f.validator = entitlement.NewLicenseValidator(f.licenseRepo, f.enrollmentRepo)
	f.evaluator = entitlement.NewEvaluator(f.enrollmentRepo, f.licenseRepo, f.validator)

	if f.esClient != nil {
		f.securityRecorder = security.NewESRecorder(f.esClient, f.bucketingMgr, cfg)
	} else {
		f.securityRecorder = security.LogRecorder{}
	}

	if f.kafkaProducer != nil {
		f.lifecycleSink = analytics.NewKafkaLifecycleSink(f.kafkaProducer, cfg)
	} else {
		f.lifecycleSink = analytics.NoopLifecycleSink{}
	}

	if f.clickhouseClient != nil {
		sink := analytics.NewClickHouseCheckpointSink(f.clickhouseClient)
		f.checkpointSink = sink
		f.checkpointCloser = sink
	} else {
		f.checkpointSink = analytics.NoopCheckpointSink{}
	}

	origin := media.NewCDNOrigin(cfg)
	assembler := streaming.NewAssembler(origin, f.signer, cfg)

	f.streamingService = streaming.NewService(f.registry, f.catalogRepo, f.progressRepo,
		f.evaluator, assembler, f.lifecycleSink, f.checkpointSink, f.securityRecorder, cfg)
	f.licenseService = streaming.NewLicenseService(f.validator, f.securityRecorder)

	return nil
}

func (f *Factory) StreamingService() *streaming.Service {
	return f.streamingService
}

func (f *Factory) LicenseService() *streaming.LicenseService {
	return f.licenseService
}

func (f *Factory) Config() *config.Config {
	return f.config
}

// DeepHealthCheck pings every wired backing service.
func (f *Factory) DeepHealthCheck(ctx context.Context) map[string]string {
	checks := make(map[string]string)

	report := func(name string, err error) {
		if err != nil {
			util.Error("Health check failed", zap.String("component", name), zap.Error(err))
			checks[name] = err.Error()
			return
		}
		checks[name] = "healthy"
	}

	report("scylla", f.scylla.HealthCheck())

	if f.redisClient != nil {
		report("redis", f.redisClient.HealthCheck(ctx))
	} else {
		checks["redis"] = "disabled"
	}
	if f.kafkaProducer != nil {
		report("kafka", f.kafkaProducer.HealthCheck(ctx))
	} else {
		checks["kafka"] = "disabled"
	}
	if f.clickhouseClient != nil {
		report("clickhouse", f.clickhouseClient.HealthCheck(ctx))
	} else {
		checks["clickhouse"] = "disabled"
	}
	if f.esClient != nil {
		report("elasticsearch", f.esClient.HealthCheck())
	} else {
		checks["elasticsearch"] = "disabled"
	}

	return checks
}

// Close tears everything down in reverse initialization order.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		if f.checkpointCloser != nil {
			f.checkpointCloser.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close kafka producer", zap.Error(err))
				f.closeErr = err
			}
		}
		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close clickhouse client", zap.Error(err))
				f.closeErr = err
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close redis client", zap.Error(err))
				f.closeErr = err
			}
		}
		if f.scylla != nil {
			f.scylla.Close()
		}
		util.Info("Factory closed")
	})
	return f.closeErr
}
