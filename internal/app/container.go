package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/FinalPatel1678/twilio-voice-sdk/internal/config"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/credentials"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/engine"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/flagstore"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/infra/db"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/infra/redis"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/lookup"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/presence"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/queue"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/repository"
	pgrepo "github.com/FinalPatel1678/twilio-voice-sdk/internal/repository/postgres"
	scyllarepo "github.com/FinalPatel1678/twilio-voice-sdk/internal/repository/scylla"
	sessionsvc "github.com/FinalPatel1678/twilio-voice-sdk/internal/service/session"
	"github.com/FinalPatel1678/twilio-voice-sdk/internal/telephony/sim"
	"github.com/FinalPatel1678/twilio-voice-sdk/pkg/logger"
)

// Container wires together shared infrastructure dependencies.
type Container struct {
	Config *config.Config
	Logger *logger.Logger

	Postgres *db.Postgres
	Scylla   *db.Scylla
	Redis    *redis.Client
	Kafka    *queue.Kafka

	minter *credentials.Minter

	// lazily initialised components
	components struct {
		once         sync.Once
		repositories *repositories
		publishers   *publishers
		stores       *stores
		sessions     *sessionsvc.Manager
	}
}

type repositories struct {
	Worklists repository.WorklistRepository
	Runs      repository.RunRepository
	Attempts  repository.AttemptStore
}

type publishers struct {
	Status *queue.StatusPublisher
}

type stores struct {
	Flags    *flagstore.Store
	Presence *presence.Registry
	Minter   *credentials.Minter
	Lookup   *lookup.ProviderClient
}

// Build constructs a container for the given configuration path.
func Build(ctx context.Context, configPath string) (*Container, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	lg, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, err
	}

	pg, err := db.NewPostgres(ctx, cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("bootstrap postgres: %w", err)
	}

	scylla, err := db.NewScylla(cfg.Scylla)
	if err != nil {
		return nil, fmt.Errorf("bootstrap scylla: %w", err)
	}

	redisClient, err := redis.NewClient(cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("bootstrap redis: %w", err)
	}

	kafka, err := queue.NewKafka(cfg.Kafka)
	if err != nil {
		return nil, fmt.Errorf("bootstrap kafka: %w", err)
	}

	minter, err := credentials.NewMinter(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("bootstrap token minter: %w", err)
	}

	return &Container{
		Config:   cfg,
		Logger:   lg,
		Postgres: pg,
		Scylla:   scylla,
		Redis:    redisClient,
		Kafka:    kafka,
		minter:   minter,
	}, nil
}

func (c *Container) initComponents() {
	c.components.once.Do(func() {
		repos := &repositories{
			Worklists: pgrepo.NewWorklistRepository(c.Postgres.DB()),
			Runs:      pgrepo.NewRunRepository(c.Postgres.DB()),
			Attempts:  scyllarepo.NewAttemptStore(c.Scylla.Session()),
		}

		pubs := &publishers{
			Status: queue.NewStatusPublisher(c.Kafka, c.Config.Kafka.StatusTopic),
		}

		st := &stores{
			Flags:    flagstore.New(c.Redis.Inner()),
			Presence: presence.NewRegistry(c.Redis.Inner(), c.Config.Telephony.InCallTTL),
			Minter:   c.minter,
			Lookup:   lookup.NewProviderClient(c.Config.Provider, c.Config.Telephony.LookupTimeout),
		}

		c.components.repositories = repos
		c.components.publishers = pubs
		c.components.stores = st

		c.components.sessions = sessionsvc.NewManager(sessionsvc.Deps{
			Config:        c.Config,
			Logger:        c.Logger,
			DeviceFactory: sim.Factory(),
			Tokens:        st.Minter,
			Lookup:        st.Lookup,
			Flags:         st.Flags,
			Presence:      st.Presence,
			Status:        pubs.Status,
			Runs:          repos.Runs,
			Worklists:     repos.Worklists,
		})
	})
}

// Repositories exposes initialized repositories.
func (c *Container) Repositories() *repositories {
	c.initComponents()
	return c.components.repositories
}

// Publishers exposes Kafka publishers.
func (c *Container) Publishers() *publishers {
	c.initComponents()
	return c.components.publishers
}

// Stores exposes the Redis-backed stores and provider clients.
func (c *Container) Stores() *stores {
	c.initComponents()
	return c.components.stores
}

// Sessions exposes the session manager.
func (c *Container) Sessions() *sessionsvc.Manager {
	c.initComponents()
	return c.components.sessions
}

// EnsureTopics ensures required Kafka topics exist.
func (c *Container) EnsureTopics(ctx context.Context) error {
	return c.Kafka.EnsureTopics(ctx, []string{c.Config.Kafka.StatusTopic}, 12, 1)
}

// Close releases all held resources.
func (c *Container) Close(ctx context.Context) error {
	var errs []error

	if c.components.sessions != nil {
		c.components.sessions.CloseAll()
	}
	if c.components.publishers != nil && c.components.publishers.Status != nil {
		if err := c.components.publishers.Status.Close(); err != nil {
			errs = append(errs, fmt.Errorf("status publisher close: %w", err))
		}
	}
	if c.Kafka != nil {
		if err := c.Kafka.Close(); err != nil {
			errs = append(errs, fmt.Errorf("kafka close: %w", err))
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	if c.Scylla != nil {
		if err := c.Scylla.Close(); err != nil {
			errs = append(errs, fmt.Errorf("scylla close: %w", err))
		}
	}
	if c.Postgres != nil {
		if err := c.Postgres.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres close: %w", err))
		}
	}
	if c.Logger != nil {
		c.Logger.Sync()
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

var _ engine.FlagStore = (*flagstore.Store)(nil)
var _ engine.Presence = (*presence.Registry)(nil)
