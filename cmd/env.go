package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/jobhunter/internal/lock"
	"github.com/spigell/jobhunter/internal/logger"
	"github.com/spigell/jobhunter/internal/notify"
	"github.com/spigell/jobhunter/internal/pipeline"
	"github.com/spigell/jobhunter/internal/profile"
	"github.com/spigell/jobhunter/internal/secrets"
	"github.com/spigell/jobhunter/internal/sources"
	"github.com/spigell/jobhunter/internal/store"
	"github.com/spigell/jobhunter/internal/store/postgres"
)

// environment is what every command needs: the config, a logger and the
// storage and coordination backends the config points to.
type environment struct {
	config *Config
	logger *zap.Logger
	store  store.Store
	locker lock.Locker
	redis  *redis.Client
	close  []func()
}

// setup builds the environment. Postgres and Redis are used when their URLs
// are configured; otherwise the in-memory store and an in-process locker are.
func setup(ctx context.Context) *environment {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(config.redacted(), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	env := &environment{config: config, logger: logger}

	databaseURL, err := secrets.Optional(secrets.Source{
		Name:  "database url",
		Value: config.Database.URL,
		File:  config.Database.URLFile,
	})
	if err != nil {
		logger.Fatal("loading database url", zap.Error(err),
			zap.String("hint", "set JOBHUNTER_DATABASE_URL_FILE or database.url-file"),
		)
	}
	if databaseURL == "" {
		logger.Warn("no database configured, using the in-memory store",
			zap.String("hint", "nothing is kept between invocations; set database.url-file"),
		)
		env.store = store.NewMemory()
	} else {
		pg, err := postgres.Connect(ctx, databaseURL, logger)
		if err != nil {
			logger.Fatal("connecting to postgres", zap.Error(err))
		}
		env.store = pg
		env.close = append(env.close, pg.Close)
	}

	redisURL, err := secrets.Optional(secrets.Source{
		Name:  "redis url",
		Value: config.Redis.URL,
		File:  config.Redis.URLFile,
	})
	if err != nil {
		logger.Fatal("loading redis url", zap.Error(err))
	}
	if redisURL == "" {
		env.locker = lock.NewKeyed()
	} else {
		client, err := lock.Connect(ctx, redisURL)
		if err != nil {
			logger.Fatal("connecting to redis", zap.Error(err))
		}
		env.redis = client
		env.locker = lock.NewRedis(client, logger)
		env.close = append(env.close, func() { _ = client.Close() })
	}

	return env
}

func (e *environment) Close() {
	for i := len(e.close) - 1; i >= 0; i-- {
		e.close[i]()
	}
	_ = e.logger.Sync()
}

func (e *environment) publisher() notify.Publisher {
	publishers := notify.Multi{notify.NewLogPublisher(e.logger)}
	if e.redis != nil {
		publishers = append(publishers, notify.NewRedisPublisher(e.redis, e.config.Redis.Channel, e.logger))
	}
	return publishers
}

func (e *environment) orchestrator() *pipeline.Orchestrator {
	client := sources.NewClient(e.logger)
	if e.config.UserAgent != "" {
		client.UserAgent = e.config.UserAgent
	}

	adapters, err := sources.Build(e.config.Sources, client, e.logger)
	if err != nil {
		e.logger.Fatal("building sources", zap.Error(err), zap.Strings("known types", sources.Types()))
	}
	if len(adapters) == 0 {
		e.logger.Warn("no sources configured, runs will only rematch stored jobs")
	}

	o, err := pipeline.New(e.config.Pipeline, pipeline.Deps{
		Store:     e.store,
		Adapters:  adapters,
		Profiles:  profile.Static(e.config.Profiles),
		Publisher: e.publisher(),
		Locker:    e.locker,
		Logger:    e.logger,
	})
	if err != nil {
		e.logger.Fatal("building the pipeline", zap.Error(err))
	}
	return o
}

// profileID returns the --profile flag, or the only configured profile.
func (e *environment) profileID(flag string) string {
	if flag != "" {
		return flag
	}
	if len(e.config.Profiles) == 1 {
		return e.config.Profiles[0].ID
	}
	e.logger.Fatal("--profile is required when more than one profile is configured")
	return ""
}
