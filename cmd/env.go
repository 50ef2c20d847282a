package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/leadcheck/internal/discovery"
	"github.com/sells-group/leadcheck/internal/lock"
	"github.com/sells-group/leadcheck/internal/reachability"
	"github.com/sells-group/leadcheck/internal/review"
	"github.com/sells-group/leadcheck/internal/store"
	"github.com/sells-group/leadcheck/internal/validation"
	anthropicpkg "github.com/sells-group/leadcheck/pkg/anthropic"
	"github.com/sells-group/leadcheck/pkg/scrapingdog"
	"github.com/sells-group/leadcheck/pkg/taskqueue"
)

// appEnv holds the initialized store, clients, and services shared by the
// validate/discover/serve commands.
type appEnv struct {
	Store   store.Store
	Checker *reachability.Checker
	Runner  *validation.Runner
	Review  *review.Service
	Queue   taskqueue.Publisher
	redis   *redis.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if e.Queue != nil {
		e.Queue.Close()
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

// initStore opens the Postgres store and applies migrations.
func initStore(ctx context.Context) (store.Store, error) {
	if cfg.Store.DatabaseURL == "" {
		return nil, eris.New("database URL is required (LEADCHECK_STORE_DATABASE_URL)")
	}

	st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
		MaxConns: int32(cfg.Store.MaxConns),
	})
	if err != nil {
		return nil, eris.Wrap(err, "open store")
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initEnv wires the store, API clients, lock, and task queue into the
// validation and review services. Callers should defer env.Close().
func initEnv(ctx context.Context) (*appEnv, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}

	checker := reachability.NewChecker(reachability.WithHTTPClient(&http.Client{
		Timeout: time.Duration(cfg.Validation.TimeoutSecs) * time.Second,
	}))

	if cfg.Scrapingdog.Key == "" {
		_ = st.Close()
		return nil, eris.New("scrapingdog key is required (LEADCHECK_SCRAPINGDOG_KEY)")
	}
	if cfg.Anthropic.Key == "" {
		_ = st.Close()
		return nil, eris.New("anthropic key is required (LEADCHECK_ANTHROPIC_KEY)")
	}

	searchClient := scrapingdog.NewClient(cfg.Scrapingdog.Key,
		scrapingdog.WithBaseURL(cfg.Scrapingdog.BaseURL))
	aiClient := anthropicpkg.NewClient(cfg.Anthropic.Key)
	judge := discovery.NewJudge(searchClient, aiClient, cfg.Anthropic.JudgeModel,
		discovery.WithResultCount(cfg.Scrapingdog.Results),
		discovery.WithMaxTokens(int64(cfg.Anthropic.MaxTokens)),
		discovery.WithDefaultCountry(cfg.Scrapingdog.Country),
	)

	env := &appEnv{Store: st, Checker: checker}

	var lockFactory validation.LockFactory
	if cfg.Redis.Addr != "" {
		env.redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rdb := env.redis
		lockFactory = func(name, city, state string) validation.Locker {
			return lock.New(rdb, lock.Key(name, city, state), lock.DefaultTTL)
		}
	} else {
		zap.L().Debug("redis not configured, discovery lock disabled")
	}

	if cfg.NATS.URL != "" {
		queue, err := taskqueue.NewNATS(cfg.NATS.URL)
		if err != nil {
			// Publishing is an optimization; the scheduled sweep still runs.
			zap.L().Warn("nats connect failed, task publishing disabled", zap.Error(err))
		} else {
			env.Queue = queue
		}
	}

	orch := validation.NewOrchestrator(st, checker, judge, lockFactory)
	env.Runner = validation.NewRunner(orch, cfg.Validation.BatchSize, cfg.Validation.BatchesPerMinute)
	env.Review = review.NewService(st, checker, env.Queue)

	return env, nil
}
