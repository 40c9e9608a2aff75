package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/adserving/internal/antitargeting"
	"github.com/ignite/adserving/internal/api"
	"github.com/ignite/adserving/internal/auth"
	"github.com/ignite/adserving/internal/catalog"
	"github.com/ignite/adserving/internal/config"
	"github.com/ignite/adserving/internal/delivery"
	"github.com/ignite/adserving/internal/domain"
	"github.com/ignite/adserving/internal/eligibility"
	"github.com/ignite/adserving/internal/eventlog"
	"github.com/ignite/adserving/internal/metrics"
	"github.com/ignite/adserving/internal/pkg/distlock"
	"github.com/ignite/adserving/internal/pkg/httpretry"
	"github.com/ignite/adserving/internal/pkg/logger"
	"github.com/ignite/adserving/internal/preferences"
	"github.com/ignite/adserving/internal/profile"
	"github.com/ignite/adserving/internal/repository/postgres"
	"github.com/ignite/adserving/internal/selection"
	"github.com/ignite/adserving/internal/serving"
	"github.com/ignite/adserving/internal/state"
	"github.com/ignite/adserving/internal/storage"
)

func setupLogging(cfg *config.Config) {
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetRedact(cfg.Log.RedactEnabled())
}

// app owns the external connections. Each is opened on first use.
type app struct {
	cfg *config.Config

	db     *sql.DB
	redis  *redis.Client
	awsCfg *aws.Config
}

func newApp(_ context.Context, cfg *config.Config) (*app, error) {
	return &app{cfg: cfg}, nil
}

// Close releases every opened connection.
func (a *app) Close() {
	if a.db != nil {
		a.db.Close()
	}
	if a.redis != nil {
		a.redis.Close()
	}
}

func openDB(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database.url is not set")
	}
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	log.Println("Connected to database")
	return db, nil
}

func (a *app) database(ctx context.Context) (*sql.DB, error) {
	if a.db == nil {
		db, err := openDB(ctx, a.cfg.Database)
		if err != nil {
			return nil, err
		}
		a.db = db
	}
	return a.db, nil
}

func (a *app) redisClient(ctx context.Context) (*redis.Client, error) {
	if a.redis == nil {
		c := redis.NewClient(&redis.Options{
			Addr:     a.cfg.Redis.Addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		if err := c.Ping(ctx).Err(); err != nil {
			c.Close()
			return nil, fmt.Errorf("ping redis %s: %w", a.cfg.Redis.Addr, err)
		}
		log.Printf("Connected to Redis at %s", a.cfg.Redis.Addr)
		a.redis = c
	}
	return a.redis, nil
}

func (a *app) aws(ctx context.Context) (aws.Config, error) {
	if a.awsCfg == nil {
		c, err := storage.LoadAWSConfig(ctx, a.cfg.AWS.Options())
		if err != nil {
			return aws.Config{}, err
		}
		a.awsCfg = &c
	}
	return *a.awsCfg, nil
}

// loader returns a document loader able to read location.
func (a *app) loader(ctx context.Context, location string) (storage.Loader, error) {
	r := storage.Router{File: storage.FileLoader{}}
	if strings.HasPrefix(location, "s3://") {
		c, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		r.S3 = storage.NewS3Loader(c)
	}
	return r, nil
}

func importCatalog(ctx context.Context, loader storage.Loader, location string, repo *postgres.CatalogRepo) (int, error) {
	data, err := loader.Load(ctx, location)
	if err != nil {
		return 0, err
	}
	doc, err := catalog.ParseDocument(data)
	if err != nil {
		return 0, err
	}
	if err := repo.ReplaceAll(ctx, doc.Ads); err != nil {
		return 0, err
	}
	return len(doc.Ads), nil
}

func profileSource(cfg *config.Config) serving.ProfileSource {
	return profile.NewFile(cfg.Profile.Path)
}

// service is the fully wired serving stack.
type service struct {
	orchestrator *serving.Orchestrator
	scheduler    *serving.Scheduler
	metrics      *metrics.Metrics
	events       serving.EventLog
	profile      serving.ProfileSource
	preferences  *preferences.Manager
	// auth is nil unless auth.enabled.
	auth *auth.AuthManager
	// catalog is set for the document backend so it can be reloaded.
	catalog *catalog.Memory
}

func (s *service) apiOptions(cfg *config.Config) api.Options {
	return api.Options{
		Scheduler:              s.scheduler,
		Events:                 s.events,
		Profile:                s.profile,
		Preferences:            s.preferences,
		Auth:                   s.auth,
		AdType:                 domain.AdType(cfg.Serving.AdType),
		MaxSegmentsPerCategory: cfg.Serving.MaxSegmentsPerCategory,
		Metrics:                s.metrics.Handler(),
		CORSOrigins:            cfg.Server.CORSOrigins,
		OnEvent:                s.metrics.EventRecorded,
	}
}

func (a *app) buildService(ctx context.Context) (*service, error) {
	cfg := a.cfg
	svc := &service{metrics: metrics.New(true), profile: profileSource(cfg)}

	candidates, err := a.candidates(ctx)
	if err != nil {
		return nil, err
	}
	if m, ok := candidates.(*catalog.Memory); ok {
		svc.catalog = m
	}
	if svc.events, err = a.eventLog(ctx); err != nil {
		return nil, err
	}
	store, err := a.stateStore(ctx)
	if err != nil {
		return nil, err
	}
	anti, err := a.antiTargeting(ctx)
	if err != nil {
		return nil, err
	}
	show, err := a.delivery()
	if err != nil {
		return nil, err
	}
	lock, err := a.cycleLock(ctx)
	if err != nil {
		return nil, err
	}
	prefStore, err := a.preferenceStore(ctx)
	if err != nil {
		return nil, err
	}
	svc.preferences = preferences.NewManager(prefStore)
	if err := svc.preferences.Load(ctx); err != nil {
		return nil, err
	}
	if cfg.Auth.Enabled {
		svc.auth = auth.NewAuthManager(&cfg.Auth, authBaseURL(cfg))
	}

	loc, err := cfg.Serving.Location()
	if err != nil {
		return nil, err
	}
	opts := eligibility.Options{
		Caps:        cfg.Serving.Caps(),
		Preferences: svc.preferences,
		Location:    loc,
		OnExclude:   svc.metrics.OnExclude,
	}
	if anti != nil {
		opts.AntiTargeting = anti
	}
	if cfg.Serving.RoundRobinEnabled() {
		opts.Seen = eligibility.NewSeenTracker()
	}

	rnd := selection.DefaultRand()
	svc.orchestrator = serving.NewOrchestrator(serving.Deps{
		Candidates:             candidates,
		Events:                 svc.events,
		Delivery:               show,
		Profile:                svc.profile,
		Rules:                  eligibility.New(opts),
		Pacer:                  selection.NewPacer(rnd),
		Allocator:              selection.NewAllocator(rnd),
		Lock:                   lock,
		Observer:               svc.metrics,
		MaxSegmentsPerCategory: cfg.Serving.MaxSegmentsPerCategory,
		AdType:                 domain.AdType(cfg.Serving.AdType),
	})
	svc.scheduler = serving.NewScheduler(svc.orchestrator, store, clockwork.NewRealClock(), cfg.Serving.Scheduler())
	return svc, nil
}

func (a *app) candidates(ctx context.Context) (serving.CandidateSource, error) {
	switch a.cfg.Catalog.Backend {
	case "postgres":
		db, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.NewCatalogRepo(db), nil
	default:
		loader, err := a.loader(ctx, a.cfg.Catalog.Location)
		if err != nil {
			return nil, err
		}
		return catalog.Load(ctx, loader, a.cfg.Catalog.Location)
	}
}

func (a *app) eventLog(ctx context.Context) (serving.EventLog, error) {
	if a.cfg.Events.Backend == "postgres" {
		db, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.NewEventRepo(db), nil
	}
	return eventlog.NewFileLog(a.cfg.Events.Path)
}

func (a *app) stateStore(ctx context.Context) (serving.StateStore, error) {
	id := a.cfg.Profile.ID
	switch a.cfg.State.Backend {
	case "memory":
		return &state.Memory{}, nil
	case "redis":
		c, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return state.NewRedisStore(c, id), nil
	case "dynamodb":
		c, err := a.aws(ctx)
		if err != nil {
			return nil, err
		}
		return state.NewDynamoStore(c, a.cfg.State.DynamoDBTable, id), nil
	case "postgres":
		db, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return postgres.NewStateRepo(db, id), nil
	default:
		return state.NewFileStore(a.cfg.State.Path), nil
	}
}

func (a *app) preferenceStore(ctx context.Context) (preferences.Store, error) {
	switch a.cfg.Preferences.Backend {
	case "memory":
		return &preferences.Memory{}, nil
	case "redis":
		c, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return preferences.NewRedisStore(c, a.cfg.Profile.ID), nil
	default:
		return preferences.NewFileStore(a.cfg.Preferences.Path), nil
	}
}

// authBaseURL is the public origin for the OAuth redirect.
func authBaseURL(cfg *config.Config) string {
	if cfg.Auth.BaseURL != "" {
		return cfg.Auth.BaseURL
	}
	return fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
}

// antiTargeting returns nil when no list is configured.
func (a *app) antiTargeting(ctx context.Context) (eligibility.AntiTargeting, error) {
	location := a.cfg.AntiTargeting.Location
	if location == "" {
		return nil, nil
	}
	loader, err := a.loader(ctx, location)
	if err != nil {
		return nil, err
	}
	list, err := antitargeting.Load(ctx, loader, location)
	if err != nil {
		return nil, err
	}
	return list, nil
}

func (a *app) delivery() (serving.Delivery, error) {
	d := a.cfg.Delivery
	r, err := delivery.NewRenderer(d.TitleTemplate, d.BodyTemplate)
	if err != nil {
		return nil, err
	}
	if d.Mode == "webhook" {
		client := httpretry.NewRetryClient(&http.Client{Timeout: d.Timeout()}, d.MaxRetries)
		return delivery.NewWebhook(r, client, d.WebhookURL, d.WebhookToken), nil
	}
	return delivery.NewLogDelivery(r), nil
}

// cycleLock returns nil unless the lock is enabled. Redis is preferred over
// PostgreSQL when both are configured.
func (a *app) cycleLock(ctx context.Context) (serving.CycleLock, error) {
	l := a.cfg.Serving.Lock
	if !l.Enabled {
		return nil, nil
	}
	key := l.Key + ":" + a.cfg.Profile.ID
	switch {
	case a.cfg.Redis.Enabled():
		c, err := a.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return distlock.NewLock(c, nil, key, l.TTL()), nil
	case a.cfg.Database.URL != "":
		db, err := a.database(ctx)
		if err != nil {
			return nil, err
		}
		return distlock.NewLock(nil, db, key, l.TTL()), nil
	}
	return distlock.NewLock(nil, nil, key, l.TTL()), nil
}
