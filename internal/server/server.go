package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/FACorreiaa/loci-challenges/internal/app/domain/challenges"
	"github.com/FACorreiaa/loci-challenges/internal/app/domain/descriptions"
	"github.com/FACorreiaa/loci-challenges/internal/app/domain/poi"
	"github.com/FACorreiaa/loci-challenges/internal/app/models"
	database "github.com/FACorreiaa/loci-challenges/internal/db"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/cache"
	"github.com/FACorreiaa/loci-challenges/internal/pkg/config"
)

// Server holds the dependencies for the HTTP server
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	dbPool *pgxpool.Pool
	redis  *redis.Client
	nats   *nats.Conn
	pools  cache.PoolStore
	sub    *nats.Subscription
	engine *Engine
	router http.Handler
}

// Engine is the wired challenge engine.
type Engine struct {
	Maintainer *challenges.Maintainer
	Viewers    *challenges.ViewerRegistry
	Events     challenges.Publisher
	Handler    *challenges.Handler
}

// New creates a new Server instance with all dependencies
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
	}

	dbPool, err := s.setupDatabase(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}
	s.dbPool = dbPool

	s.pools = s.setupPoolStore(ctx)

	if err := s.setupEngine(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

// setupDatabase initializes the database connection and runs migrations
func (s *Server) setupDatabase(ctx context.Context) (*pgxpool.Pool, error) {
	pg := s.cfg.Repositories.Postgres
	connURL, err := database.ConnectionURL(pg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database configuration: %w", err)
	}

	pool, err := database.Init(ctx, connURL, pg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database pool: %w", err)
	}

	if !database.WaitForDB(ctx, pool, s.logger) {
		pool.Close()
		return nil, fmt.Errorf("database at %s:%s is unreachable", pg.Host, pg.Port)
	}
	s.logger.Info("Connected to Postgres",
		zap.String("host", pg.Host),
		zap.String("port", pg.Port),
		zap.String("database", pg.DB))

	if err = database.RunMigrations(connURL, s.logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return pool, nil
}

// setupPoolStore picks Redis when configured and reachable, process memory otherwise.
func (s *Server) setupPoolStore(ctx context.Context) cache.PoolStore {
	retention := 2 * s.cfg.Challenges.PoolTTL
	rc := s.cfg.Repositories.Redis
	if rc.Addr == "" {
		s.logger.Info("REDIS_ADDR not set, caching challenge pools in memory")
		return cache.NewMemoryPoolStore(retention, s.logger)
	}

	client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		s.logger.Warn("Redis unreachable, caching challenge pools in memory", zap.String("addr", rc.Addr), zap.Error(err))
		_ = client.Close()
		return cache.NewMemoryPoolStore(retention, s.logger)
	}
	s.redis = client
	s.logger.Info("Caching challenge pools in Redis", zap.String("addr", rc.Addr))
	return cache.NewRedisPoolStore(client, retention, s.logger)
}

func engineConfig(cfg *config.Config) (challenges.Config, error) {
	c := challenges.DefaultConfig()
	cc := cfg.Challenges
	if cc.CreatorID != "" {
		id, err := uuid.Parse(cc.CreatorID)
		if err != nil {
			return c, fmt.Errorf("invalid CHALLENGE_CREATOR_ID %q: %w", cc.CreatorID, err)
		}
		c.CreatorID = id
	}
	c.TargetCount = cc.TargetCount
	c.SearchRadiusMeters = cc.SearchRadiusMeters
	c.MinDistanceMeters = cc.MinDistanceMeters
	c.ReplacementMinDistanceMeters = cc.ReplacementMinDistanceMeters
	c.PoolTTL = cc.PoolTTL
	c.CompletedWindow = cc.CompletedWindow
	c.MaxParticipants = cc.MaxParticipants
	c.EnrichConcurrency = cc.EnrichConcurrency
	c.ReconcileEphemeral = cc.ReconcileEphemeral
	c.RefreshTimeout = cc.RefreshTimeout
	c.CategoryCaps = map[models.Category]int{models.CategoryRestaurant: cc.RestaurantCap}
	c.DefaultCategoryCap = cc.DefaultCategoryCap
	c.TopUpBand = challenges.DistanceBand{MinMeters: cc.TopUpMinMeters, MaxMeters: cc.TopUpMaxMeters}
	c.StaticBand = challenges.DistanceBand{MinMeters: cc.StaticMinMeters, MaxMeters: cc.StaticMaxMeters}
	c.DescriptionTimeout = cfg.Services.DescriptionTimeout
	return c, nil
}

func (s *Server) setupEngine(ctx context.Context) error {
	ecfg, err := engineConfig(s.cfg)
	if err != nil {
		return err
	}
	if err := ecfg.Validate(); err != nil {
		return fmt.Errorf("invalid challenge configuration: %w", err)
	}
	svc := s.cfg.Services

	pois := poi.NewOverpassClient(svc.OverpassURL, svc.OverpassTimeout, svc.POIMemoTTL, s.logger)
	describer := descriptions.New(ctx, svc.GeminiAPIKey, svc.DescriptionMemoTTL, s.logger)
	synth := challenges.NewSynthesizer(describer, ecfg.DescriptionTimeout, s.logger)

	repo := challenges.NewRepository(s.dbPool, s.logger)
	generator := challenges.NewPoolGenerator(pois, synth, repo, ecfg, s.logger)
	replacement := challenges.NewReplacementGenerator(pois, synth, repo, ecfg, s.logger)
	viewers := challenges.NewViewerRegistry(ecfg.PoolTTL, nil)
	maintainer := challenges.NewMaintainer(s.pools, repo, generator, replacement, viewers, ecfg, s.logger)

	var events challenges.Publisher
	if svc.NATSURL != "" {
		conn, err := nats.Connect(svc.NATSURL, nats.Name("loci-challenges"), nats.MaxReconnects(-1))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", svc.NATSURL, err)
		}
		s.nats = conn
		natsEvents := challenges.NewNATSEvents(conn, s.logger)
		if s.sub, err = natsEvents.Subscribe(maintainer.HandleCompletion); err != nil {
			return err
		}
		events = natsEvents
		s.logger.Info("Publishing completion events on NATS", zap.String("subject", challenges.CompletedSubject))
	} else {
		events = challenges.NewLocalEvents(maintainer.HandleCompletion, s.logger)
	}

	s.engine = &Engine{
		Maintainer: maintainer,
		Viewers:    viewers,
		Events:     events,
		Handler:    challenges.NewHandler(maintainer, repo, events, s.logger),
	}
	return nil
}

// HTTPServer creates and configures the HTTP server
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         ":" + s.cfg.ServerPort,
		Handler:      s.router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
}

// SetRouter sets the HTTP router/handler
func (s *Server) SetRouter(router http.Handler) {
	s.router = router
}

// Ready reports whether the Challenge Store answers.
func (s *Server) Ready(ctx context.Context) error {
	if s.dbPool == nil {
		return fmt.Errorf("database not initialized")
	}
	return s.dbPool.Ping(ctx)
}

// Stats reports engine state for the health endpoint.
func (s *Server) Stats() gin.H {
	stats := gin.H{"active_viewers": s.engine.Viewers.Len()}
	if mem, ok := s.pools.(*cache.MemoryPoolStore); ok {
		m := mem.Metrics()
		stats["pool_cache"] = gin.H{"backend": "memory", "hits": m.Hits, "misses": m.Misses}
	} else {
		stats["pool_cache"] = gin.H{"backend": "redis"}
	}
	return stats
}

// Close closes all server resources
func (s *Server) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nats != nil {
		if err := s.nats.Drain(); err != nil {
			s.logger.Warn("Failed to drain NATS connection", zap.Error(err))
		}
	}
	if closer, ok := s.pools.(interface{ Close() }); ok {
		closer.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.dbPool != nil {
		s.dbPool.Close()
	}
}
