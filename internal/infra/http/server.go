package http

import (
	"context"
	"fmt"
	"log"
	"time"

	"incidentproxy/internal/config"
	"incidentproxy/internal/domain"
	"incidentproxy/internal/extractor"
	"incidentproxy/internal/infra/artifactstore"
	"incidentproxy/internal/infra/db"
	"incidentproxy/internal/infra/dedupcache"
	"incidentproxy/internal/infra/taxonomy"
	"incidentproxy/internal/usecase"

	"github.com/gin-gonic/gin"
)

// Version is reported by /isalive.
const Version = "1.2.0"

type Server struct {
	cfg       *config.Config
	store     *db.Store
	artifacts *artifactstore.Store
	r         *gin.Engine

	repo      usecase.IncidentDatabase
	summary   *db.IncidentRepository
	directory *usecase.SubscriberDirectory
	delivery  *usecase.DeliveryEngine
	ingestUC  *usecase.IngestPush
	replayUC  *usecase.Replay

	pollers []*extractor.Poller
	now     func() time.Time
}

func NewServer(cfg *config.Config, store *db.Store) (*Server, error) {
	r := gin.New()
	r.Use(gin.Recovery())

	s := &Server{cfg: cfg, store: store, r: r, now: time.Now}
	if err := s.initDeps(); err != nil {
		return nil, err
	}
	s.routes()
	return s, nil
}

func (s *Server) initDeps() error {
	s.artifacts = artifactstore.New(s.cfg.DumpFolder)

	repo := db.NewIncidentRepository(nil)
	if s.store != nil {
		repo = db.NewIncidentRepository(s.store.DB)
	}
	s.repo = repo
	s.summary = repo

	var normalizer extractor.Normalizer
	if s.cfg.Taxonomy.File != "" {
		n, err := taxonomy.Load(s.cfg.Taxonomy.File, s.cfg.Taxonomy.Strict)
		if err != nil {
			return fmt.Errorf("load taxonomy: %w", err)
		}
		normalizer = n
	}
	formatter := extractor.NewFormatter(normalizer)

	var history domain.DedupCache
	if s.cfg.RedisAddr != "" {
		cache, err := dedupcache.NewRedisCache(s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, 0)
		if err != nil {
			return fmt.Errorf("init redis dedup cache: %w", err)
		}
		history = cache
	} else {
		history = dedupcache.NewMemoryCache(0)
	}

	s.directory = usecase.NewSubscriberDirectory(s.cfg.Subscriptions.Witnesses, s.cfg.ShuffleTTL())
	s.delivery = usecase.NewDeliveryEngine(s.cfg, s.directory)

	batchFor := func(provider string) (*extractor.Batch, error) {
		providerCfg := s.cfg.Providers[provider]
		ex, err := extractor.For(provider, providerCfg)
		if err != nil {
			return nil, err
		}
		batch := &extractor.Batch{Extractor: ex, Formatter: formatter}
		// Polled feeds repeat upcoming events on every fetch; the
		// history cache keeps them from being re-ingested.
		if providerCfg.Poll != nil {
			batch.History = history
		}
		return batch, nil
	}

	s.ingestUC = &usecase.IngestPush{
		Store:    s.artifacts,
		DB:       s.repo,
		Delivery: s.delivery,
		BatchFor: batchFor,
	}
	s.replayUC = &usecase.Replay{
		Cfg:       s.cfg,
		Store:     s.artifacts,
		DB:        s.repo,
		Delivery:  s.delivery,
		Directory: s.directory,
		Formatter: formatter,
	}

	for name, providerCfg := range s.cfg.Providers {
		if providerCfg.Poll == nil {
			continue
		}
		push := func(ctx context.Context, provider string, payload []byte, ext string) error {
			_, err := s.ingestUC.Execute(ctx, provider, payload, ext, nil, true)
			return err
		}
		s.pollers = append(s.pollers, extractor.NewPoller(name, *providerCfg.Poll, push))
	}
	return nil
}

func (s *Server) routes() {
	s.r.GET("/healthz", func(c *gin.Context) {
		dbMode := "no-db"
		if s.store != nil && s.store.DB != nil {
			dbMode = "db"
		}
		c.JSON(200, gin.H{"status": "ok", "mode": dbMode})
	})

	s.r.GET("/push/:provider", s.handlePushInfo)
	s.r.POST("/push/:provider", s.handlePush)
	s.r.GET("/replay", s.handleReplay)
	s.r.GET("/isalive", s.handleIsAlive)
	s.r.GET("/statistics", s.handleStatistics)

	s.r.NoRoute(s.handleNoRoute)
}

// Run starts the background pollers and serves HTTP until the process
// ends.
func (s *Server) Run() error {
	for _, poller := range s.pollers {
		go poller.Run(context.Background())
	}
	log.Printf("http: listening on %s", s.cfg.HTTPAddr)
	return s.r.Run(s.cfg.HTTPAddr)
}
