package app

import (
	"fmt"
	"time"

	"gradebook/internal/capture"
	"gradebook/internal/config"
	"gradebook/internal/contextbuilder"
	"gradebook/internal/logger"
	"gradebook/internal/memory"
	"gradebook/internal/pricing"
	"gradebook/internal/recall"
	"gradebook/internal/scorer"
	"gradebook/internal/store/gormstore"
	apihttp "gradebook/internal/transport/http/api"
)

// buildApp assembles the component graph from the loaded config.
func buildApp(cfg *config.Config) (*App, error) {
	st, err := gormstore.NewGormStore(cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening outcome store failed: %w", err)
	}

	prices := pricing.NewBinance(pricing.BinanceConfig{
		RESTBaseURL: cfg.Pricing.RESTBaseURL,
		HTTPTimeout: cfg.Pricing.Timeout(),
	})

	var (
		memSvc    memory.Service
		memSyncer *memory.Syncer
	)
	if cfg.Memory.Enabled {
		client, err := memory.NewClient(memory.ClientConfig{
			BaseURL:          cfg.Memory.BaseURL,
			APIKey:           cfg.Memory.APIKey,
			TimeoutSeconds:   cfg.Memory.TimeoutSeconds,
			BreakerThreshold: cfg.Memory.BreakerThreshold,
			BreakerCooldown:  time.Duration(cfg.Memory.BreakerCooldownSecs) * time.Second,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("building memory client failed: %w", err)
		}
		memSvc = client
		memSyncer = memory.NewSyncer(client, st, memory.SyncConfig{
			MaxAttempts:    cfg.Memory.MaxAttempts,
			InitialBackoff: time.Duration(cfg.Memory.InitialBackoffSeconds) * time.Second,
			MaxBackoff:     time.Duration(cfg.Memory.MaxBackoffSeconds) * time.Second,
		})
	} else {
		logger.Infof("memory sync disabled, graded outcomes stay local")
	}

	scoreOpts := []scorer.Option{
		scorer.WithMaxParallel(cfg.Scorer.MaxParallel),
		scorer.WithBatchLimit(cfg.Scorer.BatchLimit),
	}
	if memSyncer != nil {
		scoreOpts = append(scoreOpts, scorer.WithSyncer(memSyncer))
	}
	sc := scorer.New(st, prices, scoreOpts...)

	recallOpts := []recall.Option{
		recall.WithQueryTimeout(time.Duration(cfg.Recall.QueryTimeoutSeconds) * time.Second),
	}
	if memSvc != nil {
		recallOpts = append(recallOpts, recall.WithMemoryService(memSvc))
	}
	eng := recall.New(st, recallOpts...)

	ctxBuilder := contextbuilder.New(st, contextbuilder.Config{
		SymbolLimit:    cfg.Context.SymbolLimit,
		ConditionLimit: cfg.Context.ConditionLimit,
		WindowDays:     cfg.Context.WindowDays,
		ScanLimit:      cfg.Context.ScanLimit,
	})

	router := &apihttp.Router{
		Recorder: capture.NewRecorder(st),
		Recall:   eng,
		Context:  ctxBuilder,
		Store:    st,
	}
	if memSyncer != nil {
		router.Resync = memSyncer
	}
	srv, err := apihttp.NewServer(apihttp.ServerConfig{
		Addr:   cfg.App.HTTPAddr,
		Router: router,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building http server failed: %w", err)
	}

	return &App{
		cfg:    cfg,
		store:  st,
		scorer: sc,
		http:   srv,
	}, nil
}
