package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ivkov/inboxtriage/internal/audit"
	"github.com/ivkov/inboxtriage/internal/config"
	"github.com/ivkov/inboxtriage/internal/gmail"
	"github.com/ivkov/inboxtriage/internal/history"
	"github.com/ivkov/inboxtriage/internal/instrumentation"
	"github.com/ivkov/inboxtriage/internal/model"
	"github.com/ivkov/inboxtriage/internal/storage"
	"github.com/ivkov/inboxtriage/internal/triage"
)

// pipeline bundles the wired triage components and their shared database.
type pipeline struct {
	orchestrator *triage.Orchestrator
	audit        *audit.Store
	db           *storage.DB
}

// Close releases the database handle.
func (p *pipeline) Close() error {
	return p.db.Close()
}

// buildPipeline wires the full processing chain from the configuration:
// Gmail mailbox, both model clients, the four stages, the SQLite-backed
// history and audit stores.
func buildPipeline(ctx context.Context, cfg config.Config, dryRun bool, metrics *instrumentation.Metrics, logger *slog.Logger) (*pipeline, error) {
	if err := cfg.ValidateModels(); err != nil {
		return nil, err
	}

	db, err := storage.Open(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	mailbox, err := gmail.NewClientForAccount(ctx, cfg.Account, logger, gmail.WithMetrics(metrics))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create Gmail client for account %s: %w", cfg.Account, err)
	}

	classifierModel := model.NewClient(model.Config{
		BaseURL: cfg.Classifier.BaseURL,
		APIKey:  cfg.Classifier.APIKey,
		Model:   cfg.Classifier.Model,
		Timeout: cfg.Classifier.Timeout.Std(),
	}, logger)
	analyzerModel := model.NewClient(model.Config{
		BaseURL: cfg.Analyzer.BaseURL,
		APIKey:  cfg.Analyzer.APIKey,
		Model:   cfg.Analyzer.Model,
		Timeout: cfg.Analyzer.Timeout.Std(),
	}, logger)

	retry := triage.RetryPolicy{
		Attempts: cfg.Pipeline.RetryAttempts,
		Delay:    cfg.Pipeline.RetryDelay.Std(),
	}
	templates := triage.NewTemplates(cfg.Signature)

	auditStore := audit.NewStore(db.Conn())
	historyStore := history.NewStore(db.Conn(), cfg.Pipeline.HistoryWindow.Std())

	classifier := triage.NewClassifierStage(classifierModel, retry, logger)
	analyzer := triage.NewAnalysisStage(analyzerModel, retry, triage.AnalysisConfig{
		ConfidenceThreshold: cfg.Pipeline.ConfidenceThreshold,
		RiskKeywords:        cfg.Pipeline.RiskKeywords,
		MaxParties:          cfg.Pipeline.MaxParties,
	}, templates, logger)
	categorizer := triage.NewCategorizer(templates, logger)
	delivery := triage.NewDeliveryAgent(mailbox, auditStore, retry, logger)
	delivery.DryRun = dryRun

	orchestrator := triage.NewOrchestrator(
		mailbox, classifier, analyzer, categorizer, delivery, historyStore, logger,
		triage.WithBatchSize(cfg.Pipeline.BatchSize),
		triage.WithMetrics(metrics),
	)

	return &pipeline{orchestrator: orchestrator, audit: auditStore, db: db}, nil
}
