package app

import (
	"context"
	"fmt"
	"time"

	"github.com/MustafaMerchant21/Nova/internal/application/doctor"
	"github.com/MustafaMerchant21/Nova/internal/application/gate"
	"github.com/MustafaMerchant21/Nova/internal/domain"
	"github.com/MustafaMerchant21/Nova/internal/infrastructure/config"
	"github.com/MustafaMerchant21/Nova/internal/infrastructure/executor"
	"github.com/MustafaMerchant21/Nova/internal/infrastructure/history"
	"github.com/MustafaMerchant21/Nova/internal/infrastructure/security"
	"github.com/MustafaMerchant21/Nova/internal/pkg/logger"
	"github.com/MustafaMerchant21/Nova/internal/ports"
)

// Options tune container construction. Empty paths use the defaults under ~/.nova.
type Options struct {
	Verbose    bool
	ConfigPath string
	HistoryDir string
}

// Container wires up application services with infrastructure adapters.
type Container struct {
	Config         domain.Config
	ConfigProvider ports.ConfigProvider
	ConfigLoader   *config.FileLoader
	Rules          *security.RulesStore
	Validator      *gate.SharedValidator
	Gate           *gate.Service
	DoctorService  *doctor.Service
	HistoryStore   ports.AuditRepository
	Logger         *logger.SlogLogger
}

// BuildContainer constructs the dependency graph.
func BuildContainer(ctx context.Context, opts Options) (*Container, error) {
	log := logger.NewStd(opts.Verbose)

	cfgLoader := config.NewFileLoader(opts.ConfigPath)
	cfg, err := cfgLoader.Load(ctx)
	if err != nil {
		return nil, err
	}
	policy, err := cfg.GetPolicy()
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgLoader.Path(), err)
	}
	validatorOpts, err := security.OptionsFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", cfgLoader.Path(), err)
	}

	rules := security.NewRulesStore(cfg.Security.RulesFile)
	if created, err := rules.EnsureDefault(); err != nil {
		log.Warn("could not write default rules file", map[string]interface{}{"path": rules.Path(), "error": err.Error()})
	} else if created {
		log.Info("wrote default rules file", map[string]interface{}{"path": rules.Path()})
	}
	validator := gate.NewSharedValidator(security.LoadValidator(validatorOpts, rules), rules)

	var audit ports.AuditRepository
	if cfg.IsHistoryEnabled() {
		audit = history.Open(&cfg, opts.HistoryDir)
		if sqlite, ok := audit.(*history.SQLiteStore); ok && sqlite.UsingFallback() {
			log.Warn("sqlite unavailable, recording history as jsonl", map[string]interface{}{"path": audit.Path()})
		}
		cutoff := time.Now().AddDate(0, 0, -cfg.GetHistoryRetentionDays())
		if removed, err := audit.PruneOlderThan(ctx, cutoff); err != nil {
			log.Warn("history retention prune failed", map[string]interface{}{"path": audit.Path(), "error": err.Error()})
		} else if removed > 0 {
			log.Debug("pruned old history", map[string]interface{}{"removed": removed})
		}
	}

	executors := executor.NewFactory(executor.OptionsFromConfig(&cfg, log))

	gateService := &gate.Service{
		Validator: validator,
		Executors: executors,
		Audit:     audit,
		Policy:    policy,
		Logger:    log,
	}

	doctorService := &doctor.Service{
		ConfigProvider:  cfgLoader,
		Validator:       validator,
		Rules:           rules,
		Audit:           audit,
		Executors:       executors,
		ResolveShell:    executor.ResolveShell,
		AvailableShells: executor.AvailableShells,
	}

	return &Container{
		Config:         cfg,
		ConfigProvider: cfgLoader,
		ConfigLoader:   cfgLoader,
		Rules:          rules,
		Validator:      validator,
		Gate:           gateService,
		DoctorService:  doctorService,
		HistoryStore:   audit,
		Logger:         log,
	}, nil
}
