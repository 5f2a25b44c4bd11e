package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"

	"lumenlend/native/common"
	"lumenlend/native/lending"
	"lumenlend/observability/logging"
	"lumenlend/observability/otel"
	"lumenlend/services/lendingd/server"
	"lumenlend/storage"
	"lumenlend/storage/ledgerstore"
)

const serviceName = "lendingd"

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "path to lendingd YAML config")
	flag.Parse()

	cfg, err := LoadConfig(configPath)
	if err != nil {
		logging.Setup(serviceName, "").Error("load config", "error", err)
		os.Exit(1)
	}
	log := logging.Setup(serviceName, cfg.Environment)
	if err := cfg.Validate(); err != nil {
		log.Error("invalid config", "error", err)
		os.Exit(1)
	}
	log.Info("starting", "config", cfg.Sanitized())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.OTELEndpoint != "" {
		shutdown, err := otel.Init(ctx, otel.Config{
			ServiceName: serviceName,
			Environment: cfg.Environment,
			Endpoint:    cfg.OTELEndpoint,
			Insecure:    cfg.OTELInsecure,
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			log.Error("telemetry init", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Warn("telemetry shutdown", "error", err)
			}
		}()
	}

	params, err := loadLedgerParams(cfg.ParamsFile)
	if err != nil {
		log.Error("load ledger params", "error", err)
		os.Exit(1)
	}

	db, err := storage.NewLevelDB(cfg.DataDir)
	if err != nil {
		log.Error("open state database", "error", err, "dir", cfg.DataDir)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Warn("close state database", "error", err)
		}
	}()

	pauses := common.NewSwitchboard()

	engine := lending.NewEngine(params)
	engine.SetState(ledgerstore.New(db))
	engine.SetVault(newVaultClient(cfg.VaultURL))
	engine.SetOracle(newOracleClient(cfg.OracleURL))
	authority := newAuthorityClient(cfg.AuthorityURL)
	engine.SetAuthority(authority)
	engine.SetSupplyEstimator(newSupplyClient(cfg.AuthorityURL))
	if cfg.YieldURL != "" {
		engine.SetYieldSink(newYieldClient(cfg.YieldURL, "yield-pool"))
	}
	engine.SetRateModel(lending.DefaultKinkedModel)
	engine.SetPauses(pauses)
	engine.SetTimestamp(uint64(time.Now().Unix()))

	srv := server.New(engine, pauses, log, server.WithAdminToken(cfg.AdminToken))
	httpSrv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srv.Router(cfg.RatePerMin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", cfg.Listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("serve", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", "error", err)
	}
	log.Info("stopped")
}

// loadLedgerParams reads the TOML risk parameter file; a missing path yields
// the protocol defaults.
func loadLedgerParams(path string) (lending.RiskParameters, error) {
	var cfg lending.Config
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return lending.RiskParameters{}, err
		}
	}
	return cfg.RiskParameters(), nil
}
