// Command agent runs the credential verification agent: it consumes
// presentation notices, validates credential chains against registered
// schema families, and delivers signed webhook notifications describing
// the outcome.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Will-Luck/sally-agent/internal/adminapi"
	"github.com/Will-Luck/sally-agent/internal/clock"
	"github.com/Will-Luck/sally-agent/internal/collab"
	"github.com/Will-Luck/sally-agent/internal/config"
	"github.com/Will-Luck/sally-agent/internal/ingest"
	"github.com/Will-Luck/sally-agent/internal/localstore"
	"github.com/Will-Luck/sally-agent/internal/logging"
	"github.com/Will-Luck/sally-agent/internal/metrics"
	"github.com/Will-Luck/sally-agent/internal/pipeline"
	"github.com/Will-Luck/sally-agent/internal/schema"
	"github.com/Will-Luck/sally-agent/internal/signing"
	"github.com/Will-Luck/sally-agent/internal/store"
	"github.com/Will-Luck/sally-agent/internal/transport/directqueue"
	"github.com/Will-Luck/sally-agent/internal/transport/mqttqueue"
	"github.com/Will-Luck/sally-agent/internal/webhook"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogJSON)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	log.Info("starting agent", "alias", cfg.Alias, "mode", cfg.Mode)

	escrow, err := store.Open(cfg.DBPath)
	if err != nil {
		log.Error("failed to open escrow store", "error", err)
		os.Exit(1)
	}
	defer escrow.Close()

	if cfg.ClearEscrows {
		if err := escrow.Clear(); err != nil {
			log.Error("failed to clear escrows", "error", err)
			os.Exit(1)
		}
		log.Info("escrow tables cleared at startup")
	}

	credStore, err := localstore.Open(cfg.DBPath + ".creds")
	if err != nil {
		log.Error("failed to open credential store", "error", err)
		os.Exit(1)
	}
	defer credStore.Close()

	mappings, err := cfg.SchemaMappingPairs()
	if err != nil {
		log.Error("failed to parse schema mappings", "error", err)
		os.Exit(1)
	}
	registry, err := schema.NewRegistry(mappings)
	if err != nil {
		log.Error("failed to build schema registry", "error", err)
		os.Exit(1)
	}
	dispatcher := schema.NewDispatcher(registry, credStore, cfg.AuthorityAID)

	signer, err := loadSigner(cfg.InceptionFile)
	if err != nil {
		log.Error("failed to load signing key", "error", err)
		os.Exit(1)
	}

	webhookClient := webhook.NewClient(cfg.WebhookURL, signer)

	queue, queueHandler, err := buildQueue(cfg)
	if err != nil {
		log.Error("failed to build notification queue", "error", err)
		os.Exit(1)
	}

	deps := pipeline.Dependencies{
		Escrow:     escrow,
		ACDC:       credStore,
		TEL:        credStore,
		Dispatcher: dispatcher,
		Webhook:    webhookClient,
		Clock:      clock.Real{},
		Log:        log,
		Timeout:    cfg.EscrowTimeout(),
	}
	parser := &ingest.Parser{Store: credStore}
	p := pipeline.New(deps, queue, parser)

	sched := pipeline.NewScheduler(p, cfg.SweepInterval(), clock.Real{}, log)
	sched.SetSettingsReader(escrow)
	if sweepSchedule, err := cfg.SweepSchedule(); err != nil {
		log.Error("failed to parse sweep cron", "error", err)
		os.Exit(1)
	} else if sweepSchedule != nil {
		sched.SetSchedule(sweepSchedule)
		log.Info("sweep schedule overridden by cron", "cron", cfg.SweepCron())
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
	})
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}
	if cfg.MetricsTextfile != "" {
		go runTextfileWriter(ctx, cfg.MetricsTextfile, cfg.MetricsInterval, log)
	}
	if queueHandler != nil {
		mux.Handle("POST /", queueHandler)
	}

	adminHandler := &adminapi.Handler{
		Settings:  escrow,
		Escrow:    escrow,
		TokenHash: cfg.AdminTokenHash,
		Log:       log,
	}
	mux.Handle("/admin/", http.StripPrefix("/admin", adminHandler.Mux()))

	srv := &http.Server{
		Addr:    net.JoinHostPort("", cfg.HTTPPort),
		Handler: mux,
	}

	go func() {
		sched.Run(ctx)
	}()

	go func() {
		log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutCancel()
	_ = srv.Shutdown(shutCtx)

	if closer, ok := queue.(interface{ Close() }); ok {
		closer.Close()
	}
}

// runTextfileWriter periodically dumps current metrics to path in Prometheus
// textfile-collector format, for hosts that scrape via node_exporter rather
// than hitting /metrics directly.
func runTextfileWriter(ctx context.Context, path string, interval time.Duration, log *logging.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := metrics.WriteTextfile(path); err != nil {
				log.Warn("write metrics textfile", "path", path, "error", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

// buildQueue selects the notification transport named by cfg.Mode. Direct
// mode returns an http.Handler to mount on the agent's own server; indirect
// mode dials the configured MQTT broker and returns no handler.
func buildQueue(cfg *config.Config) (collab.NotificationQueue, http.Handler, error) {
	switch cfg.Mode {
	case "direct":
		q := directqueue.New()
		return q, q, nil
	case "indirect":
		q, err := mqttqueue.New(cfg.MQTTBroker, cfg.MQTTTopicList(), "agent-"+cfg.Alias, 1, "", "")
		if err != nil {
			return nil, nil, fmt.Errorf("connect mqtt broker: %w", err)
		}
		return q, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// loadSigner reads a raw 64-byte Ed25519 private key from path and uses the
// base64 encoding of its public half as the key ID. An empty path generates an
// ephemeral keypair, suitable only for local development — a real
// deployment must set AGENT_INCEPTION_FILE to a persisted key.
func loadSigner(path string) (collab.Signer, error) {
	if path == "" {
		pub, priv, err := ed25519.GenerateKey(nil)
		if err != nil {
			return nil, fmt.Errorf("generate ephemeral keypair: %w", err)
		}
		return signing.NewKeypairSigner(priv, base64.StdEncoding.EncodeToString(pub)), nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inception file: %w", err)
	}
	if len(raw) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("inception file must contain a raw %d-byte Ed25519 private key, got %d bytes",
			ed25519.PrivateKeySize, len(raw))
	}
	priv := ed25519.PrivateKey(raw)
	pub := priv.Public().(ed25519.PublicKey)
	keyID := base64.StdEncoding.EncodeToString(pub)
	return signing.NewKeypairSigner(priv, keyID), nil
}
