package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/certwatch/certwatch/internal/bundle"
	"github.com/certwatch/certwatch/internal/config"
	certerrors "github.com/certwatch/certwatch/internal/errors"
	"github.com/certwatch/certwatch/internal/lockfile"
	"github.com/certwatch/certwatch/internal/logging"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTPS server with hot-reloading TLS",
		Long: `Serve starts an HTTPS server presenting the bundle named by
server.bundle. Bundles with reload_on_update are watched and rebuilt
when their source files change; new handshakes pick up the rebuilt
materials without a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			debug, _ := cmd.Flags().GetBool("debug")
			return runServe(cmd.Context(), cfgPath, debug)
		},
	}
}

func runServe(ctx context.Context, cfgPath string, debug bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return certerrors.Wrap(certerrors.ErrCodeConfigInvalid, err)
	}

	level := cfg.Log.Level
	if debug {
		level = "debug"
	}
	logging.SetupDefault(logging.Config{Level: level})

	if cfg.Server.Bundle == "" {
		return certerrors.New(certerrors.ErrCodeConfigInvalid,
			"server.bundle must name the bundle to serve", nil).
			WithSuggestion("set server.bundle in " + cfgPath)
	}

	lock := lockfile.New(cfgPath + ".lock")
	acquired, err := lock.TryAcquire()
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("another certwatch instance is already serving %s", cfgPath)
	}
	defer func() { _ = lock.Release() }()

	registry := bundle.NewRegistry(0)
	defer func() { _ = registry.Close() }()

	for _, name := range cfg.BundleNames() {
		bc := cfg.Bundles[name]
		quiet, _ := bc.ParseQuietPeriod() // validated by config.Load
		src := bundle.Source{
			Name:           name,
			Certificate:    bc.Certificate,
			PrivateKey:     bc.PrivateKey,
			TrustAnchors:   bc.TrustAnchors,
			ReloadOnUpdate: bc.ReloadOnUpdate,
			QuietPeriod:    quiet,
		}
		if err := registry.Register(src); err != nil {
			var notWatchable *bundle.NotWatchableError
			if errors.As(err, &notWatchable) {
				return certerrors.Wrap(certerrors.ErrCodeNotWatchable, err)
			}
			return err
		}
	}

	tlsCfg, err := registry.TLSConfig(cfg.Server.Bundle)
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.HandleFunc("/bundles", func(w http.ResponseWriter, _ *http.Request) {
		type status struct {
			Name     string    `json:"name"`
			Subject  string    `json:"subject"`
			NotAfter time.Time `json:"not_after"`
			LoadedAt time.Time `json:"loaded_at"`
		}
		var out []status
		for _, name := range registry.Names() {
			b, err := registry.Bundle(name)
			if err != nil {
				continue
			}
			out = append(out, status{
				Name:     b.Name,
				Subject:  b.Certificate.Leaf.Subject.String(),
				NotAfter: b.Certificate.Leaf.NotAfter,
				LoadedAt: b.LoadedAt,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           mux,
		TLSConfig:         tlsCfg,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("https server listening",
			slog.String("addr", cfg.Server.Listen),
			slog.String("bundle", cfg.Server.Bundle))
		// Certificate and key come from the registry via GetCertificate.
		if err := server.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
