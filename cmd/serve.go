package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"vsmirror/internal/config"
	"vsmirror/internal/metrics"
	"vsmirror/internal/server"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves a mirror directory as an offline extension gallery",
	Long: `Starts an HTTP server answering Visual Studio Code gallery queries from the
mirror catalogue and streaming the mirrored files.`,
	Args: cobra.NoArgs,
	PreRun: func(cmd *cobra.Command, args []string) {
		bindMirrorFlags(cmd, args)
		_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("port"))
		_ = viper.BindPFlag("server.host", cmd.Flags().Lookup("host"))
		_ = viper.BindPFlag("server.base_url", cmd.Flags().Lookup("base-url"))
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		return runServe(cmd.Context())
	},
}

func init() {
	addDestFlag(serveCmd.Flags())
	serveCmd.Flags().Int("port", 8080, "listen port")
	serveCmd.Flags().String("host", "0.0.0.0", "listen address")
	serveCmd.Flags().String("base-url", "", "public URL of the gallery (default http://<host>:<port>)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context) error {
	cfg := config.GetConfig()
	if cfg.DestDir == "" {
		return errors.New("a mirror directory is required (--dest-dir)")
	}

	db, err := openCatalog(cfg, cfg.DestDir)
	if err != nil {
		return err
	}
	defer db.Close()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	baseURL := cfg.BaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseHTTPS {
			scheme = "https"
		}
		baseURL = scheme + "://" + addr
	}

	logger := newLogger(cfg)
	srv := server.New(server.Options{
		DB:       db,
		Dir:      cfg.DestDir,
		BaseURL:  baseURL,
		Logger:   logger,
		Metrics:  metrics.New(),
		UseHTTPS: cfg.UseHTTPS,
		CertFile: cfg.CertFile,
		KeyFile:  cfg.KeyFile,
	})

	fmt.Printf("Gallery available at %s/_apis/public/gallery (Ctrl+C to stop)\n", baseURL)

	served := make(chan error, 1)
	go func() {
		served <- srv.ListenAndServe(addr)
	}()

	select {
	case <-ctx.Done():
		logger.LogInfo("stopping gallery")
	case err := <-served:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gallery stopped: %w", err)
	}

	// ctx is already cancelled, give in-flight downloads their own deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("gallery shutdown: %w", err)
	}
	return nil
}
