package serve

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pgcompose/pgcompose/cmd/util"
	"github.com/pgcompose/pgcompose/internal/api"
	"github.com/pgcompose/pgcompose/internal/ignore"
	"github.com/pgcompose/pgcompose/internal/logger"
	"github.com/pgcompose/pgcompose/internal/source"
	"github.com/spf13/cobra"
)

var (
	addr             string
	allowFileSources bool
	allowedOrigins   []string
	requestTimeout   time.Duration
	defaultSchema    string
	ignoreFile       string
)

var ServeCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the HTTP API",
	Long:         "Serve compare, sort, merge and deploy over HTTP until interrupted.",
	Args:         cobra.NoArgs,
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	ServeCmd.Flags().StringVar(&addr, "addr", util.GetEnvWithDefault("PGCOMPOSE_ADDR", ":8080"), "Listen address (env: PGCOMPOSE_ADDR)")
	ServeCmd.Flags().BoolVar(&allowFileSources, "allow-file-sources", false, "Allow requests to name files and directories on this host")
	ServeCmd.Flags().StringSliceVar(&allowedOrigins, "cors-origin", nil, "Allowed CORS origins (default: any)")
	ServeCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 2*time.Minute, "Maximum duration of one request")
	ServeCmd.Flags().StringVar(&defaultSchema, "schema", "public", "Schema for unqualified names")
	ServeCmd.Flags().StringVar(&ignoreFile, "ignore-file", ignore.IgnoreFileName, "Ignore file applied to every request")
}

// Config builds the API configuration from the flags.
func Config() (api.Config, error) {
	ign, err := ignore.LoadIgnoreFileFromPath(ignoreFile)
	if err != nil {
		return api.Config{}, err
	}
	cfg := api.Config{
		AllowedOrigins: allowedOrigins,
		RequestTimeout: requestTimeout,
		Source:         source.Options{DefaultSchema: defaultSchema, Ignore: ign},
	}
	if allowFileSources {
		cfg.AllowedSources = append([]source.Kind{source.KindFile, source.KindDir}, api.DefaultAllowedSources...)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := Config()
	if err != nil {
		return err
	}
	log := logger.Get()

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewHandler(cfg),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      requestTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
