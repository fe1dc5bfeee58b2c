package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ppiankov/trendbrief/internal/server"
)

var (
	serveAddr string
	envFile   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the briefing HTTP API",
	Long: `Serve exposes the briefing pipeline over HTTP:

  POST /api/v1/briefing          run a briefing (SSE stream unless "stream": false)
  POST /api/v1/briefing/preview  aggregation and matching only
  GET  /health                   liveness and version

A .env file in the working directory is loaded before configuration is read.

Example:
  trendbrief serve --addr :8080
  curl -N -d '{"rules":["AI\n+model"]}' localhost:8080/api/v1/briefing`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
	serveCmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file to load before reading configuration")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg, err := currentConfig()
	if err != nil {
		return err
	}
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}
	return server.New(svc, cfg.Server, Version, logger).ListenAndServe(ctx)
}
