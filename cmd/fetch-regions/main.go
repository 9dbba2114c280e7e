// Command fetch-regions downloads the County -> SubCounty -> Ward tree and
// writes it to REGIONS_PATH for the API to serve.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kenvote/registry/internal/infra"
	"github.com/kenvote/registry/internal/regions"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("fetch regions failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.RegionsSourceURL == "" {
		return errors.New("REGIONS_SOURCE_URL is not set")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	tree, err := regions.Fetch(ctx, client, cfg.RegionsSourceURL, 3)
	if err != nil {
		return err
	}
	if err := regions.Save(cfg.RegionsPath, tree); err != nil {
		return err
	}

	counties, subCounties, wards := tree.Counts()
	logger.Info("regions saved",
		"path", cfg.RegionsPath,
		"counties", counties,
		"sub_counties", subCounties,
		"wards", wards,
	)
	return nil
}
