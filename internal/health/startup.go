// SPDX-License-Identifier: MIT

package health

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/aethradio/aether/internal/config"
	xlog "github.com/aethradio/aether/internal/log"
)

// PerformStartupChecks validates the environment and external dependencies
// before the daemon starts serving.
func PerformStartupChecks(cfg config.Config) error {
	logger := xlog.WithComponent("startup-check")
	logger.Info().Msg("Running pre-flight startup checks...")

	if err := checkWritableDir(logger, "data", cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkWritableDir(logger, "downloads", cfg.DownloadsDir); err != nil {
		return fmt.Errorf("downloads directory check failed: %w", err)
	}
	if err := checkListenAddr(logger, cfg.ListenAddr); err != nil {
		return fmt.Errorf("listen address check failed: %w", err)
	}
	checkDownloaderBinaries(logger)

	if cfg.CatalogPath != "" {
		if _, err := os.Stat(cfg.CatalogPath); err != nil {
			logger.Warn().
				Str("path", cfg.CatalogPath).
				Msg("genre catalog not readable; radio will run on fallback queries")
		}
	}

	logger.Info().Msg("✅ All startup checks passed")
	return nil
}

func checkWritableDir(logger zerolog.Logger, name, path string) error {
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("could not ensure %s directory %s: %w", name, path, err)
	}
	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("%s directory is not writable: %s (error: %v)", name, path, err)
	}
	_ = os.Remove(testFile)
	logger.Info().Str("path", path).Msgf("✓ %s directory is writable", name)
	return nil
}

func checkListenAddr(logger zerolog.Logger, addr string) error {
	if addr == "" {
		return nil
	}
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid listen address %q: %w", addr, err)
	}
	portNum, err := strconv.Atoi(port)
	if err != nil || portNum < 0 || portNum > 65535 {
		return fmt.Errorf("invalid listen port %q in %q", port, addr)
	}
	logger.Info().Str("addr", addr).Msg("✓ Listen address is valid")
	return nil
}

// checkDownloaderBinaries warns when yt-dlp or ffmpeg are missing from
// PATH. The yt-dlp wrapper can install its own binary, so neither is a
// hard startup failure.
func checkDownloaderBinaries(logger zerolog.Logger) {
	if _, err := exec.LookPath("yt-dlp"); err != nil {
		logger.Warn().Msg("yt-dlp not found on PATH; relying on the bundled installer")
	} else {
		logger.Info().Msg("✓ yt-dlp available")
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		logger.Warn().Msg("ffmpeg not found on PATH; audio extraction may fail for some formats")
	}
}
