package config

import (
	"context"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watch reloads the file at path on every write and passes the new config
// to onChange. A reload that fails keeps the previous config. It runs until
// ctx is cancelled.
func Watch(ctx context.Context, path string, logger zerolog.Logger, onChange func(*SocketConfig)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return err
	}

	logger = logger.With().Str("component", "config").Str("path", path).Logger()
	logger.Info().Msg("watching for changes")

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			// Atomic saves arrive as create.
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}

			cfg, err := Load(path)
			if err != nil {
				logger.Error().Err(err).Msg("reload failed, keeping previous config")
				continue
			}
			if err := ApplyEnv(cfg); err != nil {
				logger.Error().Err(err).Msg("reload failed, keeping previous config")
				continue
			}

			logger.Info().Msg("config reloaded")
			onChange(cfg)

			// The inode may have been replaced.
			_ = watcher.Add(path)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("watcher error")
		}
	}
}
