package main

import (
	"context"

	"github.com/joho/godotenv"

	"github.com/creatorloop/clipscript-bot/internal/app"
	"github.com/creatorloop/clipscript-bot/internal/config"
	"github.com/creatorloop/clipscript-bot/internal/logging"
	"github.com/creatorloop/clipscript-bot/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.FromEnv()
	if err != nil {
		fallback := logging.Setup("")
		fallback.Fatal().Err(err).Msg("load config")
	}

	logger := logging.Setup(cfg.Environment)

	var repo repository.ChannelRepository
	if cfg.DBConnString != "" {
		repo, err = repository.NewPostgresChannelRepository(cfg.DBConnString)
	} else {
		repo, err = repository.NewFileChannelRepository(cfg.ChannelsPath)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("init repository")
	}

	application := app.New(cfg, repo, logger)
	if err := application.Run(context.Background()); err != nil && err != context.Canceled {
		logger.Fatal().Err(err).Msg("run")
	}
}
