//go:build wireinject

package main

import (
	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/snakecast/internal/config"
)

func initializeApp(cfg config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(ProviderSet)
	return nil, nil, nil
}
