//go:build !linux

package main

import (
	"github.com/dargueta/spiflash"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func openRpio(c *cli.Context, logger *zap.Logger) (spiflash.Transport, func() error, error) {
	return nil, nil, spiflash.ErrNotSupported.WithMessage("--rpio only works on Linux")
}
