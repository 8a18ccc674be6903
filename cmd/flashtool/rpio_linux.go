//go:build linux

package main

import (
	"fmt"
	"strconv"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/transport"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func openRpio(c *cli.Context, logger *zap.Logger) (spiflash.Transport, func() error, error) {
	pins := c.StringSlice("cs")
	numbers := make([]int, len(pins))
	for i, pin := range pins {
		number, err := strconv.Atoi(pin)
		if err != nil {
			return nil, nil, spiflash.ErrInvalidConfiguration.WithMessage(
				fmt.Sprintf("--cs %q isn't a BCM GPIO number", pin))
		}
		numbers[i] = number
	}

	r, err := transport.OpenRpio(transport.RpioConfig{
		ChipSelects: numbers,
		Hertz:       c.Int("speed"),
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return r, r.Close, nil
}
