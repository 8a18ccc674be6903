package main

import (
	"fmt"
	"math/bits"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/chip"
	"github.com/dargueta/spiflash/device"
	"github.com/dargueta/spiflash/sim"
	"github.com/dargueta/spiflash/transport"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/physic"
)

// session is an opened device and everything that has to be closed with it.
type session struct {
	device    *device.Device
	logger    *zap.Logger
	closeRest func() error
}

func (s *session) Close() error {
	var err error
	if s.closeRest != nil {
		err = s.closeRest()
	}
	// Syncing stderr fails on some platforms, and there's nothing to do about it.
	_ = s.logger.Sync()
	return err
}

func newLogger(verbose bool) (*zap.Logger, error) {
	config := zap.NewDevelopmentConfig()
	if !verbose {
		config.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	return config.Build()
}

func openSession(c *cli.Context) (*session, error) {
	logger, err := newLogger(c.Bool("verbose"))
	if err != nil {
		return nil, err
	}

	bus, closeBus, err := openTransport(c, logger)
	if err != nil {
		return nil, err
	}

	dev, err := device.Open(
		bus,
		device.Config{
			BlockBytes: c.Int64("block-size"),
			ChipBytes:  c.Int64("size-kib") * 1024,
		},
		device.WithLogger(logger),
	)
	if err != nil {
		if closeBus != nil {
			closeBus()
		}
		return nil, err
	}
	return &session{device: dev, logger: logger, closeRest: closeBus}, nil
}

func openTransport(c *cli.Context, logger *zap.Logger) (spiflash.Transport, func() error, error) {
	if count := c.Int("simulate"); count > 0 {
		id, err := simulatedID(c.Int64("size-kib") * 1024)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("using simulated chips", zap.Int("count", count), zap.Stringer("id", id))
		bus, err := sim.NewUniformBus(count, sim.Config{ID: id})
		return bus, nil, err
	}

	if c.Bool("rpio") {
		return openRpio(c, logger)
	}

	periph, err := transport.OpenPeriph(transport.PeriphConfig{
		Port:        c.String("spi"),
		ChipSelects: c.StringSlice("cs"),
		Frequency:   physic.Frequency(c.Int("speed")) * physic.Hertz,
		Logger:      logger,
	})
	if err != nil {
		return nil, nil, err
	}
	return periph, periph.Close, nil
}

// simulatedID picks a JEDEC ID whose capacity code gives chips of `chipBytes`.
// Zero gives the default simulated part.
func simulatedID(chipBytes int64) (chip.JEDECID, error) {
	if chipBytes == 0 {
		return sim.DefaultID, nil
	}
	if chipBytes < 0 || bits.OnesCount64(uint64(chipBytes)) != 1 {
		return chip.JEDECID{}, spiflash.ErrInvalidConfiguration.WithMessage(
			fmt.Sprintf("simulated chip size must be a power of two, got %d B", chipBytes))
	}

	id := sim.DefaultID
	id[2] = byte(bits.TrailingZeros64(uint64(chipBytes)))
	_, err := id.Capacity()
	return id, err
}
