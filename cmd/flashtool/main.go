package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	err := newApp().Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "flashtool",
		Usage: "Inspect, test and manage SPI NOR flash chips used as one block device",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "spi",
				Usage:   "SPI port name, e.g. SPI0.0; empty picks the first one",
				EnvVars: []string{"SPIFLASH_SPI"},
			},
			&cli.StringSliceFlag{
				Name:    "cs",
				Usage:   "chip select pin, once per chip in address order",
				EnvVars: []string{"SPIFLASH_CS"},
			},
			&cli.IntFlag{
				Name:    "speed",
				Usage:   "SPI clock, in Hz",
				Value:   10_000_000,
				EnvVars: []string{"SPIFLASH_SPEED"},
			},
			&cli.BoolFlag{
				Name:    "rpio",
				Usage:   "drive a Raspberry Pi's SPI0 directly; --cs takes BCM GPIO numbers",
				EnvVars: []string{"SPIFLASH_RPIO"},
			},
			&cli.Int64Flag{
				Name:    "block-size",
				Usage:   "logical block size, in bytes",
				Value:   512,
				EnvVars: []string{"SPIFLASH_BLOCK_SIZE"},
			},
			&cli.Int64Flag{
				Name:    "size-kib",
				Usage:   "expected size of each chip in KiB; 0 trusts the chips",
				EnvVars: []string{"SPIFLASH_SIZE_KIB"},
			},
			&cli.IntFlag{
				Name:    "simulate",
				Usage:   "use this many simulated chips instead of hardware",
				EnvVars: []string{"SPIFLASH_SIMULATE"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every bus operation",
				EnvVars: []string{"SPIFLASH_VERBOSE"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "info",
				Usage:  "Show the chips found and the device geometry",
				Action: showInfo,
			},
			{
				Name:   "test",
				Usage:  "Run the quick self-test (destroys data)",
				Action: runSelfTest,
			},
			{
				Name:   "fulltest",
				Usage:  "Write and read back every block (destroys data, slow)",
				Action: runFullTest,
			},
			{
				Name:   "erase",
				Usage:  "Erase every chip",
				Action: eraseDevice,
			},
			{
				Name:   "format",
				Usage:  "Create an empty FAT32 filesystem on the device",
				Action: formatDevice,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "label", Usage: "volume label"},
				},
			},
			{
				Name:   "fstest",
				Usage:  "Mount the filesystem and list its root directory",
				Action: testFilesystem,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "format", Usage: "format the device first"},
				},
			},
			{
				Name:      "cp",
				Usage:     "Copy a local file into the root of the flash filesystem",
				Action:    copyToDevice,
				ArgsUsage: "SOURCE [DEST]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "format", Usage: "format the device first"},
				},
			},
			{
				Name:      "dump",
				Usage:     "Save a compressed image of the whole device",
				Action:    dumpDevice,
				ArgsUsage: "IMAGE_FILE",
			},
			{
				Name:      "restore",
				Usage:     "Overwrite the whole device from a compressed image",
				Action:    restoreDevice,
				ArgsUsage: "IMAGE_FILE",
			},
		},
	}
}
