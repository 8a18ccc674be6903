package main

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dargueta/spiflash"
	"github.com/dargueta/spiflash/chip"
	"github.com/dargueta/spiflash/fsmount"
	"github.com/dargueta/spiflash/image"
	"github.com/dargueta/spiflash/selftest"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/urfave/cli/v2"
)

// withSession opens the device, runs `action` on it and closes it again.
func withSession(c *cli.Context, action func(s *session) error) error {
	s, err := openSession(c)
	if err != nil {
		return err
	}
	err = action(s)
	closeErr := s.Close()
	if err != nil {
		return err
	}
	return closeErr
}

func showInfo(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		out := c.App.Writer
		dev := s.device

		for i := 0; i < dev.ChipCount(); i++ {
			probed, ok := dev.Chip(i).(*chip.Chip)
			if !ok {
				continue
			}
			fmt.Fprintf(
				out,
				"chip %d: %s (%s), %d KiB, %d B pages, %d B sectors\n",
				i,
				probed.PartName(),
				probed.ID(),
				probed.Capacity()/1024,
				probed.PageBytes(),
				probed.SectorBytes())
		}
		fmt.Fprintf(
			out,
			"device: %d KiB in %d blocks of %d B\n",
			dev.Len()/1024,
			dev.BlockCount(),
			dev.BlockSize())
		return nil
	})
}

func runSelfTest(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		results := selftest.Run(s.device, rand.Reader)
		for _, result := range results {
			fmt.Fprintln(c.App.Writer, result)
		}
		if selftest.Failed(results) {
			return cli.Exit("self-test failed", 1)
		}
		return nil
	})
}

func runFullTest(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		out := c.App.Writer
		err := selftest.FullSweep(
			s.device,
			rand.Reader,
			func(block, total int64) {
				step := max(total/16, 1)
				if (block+1)%step == 0 || block+1 == total {
					fmt.Fprintf(out, "%d/%d blocks passed\n", block+1, total)
				}
			})
		if err != nil {
			return cli.Exit(fmt.Sprintf("full test failed: %s", err), 1)
		}
		fmt.Fprintln(out, "full test passed")
		return nil
	})
}

func eraseDevice(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		err := s.device.Erase()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "erased %d chips\n", s.device.ChipCount())
		return nil
	})
}

func formatDevice(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		mounter := fsmount.NewMounter(s.device, fsmount.WithLogger(s.logger))
		err := mounter.Format(c.String("label"))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "formatted")
		return nil
	})
}

// mount mounts the device's filesystem, formatting it first if asked to.
func mount(c *cli.Context, s *session) (*fsmount.Mounter, filesystem.FileSystem, error) {
	mounter := fsmount.NewMounter(s.device, fsmount.WithLogger(s.logger))
	if c.Bool("format") {
		err := mounter.Format("")
		if err != nil {
			return nil, nil, err
		}
	}

	fsys, err := mounter.Mount()
	if errors.Is(err, spiflash.ErrMountFailure) {
		return nil, nil, cli.Exit(
			fmt.Sprintf("%s\nhas the device been formatted?", err), 1)
	} else if err != nil {
		return nil, nil, err
	}
	return mounter, fsys, nil
}

func listRoot(out io.Writer, fsys filesystem.FileSystem) error {
	entries, err := fsys.ReadDir("/")
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "contents of %q:\n", fsys.Label())
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(out, "  %s/\n", entry.Name())
		} else {
			fmt.Fprintf(out, "  %s (%d B)\n", entry.Name(), entry.Size())
		}
	}
	return nil
}

func testFilesystem(c *cli.Context) error {
	return withSession(c, func(s *session) error {
		mounter, fsys, err := mount(c, s)
		if err != nil {
			return err
		}
		defer mounter.Unmount()

		err = listRoot(c.App.Writer, fsys)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "device size: %d KiB\n", s.device.Len()/1024)
		return nil
	})
}

// destinationPath works out where `source` goes on the flash filesystem. A
// destination ending in a slash is a directory.
func destinationPath(source, dest string) string {
	base := filepath.Base(source)
	switch {
	case dest == "":
		return "/" + base
	case strings.HasSuffix(dest, "/"):
		return path.Clean("/" + dest + base)
	}
	return path.Clean("/" + dest)
}

func copyToDevice(c *cli.Context) error {
	if c.NArg() < 1 || c.NArg() > 2 {
		return cli.Exit("usage: cp SOURCE [DEST]", 2)
	}
	source := c.Args().Get(0)
	dest := destinationPath(source, c.Args().Get(1))

	input, err := os.Open(source)
	if err != nil {
		return err
	}
	defer input.Close()

	return withSession(c, func(s *session) error {
		mounter, fsys, err := mount(c, s)
		if err != nil {
			return err
		}
		defer mounter.Unmount()

		output, err := fsys.OpenFile(dest, os.O_CREATE|os.O_RDWR)
		if err != nil {
			return err
		}
		copied, err := io.Copy(output, input)
		if err != nil {
			output.Close()
			return err
		}
		err = output.Close()
		if err != nil {
			return err
		}

		fmt.Fprintf(c.App.Writer, "copied %d B to %s\n", copied, dest)
		return listRoot(c.App.Writer, fsys)
	})
}

func dumpDevice(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: dump IMAGE_FILE", 2)
	}

	return withSession(c, func(s *session) error {
		output, err := os.Create(c.Args().First())
		if err != nil {
			return err
		}

		err = image.Dump(s.device, output)
		if err != nil {
			output.Close()
			return err
		}
		err = output.Close()
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "dumped %d KiB to %s\n", s.device.Len()/1024, c.Args().First())
		return nil
	})
}

func restoreDevice(c *cli.Context) error {
	if c.NArg() != 1 {
		return cli.Exit("usage: restore IMAGE_FILE", 2)
	}

	input, err := os.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer input.Close()

	return withSession(c, func(s *session) error {
		err := image.Restore(s.device, input)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "restored %d KiB from %s\n", s.device.Len()/1024, c.Args().First())
		return nil
	})
}
