// Package fsmount puts a FAT32 filesystem on a flash device using go-diskfs.
//
// The filesystem covers the whole device with no partition table. The flash
// itself has no notion of being mounted; that state lives in the Mounter.
package fsmount

import (
	"fmt"
	"sync"

	"github.com/dargueta/spiflash"
	"github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"go.uber.org/zap"
)

// DefaultLabel is the volume label Format uses if given an empty one.
const DefaultLabel = "SPIFLASH"

// Mounter formats and mounts a filesystem on one device. At most one mount may
// be active at a time.
type Mounter struct {
	storage *Storage
	logger  *zap.Logger

	mu         sync.Mutex
	filesystem filesystem.FileSystem
}

type Option func(*Mounter)

func WithLogger(logger *zap.Logger) Option {
	return func(m *Mounter) {
		m.logger = logger
	}
}

func NewMounter(device spiflash.BlockDevice, options ...Option) *Mounter {
	m := &Mounter{
		storage: NewStorage(device, "spiflash"),
		logger:  zap.NewNop(),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *Mounter) openDisk() (*disk.Disk, error) {
	dsk, err := diskfs.OpenBackend(m.storage)
	if err != nil {
		return nil, spiflash.ErrMountFailure.Wrap(err)
	}
	return dsk, nil
}

// Format creates an empty FAT32 filesystem over the whole device. The device
// must not be mounted.
func (m *Mounter) Format(label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filesystem != nil {
		return spiflash.ErrBusy.WithMessage("can't format a mounted device")
	}
	if label == "" {
		label = DefaultLabel
	}

	dsk, err := m.openDisk()
	if err != nil {
		return err
	}

	m.logger.Info(
		"formatting",
		zap.String("label", label),
		zap.Int64("bytes", m.storage.device.Len()),
	)
	created, err := dsk.CreateFilesystem(disk.FilesystemSpec{
		Partition:   0,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: label,
	})
	if err != nil {
		return spiflash.ErrMountFailure.Wrap(fmt.Errorf("formatting: %w", err))
	}
	return created.Close()
}

// Mount opens the filesystem on the device. It fails with ErrMountFailure if
// the device is already mounted or doesn't hold a filesystem go-diskfs
// recognizes.
func (m *Mounter) Mount() (filesystem.FileSystem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filesystem != nil {
		return nil, spiflash.ErrMountFailure.WithMessage("already mounted")
	}

	dsk, err := m.openDisk()
	if err != nil {
		return nil, err
	}
	fsys, err := dsk.GetFilesystem(0)
	if err != nil {
		return nil, spiflash.ErrMountFailure.Wrap(err)
	}

	m.logger.Info(
		"mounted",
		zap.String("label", fsys.Label()),
		zap.Stringer("type", fsysType(fsys.Type())),
	)
	m.filesystem = fsys
	return fsys, nil
}

// Unmount closes the mounted filesystem. Unmounting a device that isn't
// mounted is a no-op.
func (m *Mounter) Unmount() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.filesystem == nil {
		return nil
	}
	err := m.filesystem.Close()
	m.filesystem = nil
	m.logger.Info("unmounted")
	return err
}

func (m *Mounter) Mounted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filesystem != nil
}

type fsysType filesystem.Type

func (t fsysType) String() string {
	switch filesystem.Type(t) {
	case filesystem.TypeFat32:
		return "fat32"
	case filesystem.TypeISO9660:
		return "iso9660"
	case filesystem.TypeSquashfs:
		return "squashfs"
	case filesystem.TypeExt4:
		return "ext4"
	}
	return fmt.Sprintf("type %d", int(t))
}
