package fsmount

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"sync"
	"time"

	"github.com/dargueta/spiflash"
	"github.com/diskfs/go-diskfs/backend"
)

// ErrNoOSFile is returned by Storage.Sys; there's no file behind a flash
// device.
var ErrNoOSFile = spiflash.ErrNotSupported.WithMessage("flash storage has no OS file")

// Storage exposes a block device as a go-diskfs backend. It looks like a
// regular file exactly BlockDevice.Len() bytes long.
type Storage struct {
	device spiflash.BlockDevice
	name   string

	mu       sync.Mutex
	position int64
}

var _ backend.Storage = (*Storage)(nil)
var _ backend.WritableFile = (*Storage)(nil)

// NewStorage wraps `device`. `name` is only used for Stat.
func NewStorage(device spiflash.BlockDevice, name string) *Storage {
	return &Storage{device: device, name: name}
}

func (s *Storage) ReadAt(p []byte, off int64) (int, error) {
	if off >= s.device.Len() {
		return 0, io.EOF
	}
	short := false
	if remaining := s.device.Len() - off; int64(len(p)) > remaining {
		p = p[:remaining]
		short = true
	}

	n, err := s.device.ReadAt(p, off)
	if err == nil && short {
		err = io.EOF
	}
	return n, err
}

func (s *Storage) WriteAt(p []byte, off int64) (int, error) {
	return s.device.WriteAt(p, off)
}

func (s *Storage) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, err := s.ReadAt(p, s.position)
	s.position += int64(n)
	return n, err
}

func (s *Storage) Seek(offset int64, whence int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.position
	case io.SeekEnd:
		base = s.device.Len()
	default:
		return s.position, spiflash.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("invalid whence %d", whence))
	}

	if base+offset < 0 {
		return s.position, spiflash.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("seek to negative offset %d", base+offset))
	}
	s.position = base + offset
	return s.position, nil
}

func (s *Storage) Stat() (fs.FileInfo, error) {
	return storageInfo{name: s.name, size: s.device.Len()}, nil
}

// Close does nothing; the device outlives any filesystem on it.
func (s *Storage) Close() error {
	return nil
}

func (s *Storage) Sys() (*os.File, error) {
	return nil, ErrNoOSFile
}

func (s *Storage) Writable() (backend.WritableFile, error) {
	return s, nil
}

type storageInfo struct {
	name string
	size int64
}

func (info storageInfo) Name() string       { return info.name }
func (info storageInfo) Size() int64        { return info.size }
func (info storageInfo) Mode() fs.FileMode  { return 0o600 }
func (info storageInfo) ModTime() time.Time { return time.Time{} }
func (info storageInfo) IsDir() bool        { return false }
func (info storageInfo) Sys() any           { return nil }
