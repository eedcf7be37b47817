package canvas

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

var (
	ErrPermissionDenied = errors.New("camera access denied")
	ErrDeviceBusy       = errors.New("camera device busy")
	ErrCameraInactive   = errors.New("camera is not active")
	ErrNoCamera         = errors.New("no camera source configured")
)

// Driver is the hardware side of the camera modality. Open acquires the
// device, Grab returns one encoded frame, Close releases the device. A
// driver must tolerate Close without a prior successful Open.
type Driver interface {
	Open(ctx context.Context) error
	Grab(ctx context.Context) ([]byte, error)
	Close() error
}

// FileDriver serves stills from a fixed file path, standing in for a live
// camera in kiosk and headless setups. It enforces the same exclusive
// acquisition rules a hardware driver would.
type FileDriver struct {
	path string
	open bool
}

func NewFileDriver(path string) *FileDriver {
	return &FileDriver{path: path}
}

func (d *FileDriver) Open(_ context.Context) error {
	if d.path == "" {
		return ErrNoCamera
	}
	if d.open {
		return ErrDeviceBusy
	}

	info, err := os.Stat(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %s", ErrPermissionDenied, d.path)
		}
		return fmt.Errorf("camera source unavailable: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("camera source is a directory: %s", d.path)
	}

	d.open = true
	return nil
}

func (d *FileDriver) Grab(_ context.Context) ([]byte, error) {
	if !d.open {
		return nil, ErrCameraInactive
	}

	data, err := os.ReadFile(d.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, d.path)
		}
		return nil, fmt.Errorf("failed to read camera source: %w", err)
	}
	return data, nil
}

func (d *FileDriver) Close() error {
	d.open = false
	return nil
}
