package canvas

import (
	"context"
	"fmt"
	"time"

	"github.com/haneul/mindsketch/pkg/models"
)

// Surface owns one drawing canvas plus the two alternate acquisition paths
// (file import, camera still). Exactly one modality is active at a time;
// the camera handle is acquired on StartCamera and guaranteed released on
// StopCamera, modality switch, capture, surface Close, and every error path.
type Surface struct {
	canvas       *Canvas
	driver       Driver
	modality     models.Modality
	cameraActive bool
}

func NewSurface(width, height int, driver Driver) (*Surface, error) {
	c, err := NewCanvas(width, height)
	if err != nil {
		return nil, err
	}
	return &Surface{
		canvas:   c,
		driver:   driver,
		modality: models.ModalityFreehand,
	}, nil
}

func (s *Surface) Canvas() *Canvas           { return s.canvas }
func (s *Surface) Modality() models.Modality { return s.modality }
func (s *Surface) CameraActive() bool        { return s.cameraActive }

// BeginFreehand selects the freehand modality, releasing the camera if it
// was streaming. Content already placed on the canvas backdrop survives.
func (s *Surface) BeginFreehand() {
	_ = s.StopCamera()
}

func (s *Surface) BeginStroke(p Point) {
	s.BeginFreehand()
	s.canvas.BeginStroke(p)
}

func (s *Surface) StrokeTo(p Point) error {
	return s.canvas.StrokeTo(p)
}

func (s *Surface) EndStroke() {
	s.canvas.EndStroke()
}

func (s *Surface) EraseAt(p Point) {
	s.BeginFreehand()
	s.canvas.EraseAt(p)
}

func (s *Surface) Clear() {
	s.canvas.Clear()
	s.modality = models.ModalityFreehand
}

// ImportStill places an imported image onto the canvas backdrop.
func (s *Surface) ImportStill(data []byte) error {
	_ = s.StopCamera()
	if err := s.canvas.PlaceStill(data); err != nil {
		return err
	}
	s.modality = models.ModalityImported
	return nil
}

// StartCamera acquires the camera device. Denial surfaces as
// ErrPermissionDenied without tearing down the surface.
func (s *Surface) StartCamera(ctx context.Context) error {
	if s.driver == nil {
		return ErrNoCamera
	}
	if s.cameraActive {
		return ErrDeviceBusy
	}
	if err := s.driver.Open(ctx); err != nil {
		return err
	}
	s.cameraActive = true
	return nil
}

// CaptureStillFromCamera grabs one frame, renders it onto the canvas, and
// releases the camera. The device is released even when the grab or decode
// fails.
func (s *Surface) CaptureStillFromCamera(ctx context.Context) error {
	if !s.cameraActive {
		return ErrCameraInactive
	}

	data, err := s.driver.Grab(ctx)
	if err != nil {
		_ = s.StopCamera()
		return err
	}
	if err := s.canvas.PlaceStill(data); err != nil {
		_ = s.StopCamera()
		return err
	}

	s.modality = models.ModalityCamera
	return s.StopCamera()
}

// StopCamera releases the camera device. Safe to call when inactive.
func (s *Surface) StopCamera() error {
	if !s.cameraActive {
		return nil
	}
	s.cameraActive = false
	if s.driver == nil {
		return nil
	}
	return s.driver.Close()
}

// Commit flattens the canvas into an immutable CapturedImage. Committing a
// canvas that was never drawn to, and onto which no still was placed, fails
// with ErrEmptyCanvas.
func (s *Surface) Commit() (*models.CapturedImage, error) {
	if !s.canvas.Touched() {
		return nil, ErrEmptyCanvas
	}

	data, err := s.canvas.Encode()
	if err != nil {
		return nil, fmt.Errorf("commit failed: %w", err)
	}

	return &models.CapturedImage{
		PNG:        data,
		Width:      s.canvas.Width(),
		Height:     s.canvas.Height(),
		Modality:   s.modality,
		CapturedAt: time.Now(),
	}, nil
}

// Reset prepares the surface for the next capture stage.
func (s *Surface) Reset() {
	_ = s.StopCamera()
	s.Clear()
}

// Close tears the surface down, releasing any held camera handle.
func (s *Surface) Close() error {
	return s.StopCamera()
}
