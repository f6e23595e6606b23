// Package camera opens local video devices through pion/mediadevices.
package camera

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pion/mediadevices"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	"github.com/pion/mediadevices/pkg/io/video"
	"github.com/pion/mediadevices/pkg/prop"

	"github.com/kirillkom/virtual-fitting/internal/core/domain"
	"github.com/kirillkom/virtual-fitting/internal/core/ports"
)

// Camera implements ports.Camera and ports.DeviceProber.
type Camera struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Camera {
	if logger == nil {
		logger = slog.Default()
	}
	return &Camera{logger: logger}
}

func (c *Camera) HasVideoInput(context.Context) (bool, error) {
	for _, d := range mediadevices.EnumerateDevices() {
		if d.Kind == mediadevices.VideoInput {
			return true, nil
		}
	}
	return false, nil
}

func (c *Camera) Open(ctx context.Context, constraints domain.StreamConstraints) (ports.DeviceStream, error) {
	if ok, _ := c.HasVideoInput(ctx); !ok {
		return nil, domain.ErrDeviceNotFound
	}

	media, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(mc *mediadevices.MediaTrackConstraints) {
			if constraints.Ideal != nil {
				mc.Width = prop.Int(constraints.Ideal.Width)
				mc.Height = prop.Int(constraints.Ideal.Height)
			}
		},
	})
	if err != nil {
		return nil, classify(err)
	}

	tracks := media.GetVideoTracks()
	if len(tracks) == 0 {
		return nil, domain.ErrDeviceNotFound
	}
	track, ok := tracks[0].(*mediadevices.VideoTrack)
	if !ok {
		for _, t := range tracks {
			_ = t.Close()
		}
		return nil, fmt.Errorf("camera: unexpected track type %T", tracks[0])
	}

	s := &stream{
		track:  track,
		frames: make(chan domain.Frame, 1),
		done:   make(chan struct{}),
		logger: c.logger,
	}
	first, err := s.readOne()
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("camera: first frame: %w", err)
	}
	b := first.Image.Bounds()
	s.res = domain.Resolution{Width: b.Dx(), Height: b.Dy()}
	s.frames <- first
	go s.pump()
	return s, nil
}

func classify(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, fs.ErrPermission) || strings.Contains(msg, "permission denied"):
		return fmt.Errorf("%w: %v", domain.ErrDeviceDenied, err)
	case errors.Is(err, fs.ErrNotExist) || strings.Contains(msg, "no such device"):
		return fmt.Errorf("%w: %v", domain.ErrDeviceNotFound, err)
	case strings.Contains(msg, "constraints") || strings.Contains(msg, "fits"):
		return fmt.Errorf("%w: %v", domain.ErrConstraintUnsatisfied, err)
	default:
		return fmt.Errorf("camera: get user media: %w", err)
	}
}

type stream struct {
	track  *mediadevices.VideoTrack
	res    domain.Resolution
	frames chan domain.Frame
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger

	readerOnce sync.Once
	reader     video.Reader
}

func (s *stream) readOne() (domain.Frame, error) {
	s.readerOnce.Do(func() {
		s.reader = s.track.NewReader(true)
	})
	img, release, err := s.reader.Read()
	if err != nil {
		return domain.Frame{}, err
	}
	if release != nil {
		release()
	}
	return domain.Frame{Image: img, CapturedAt: time.Now()}, nil
}

// pump keeps only the newest frame buffered.
func (s *stream) pump() {
	for {
		frame, err := s.readOne()
		select {
		case <-s.done:
			return
		default:
		}
		if err != nil {
			s.logger.Warn("camera_read_failed", "error", err)
			s.Close()
			return
		}
		select {
		case <-s.frames:
		default:
		}
		s.frames <- frame
	}
}

func (s *stream) ReadFrame(ctx context.Context) (domain.Frame, error) {
	select {
	case <-ctx.Done():
		return domain.Frame{}, ctx.Err()
	case <-s.done:
		return domain.Frame{}, errors.New("camera: stream closed")
	case f := <-s.frames:
		return f, nil
	}
}

func (s *stream) Resolution() domain.Resolution {
	return s.res
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.track.Close()
	})
	return err
}
