package camera

import (
	"fmt"
	"image"
	"strconv"
	"time"

	"gocv.io/x/gocv"
)

// Frame is one decoded video frame with its capture timestamp.
type Frame struct {
	Image      image.Image
	CapturedAt time.Time
}

// Source is an open connection to one video stream. Implementations are not
// safe for concurrent use; the owning pipeline is the only caller.
type Source interface {
	Open() error
	Read() (image.Image, error)
	Close() error
}

// SourceFactory builds a Source for a camera URL. The pipeline uses it on
// every reconnect so a stale underlying handle is never reused.
type SourceFactory func(url string) Source

type OpenCVSource struct {
	url string
	cap *gocv.VideoCapture
	mat gocv.Mat
}

// NewOpenCVSource reads from an IP stream URL or, if url is numeric, from a
// local device index.
func NewOpenCVSource(url string) Source {
	return &OpenCVSource{url: url}
}

func (s *OpenCVSource) Open() error {
	const op = "camera.OpenCVSource.Open"

	var (
		cap *gocv.VideoCapture
		err error
	)

	if idx, convErr := strconv.Atoi(s.url); convErr == nil {
		cap, err = gocv.VideoCaptureDevice(idx)
	} else {
		cap, err = gocv.VideoCaptureFile(s.url)
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !cap.IsOpened() {
		cap.Close()
		return fmt.Errorf("%s: stream did not open", op)
	}

	cap.Set(gocv.VideoCaptureBufferSize, 1)

	s.cap = cap
	s.mat = gocv.NewMat()

	return nil
}

func (s *OpenCVSource) Read() (image.Image, error) {
	const op = "camera.OpenCVSource.Read"

	if s.cap == nil {
		return nil, fmt.Errorf("%s: source is not open", op)
	}

	if ok := s.cap.Read(&s.mat); !ok || s.mat.Empty() {
		return nil, fmt.Errorf("%s: failed to decode frame", op)
	}

	img, err := s.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return img, nil
}

func (s *OpenCVSource) Close() error {
	if s.cap == nil {
		return nil
	}

	s.mat.Close()
	err := s.cap.Close()
	s.cap = nil

	return err
}
