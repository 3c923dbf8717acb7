package recorder

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"
)

// Encoder writes a stream of frames into a video container. Implementations
// are owned by a single recording worker and are not safe for concurrent
// use.
type Encoder interface {
	Open(path string, width, height int, fps float64) error
	Write(img image.Image) error
	Close() error
}

// EncoderFactory builds a fresh encoder per recording job.
type EncoderFactory func() Encoder

// OpenCVEncoder encodes MJPG into an AVI container. MJPG is the most
// reliable writer OpenCV ships everywhere; the finalize step converts the
// result to browser-playable H.264.
type OpenCVEncoder struct {
	writer *gocv.VideoWriter
}

func NewOpenCVEncoder() Encoder {
	return &OpenCVEncoder{}
}

func (e *OpenCVEncoder) Open(path string, width, height int, fps float64) error {
	const op = "recorder.OpenCVEncoder.Open"

	writer, err := gocv.VideoWriterFile(path, "MJPG", fps, width, height, true)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if !writer.IsOpened() {
		writer.Close()
		return fmt.Errorf("%s: writer did not open", op)
	}

	e.writer = writer

	return nil
}

func (e *OpenCVEncoder) Write(img image.Image) error {
	const op = "recorder.OpenCVEncoder.Write"

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer mat.Close()

	if err := e.writer.Write(mat); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (e *OpenCVEncoder) Close() error {
	if e.writer == nil {
		return nil
	}

	err := e.writer.Close()
	e.writer = nil

	return err
}
