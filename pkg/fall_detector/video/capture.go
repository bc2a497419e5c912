package fall_detector_video

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	pose "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/pose"
)

// Frame wraps the Mat owned by a Capture. It is overwritten by the next read.
type Frame struct {
	mat *gocv.Mat
}

func (f *Frame) Width() int {
	return f.mat.Cols()
}

func (f *Frame) Height() int {
	return f.mat.Rows()
}

func (f *Frame) EncodeJPEG() ([]byte, error) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, *f.mat)
	if err != nil {
		return nil, err
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

type CaptureOption struct {
	// Device is a camera index ("0") or a file/stream URL.
	Device string
	Mirror bool
}

func NewCaptureOption() *CaptureOption {
	return &CaptureOption{
		Device: "0",
		Mirror: true,
	}
}

type Capture struct {
	opt    *CaptureOption
	logger logrus.FieldLogger
	vc     *gocv.VideoCapture
	mat    gocv.Mat
	frame  *Frame
}

func (c *Capture) get_logger() logrus.FieldLogger {
	return c.logger
}

func (c *Capture) ReadFrame() (pose.Image, bool) {
	if ok := c.vc.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, false
	}

	if c.opt.Mirror {
		gocv.Flip(c.mat, &c.mat, 1)
	}

	return c.frame, true
}

func (c *Capture) Close() error {
	c.mat.Close()
	err := c.vc.Close()
	c.get_logger().Debugf("video capture closed")
	return err
}

func NewCapture(opt *CaptureOption, logger logrus.FieldLogger) (*Capture, error) {
	vc, err := gocv.OpenVideoCapture(opt.Device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video capture %v: %w", opt.Device, err)
	}

	c := &Capture{
		opt:    opt,
		logger: logger.WithField("device", opt.Device),
		vc:     vc,
		mat:    gocv.NewMat(),
	}
	c.frame = &Frame{mat: &c.mat}

	c.get_logger().Debugf("video capture opened")

	return c, nil
}
