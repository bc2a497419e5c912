package fall_detector_runner

import (
	"context"
	"image/color"
	"time"

	"github.com/sirupsen/logrus"

	classifier "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/classifier"
	pose "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/pose"
)

const (
	STATUS_FALLEN = "Fall Detected!"
	STATUS_NORMAL = "Normal"
)

var (
	COLOR_FALLEN = color.RGBA{R: 255, A: 255}
	COLOR_NORMAL = color.RGBA{G: 255, A: 255}
)

// FrameSource yields frames until the stream ends. A frame is only valid
// until the next ReadFrame call.
type FrameSource interface {
	ReadFrame() (pose.Image, bool)
	Close() error
}

type Overlay struct {
	Text      string
	Color     color.RGBA
	Landmarks *pose.Landmarks
}

type Display interface {
	Show(frame pose.Image, overlay *Overlay) error
	QuitRequested() bool
	Close() error
}

type FallEvent struct {
	Seq       uint64
	Timestamp time.Time
	SpanPx    float64
}

type SessionOption struct {
	Source     FrameSource
	Estimator  pose.Estimator
	Display    Display
	Classifier *classifier.Classifier
	Logger     logrus.FieldLogger
	Metrics    *Metrics
	OnFall     func(FallEvent)
}

// Session runs the per-frame loop: read, estimate, classify, render.
// It takes ownership of the source, estimator and display and closes them
// when Run returns.
type Session struct {
	opt *SessionOption
	seq uint64
}

func NewSession(opt *SessionOption) *Session {
	if opt.Display == nil {
		opt.Display = NopDisplay{}
	}
	if opt.Classifier == nil {
		opt.Classifier = classifier.NewClassifier(nil)
	}
	if opt.Logger == nil {
		opt.Logger = logrus.New()
	}

	return &Session{opt: opt}
}

func (s *Session) get_logger() logrus.FieldLogger {
	return s.opt.Logger
}

func (s *Session) Fallen() bool {
	return s.opt.Classifier.Fallen()
}

func (s *Session) release() {
	logger := s.get_logger()

	if err := s.opt.Display.Close(); err != nil {
		logger.WithError(err).Warningf("failed to close display")
	}
	if err := s.opt.Estimator.Close(); err != nil {
		logger.WithError(err).Warningf("failed to close pose estimator")
	}
	if err := s.opt.Source.Close(); err != nil {
		logger.WithError(err).Warningf("failed to close frame source")
	}

	logger.Debugf("session released")
}

// Run blocks until the source is exhausted, the display reports a quit key,
// ctx is done, or a collaborator fails. Only the last case returns an error.
func (s *Session) Run(ctx context.Context) error {
	logger := s.get_logger()

	defer s.release()

	for {
		select {
		case <-ctx.Done():
			logger.Debugf("session canceled")
			return nil
		default:
		}

		frame, ok := s.opt.Source.ReadFrame()
		if !ok {
			logger.Debugf("frame source exhausted")
			return nil
		}

		overlay, err := s.step(frame)
		if err != nil {
			return err
		}

		if err = s.opt.Display.Show(frame, overlay); err != nil {
			return err
		}

		if s.opt.Display.QuitRequested() {
			logger.Debugf("quit requested")
			return nil
		}
	}
}

func (s *Session) step(frame pose.Image) (*Overlay, error) {
	s.seq++
	s.opt.Metrics.observe_frame()

	start := time.Now()
	lms, err := s.opt.Estimator.Estimate(frame)
	if err != nil {
		return nil, err
	}
	s.opt.Metrics.observe_estimate(time.Since(start), lms != nil)

	if lms == nil {
		return nil, nil
	}

	res := s.opt.Classifier.Observe(lms, frame.Height())
	if !res.Detected {
		return nil, nil
	}
	s.opt.Metrics.observe_state(res.Fallen, res.JustDetected)

	if res.JustDetected {
		s.get_logger().WithFields(logrus.Fields{
			"seq":     s.seq,
			"span_px": res.SpanPx,
		}).Warningf("fall detected")

		if s.opt.OnFall != nil {
			s.opt.OnFall(FallEvent{
				Seq:       s.seq,
				Timestamp: res.FallTime,
				SpanPx:    res.SpanPx,
			})
		}
	}

	overlay := &Overlay{
		Text:      STATUS_NORMAL,
		Color:     COLOR_NORMAL,
		Landmarks: lms,
	}
	if res.Fallen {
		overlay.Text = STATUS_FALLEN
		overlay.Color = COLOR_FALLEN
	}

	return overlay, nil
}

type NopDisplay struct{}

func (NopDisplay) Show(pose.Image, *Overlay) error { return nil }
func (NopDisplay) QuitRequested() bool             { return false }
func (NopDisplay) Close() error                    { return nil }
