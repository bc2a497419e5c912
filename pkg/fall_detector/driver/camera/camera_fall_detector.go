package fall_detector_camera_driver

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	classifier "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/classifier"
	driver "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/driver"
	pose "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/pose"
	runner "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/runner"
	video "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/video"
	opt_helper "github.com/nayotta/metathings/pkg/common/option"
)

type CameraFallDetectorOption struct {
	Device      string
	Mirror      bool
	Display     bool
	ThresholdPx float64
	Estimator   struct {
		Command                string
		Args                   []string
		MinDetectionConfidence float64
		MinTrackingConfidence  float64
	}
}

func NewCameraFallDetectorOption() *CameraFallDetectorOption {
	opt := &CameraFallDetectorOption{}

	opt.Device = "0"
	opt.Mirror = true
	opt.ThresholdPx = classifier.DEFAULT_THRESHOLD_PX
	opt.Estimator.Command = "python3"
	opt.Estimator.Args = []string{"pose_worker.py"}
	opt.Estimator.MinDetectionConfidence = 0.7
	opt.Estimator.MinTrackingConfidence = 0.7

	return opt
}

// CameraFallDetector runs one capture/estimate/classify/render session in
// its own goroutine and reports fall edges on the event channel.
type CameraFallDetector struct {
	opt        *CameraFallDetectorOption
	logger     logrus.FieldLogger
	session    *runner.Session
	events     chan driver.Event
	err        error
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	close_once sync.Once
}

func (cfd *CameraFallDetector) get_logger() logrus.FieldLogger {
	return cfd.logger
}

func (cfd *CameraFallDetector) Detect() <-chan driver.Event {
	return cfd.events
}

// Err is the session failure, if any. It is valid once Detect is closed.
func (cfd *CameraFallDetector) Err() error {
	select {
	case <-cfd.done:
		return cfd.err
	default:
		return nil
	}
}

// Close stops the session and waits for the capture device, estimator and
// window to be released.
func (cfd *CameraFallDetector) Close() {
	cfd.close_once.Do(func() {
		cfd.cancel()
		<-cfd.done
		cfd.get_logger().Debugf("fall detector closed")
	})
}

func (cfd *CameraFallDetector) on_fall(evt runner.FallEvent) {
	fde := driver.NewFallDetected(evt.Timestamp, evt.Seq, evt.SpanPx, cfd.opt.Device)

	select {
	case cfd.events <- fde:
	case <-cfd.ctx.Done():
	}
}

func (cfd *CameraFallDetector) mainloop() {
	logger := cfd.get_logger()

	defer close(cfd.events)
	defer close(cfd.done)

	if err := cfd.session.Run(cfd.ctx); err != nil {
		if cfd.ctx.Err() != nil {
			logger.WithError(err).Debugf("fall detection session interrupted")
			return
		}
		logger.WithError(err).Errorf("fall detection session failed")
		cfd.err = err
		return
	}

	logger.Debugf("fall detection session finished")
}

func NewCameraFallDetector(args ...interface{}) (driver.FallDetector, error) {
	var err error
	var logger logrus.FieldLogger
	var registerer prometheus.Registerer
	opt := NewCameraFallDetectorOption()

	if err = opt_helper.Setopt(map[string]func(string, interface{}) error{
		"device":                   driver.ToStringLoose(&opt.Device),
		"mirror":                   driver.ToBool(&opt.Mirror),
		"display":                  driver.ToBool(&opt.Display),
		"threshold":                driver.ToFloat64(&opt.ThresholdPx),
		"estimator_command":        opt_helper.ToString(&opt.Estimator.Command),
		"estimator_args":           driver.ToStringSlice(&opt.Estimator.Args),
		"min_detection_confidence": driver.ToFloat64(&opt.Estimator.MinDetectionConfidence),
		"min_tracking_confidence":  driver.ToFloat64(&opt.Estimator.MinTrackingConfidence),
		"registerer":               to_registerer(&registerer),
		"logger":                   opt_helper.ToLogger(&logger),
	})(args...); err != nil {
		return nil, err
	}

	logger = driver.DefaultLogger(logger).WithField("driver", "camera")

	var metrics *runner.Metrics
	if registerer != nil {
		if metrics, err = runner.NewMetrics(registerer); err != nil {
			return nil, err
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	copt := video.NewCaptureOption()
	copt.Device = opt.Device
	copt.Mirror = opt.Mirror
	capture, err := video.NewCapture(copt, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	eopt := pose.NewSubprocessEstimatorOption()
	eopt.Command = opt.Estimator.Command
	eopt.Args = opt.Estimator.Args
	eopt.MinDetectionConfidence = opt.Estimator.MinDetectionConfidence
	eopt.MinTrackingConfidence = opt.Estimator.MinTrackingConfidence
	estimator, err := pose.NewSubprocessEstimator(ctx, eopt, logger)
	if err != nil {
		capture.Close()
		cancel()
		return nil, err
	}

	var display runner.Display = runner.NopDisplay{}
	if opt.Display {
		display = video.NewWindow()
	}

	cfd := new_camera_fall_detector(ctx, cancel, opt, logger, &runner.SessionOption{
		Source:    capture,
		Estimator: estimator,
		Display:   display,
		Metrics:   metrics,
	})

	go cfd.mainloop()

	return cfd, nil
}

// new_camera_fall_detector wires already opened collaborators into a
// session; the caller starts mainloop.
func new_camera_fall_detector(ctx context.Context, cancel context.CancelFunc, opt *CameraFallDetectorOption, logger logrus.FieldLogger, sopt *runner.SessionOption) *CameraFallDetector {
	clsopt := classifier.NewClassifierOption()
	clsopt.ThresholdPx = opt.ThresholdPx

	cfd := &CameraFallDetector{
		opt:    opt,
		logger: logger,
		events: make(chan driver.Event),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	sopt.Classifier = classifier.NewClassifier(clsopt)
	sopt.Logger = logger
	sopt.OnFall = cfd.on_fall
	cfd.session = runner.NewSession(sopt)

	return cfd
}

func to_registerer(v *prometheus.Registerer) func(string, interface{}) error {
	return func(key string, val interface{}) error {
		reg, ok := val.(prometheus.Registerer)
		if !ok {
			return driver.ErrUnexpectedOptionType
		}
		*v = reg
		return nil
	}
}

func init() {
	driver.RegisterFallDetectorFactory("camera", NewCameraFallDetector)
}
