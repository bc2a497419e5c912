package fall_detector_camera_driver

import (
	"context"
	"errors"
	"io/ioutil"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	driver "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/driver"
	pose "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/pose"
	runner "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/runner"
)

type fake_frame struct {
	id int
}

func (f *fake_frame) Width() int                  { return 640 }
func (f *fake_frame) Height() int                 { return 480 }
func (f *fake_frame) EncodeJPEG() ([]byte, error) { return nil, nil }

type fake_source struct {
	count  int
	next   int
	closed bool
}

func (s *fake_source) ReadFrame() (pose.Image, bool) {
	if s.next >= s.count {
		return nil, false
	}
	f := &fake_frame{id: s.next}
	s.next++
	return f, true
}

func (s *fake_source) Close() error {
	s.closed = true
	return nil
}

// fake_estimator returns bodies[id % len(bodies)] and fails on frame err_at.
type fake_estimator struct {
	bodies []*pose.Landmarks
	err_at int
	closed bool
}

func (e *fake_estimator) Estimate(img pose.Image) (*pose.Landmarks, error) {
	f := img.(*fake_frame)
	if e.err_at > 0 && f.id == e.err_at {
		return nil, errors.New("inference failed")
	}
	return e.bodies[f.id%len(e.bodies)], nil
}

func (e *fake_estimator) Close() error {
	e.closed = true
	return nil
}

func body(shoulder_y, hip_y float64) *pose.Landmarks {
	points := make([]pose.Landmark, pose.NUM_POSE_LANDMARKS)
	points[pose.LEFT_SHOULDER] = pose.Landmark{Y: shoulder_y}
	points[pose.RIGHT_SHOULDER] = pose.Landmark{Y: shoulder_y}
	points[pose.LEFT_HIP] = pose.Landmark{Y: hip_y}
	points[pose.RIGHT_HIP] = pose.Landmark{Y: hip_y}
	return pose.NewLandmarks(points)
}

func quiet_logger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func start_test_detector(opt *CameraFallDetectorOption, src *fake_source, est *fake_estimator) *CameraFallDetector {
	ctx, cancel := context.WithCancel(context.Background())
	cfd := new_camera_fall_detector(ctx, cancel, opt, quiet_logger(), &runner.SessionOption{
		Source:    src,
		Estimator: est,
	})
	go cfd.mainloop()
	return cfd
}

func drain(t *testing.T, fd driver.FallDetector) []driver.Event {
	var evts []driver.Event
	timeout := time.After(time.Second)
	for {
		select {
		case evt, ok := <-fd.Detect():
			if !ok {
				return evts
			}
			evts = append(evts, evt)
		case <-timeout:
			t.Fatalf("detect channel not closed")
			return nil
		}
	}
}

func TestCameraFallDetectorOptionDefaults(t *testing.T) {
	opt := NewCameraFallDetectorOption()

	assert.Equal(t, "0", opt.Device)
	assert.True(t, opt.Mirror)
	assert.False(t, opt.Display)
	assert.Equal(t, 50.0, opt.ThresholdPx)
	assert.Equal(t, 0.7, opt.Estimator.MinDetectionConfidence)
	assert.Equal(t, 0.7, opt.Estimator.MinTrackingConfidence)
}

func TestCameraFallDetectorEmitsFallDetected(t *testing.T) {
	opt := NewCameraFallDetectorOption()
	opt.Device = "/dev/video2"

	standing := body(0.30, 0.60)
	lying := body(0.40, 0.42)
	src := &fake_source{count: 6}
	est := &fake_estimator{bodies: []*pose.Landmarks{standing, standing, lying, lying, standing, lying}}

	cfd := start_test_detector(opt, src, est)
	defer cfd.Close()

	evts := drain(t, cfd)
	require.Len(t, evts, 2)

	fde, err := driver.ToFallDetectedE(evts[0])
	require.NoError(t, err)
	assert.Equal(t, uint64(3), fde.Seq())
	assert.InDelta(t, 9.6, fde.SpanPx(), 1e-9)
	assert.Equal(t, "/dev/video2", fde.Source())

	assert.Equal(t, uint64(6), driver.ToFallDetected(evts[1]).Seq())

	assert.NoError(t, cfd.Err(), "an exhausted source is a normal end")
	assert.True(t, src.closed)
	assert.True(t, est.closed)
}

func TestCameraFallDetectorKeepsSessionError(t *testing.T) {
	src := &fake_source{count: 5}
	est := &fake_estimator{bodies: []*pose.Landmarks{nil}, err_at: 2}

	cfd := start_test_detector(NewCameraFallDetectorOption(), src, est)
	defer cfd.Close()

	assert.Empty(t, drain(t, cfd))
	assert.EqualError(t, cfd.Err(), "inference failed")
	assert.True(t, src.closed)
}

func TestCameraFallDetectorCloseUnblocksFall(t *testing.T) {
	src := &fake_source{count: 1 << 20}
	est := &fake_estimator{bodies: []*pose.Landmarks{body(0.40, 0.42)}}

	cfd := start_test_detector(NewCameraFallDetectorOption(), src, est)

	// nobody reads Detect, so the first fall blocks the session
	closed := make(chan struct{})
	go func() {
		cfd.Close()
		close(closed)
	}()

	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatalf("close blocked by pending fall event")
	}

	assert.Empty(t, drain(t, cfd))
	assert.NoError(t, cfd.Err(), "close is not a failure")
	assert.True(t, src.closed)
	assert.True(t, est.closed)
}

func TestToRegisterer(t *testing.T) {
	var reg prometheus.Registerer

	assert.NoError(t, to_registerer(&reg)("registerer", prometheus.NewRegistry()))
	assert.NotNil(t, reg)

	assert.Equal(t, driver.ErrUnexpectedOptionType, to_registerer(&reg)("registerer", "default"))
}
