package fall_detector_runner

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes session counters. A nil *Metrics records nothing.
type Metrics struct {
	FramesTotal      prometheus.Counter
	BodiesTotal      prometheus.Counter
	FallsTotal       prometheus.Counter
	Fallen           prometheus.Gauge
	EstimateDuration prometheus.Histogram
}

func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error

	if m.FramesTotal, err = register_counter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fall_detector_frames_total",
		Help: "Frames read from the frame source.",
	})); err != nil {
		return nil, err
	}

	if m.BodiesTotal, err = register_counter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fall_detector_bodies_detected_total",
		Help: "Frames in which the pose estimator found a body.",
	})); err != nil {
		return nil, err
	}

	if m.FallsTotal, err = register_counter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fall_detector_falls_total",
		Help: "Transitions into the fallen state.",
	})); err != nil {
		return nil, err
	}

	gauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "fall_detector_fallen",
		Help: "1 while the tracked body is classified as fallen.",
	})
	if err = reg.Register(gauge); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		if gauge, ok = are.ExistingCollector.(prometheus.Gauge); !ok {
			return nil, fmt.Errorf("collector fall_detector_fallen already registered with incompatible type")
		}
	}
	m.Fallen = gauge

	hist := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "fall_detector_estimate_duration_seconds",
		Help:    "Duration of pose estimation per frame.",
		Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1},
	})
	if err = reg.Register(hist); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		if hist, ok = are.ExistingCollector.(prometheus.Histogram); !ok {
			return nil, fmt.Errorf("collector fall_detector_estimate_duration_seconds already registered with incompatible type")
		}
	}
	m.EstimateDuration = hist

	return m, nil
}

func (m *Metrics) observe_frame() {
	if m == nil {
		return
	}
	m.FramesTotal.Inc()
}

func (m *Metrics) observe_estimate(d time.Duration, detected bool) {
	if m == nil {
		return
	}
	m.EstimateDuration.Observe(d.Seconds())
	if detected {
		m.BodiesTotal.Inc()
	}
}

func (m *Metrics) observe_state(fallen, just_detected bool) {
	if m == nil {
		return
	}
	if just_detected {
		m.FallsTotal.Inc()
	}
	if fallen {
		m.Fallen.Set(1)
	} else {
		m.Fallen.Set(0)
	}
}

func register_counter(reg prometheus.Registerer, counter prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("counter already registered with incompatible type")
		}
		return nil, err
	}
	return counter, nil
}
