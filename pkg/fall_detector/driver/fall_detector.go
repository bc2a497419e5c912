package fall_detector_driver

import (
	"sync"
	"time"
)

type Event interface {
	Type() string
	Timestamp() time.Time
}

type FallDetected interface {
	Event

	Seq() uint64
	SpanPx() float64
	Source() string
}

func ToFallDetectedE(evt Event) (FallDetected, error) {
	fde, ok := evt.(FallDetected)
	if !ok {
		return nil, ErrUnexpectedEvent
	}
	return fde, nil
}

func ToFallDetected(evt Event) FallDetected {
	fde, _ := ToFallDetectedE(evt)
	return fde
}

// FallDetector emits an event each time the watched body enters the
// fallen state. The event channel is closed when the detector stops; Err
// then tells a failure apart from a normal end.
type FallDetector interface {
	Detect() <-chan Event
	Err() error
	Close()
}

type FallDetectorFactory func(...interface{}) (FallDetector, error)

var fall_detector_factories map[string]FallDetectorFactory
var fall_detector_factories_mtx sync.Mutex

func RegisterFallDetectorFactory(name string, fty FallDetectorFactory) {
	fall_detector_factories_mtx.Lock()
	defer fall_detector_factories_mtx.Unlock()

	if fall_detector_factories == nil {
		fall_detector_factories = make(map[string]FallDetectorFactory)
	}
	fall_detector_factories[name] = fty
}

func NewFallDetector(name string, args ...interface{}) (FallDetector, error) {
	fall_detector_factories_mtx.Lock()
	fty, ok := fall_detector_factories[name]
	fall_detector_factories_mtx.Unlock()

	if !ok {
		return nil, ErrUnsupportedFallDetectorDriver
	}

	return fty(args...)
}
