package fall_detector_driver

import "time"

const EVENT_FALL_DETECTED = "FallDetected"

type FallDetectedImpl struct {
	timestamp time.Time
	seq       uint64
	span_px   float64
	source    string
}

func NewFallDetected(timestamp time.Time, seq uint64, span_px float64, source string) *FallDetectedImpl {
	return &FallDetectedImpl{
		timestamp: timestamp,
		seq:       seq,
		span_px:   span_px,
		source:    source,
	}
}

func (i *FallDetectedImpl) Type() string {
	return EVENT_FALL_DETECTED
}

func (i *FallDetectedImpl) Timestamp() time.Time {
	return i.timestamp
}

func (i *FallDetectedImpl) Seq() uint64 {
	return i.seq
}

func (i *FallDetectedImpl) SpanPx() float64 {
	return i.span_px
}

func (i *FallDetectedImpl) Source() string {
	return i.source
}
