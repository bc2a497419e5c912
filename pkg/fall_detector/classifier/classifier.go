package fall_detector_classifier

import (
	"time"

	pose "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/pose"
)

const DEFAULT_THRESHOLD_PX = 50.0

// Classify decides whether the torso of a body is near-horizontal on screen.
// The body counts as fallen when the vertical pixel distance from the
// shoulder midpoint down to the hip midpoint is below threshold_px.
// just_detected is set only on the transition from prior=false.
func Classify(torso pose.Torso, frame_height_px float64, threshold_px float64, prior bool) (fallen bool, just_detected bool) {
	if VerticalSpan(torso, frame_height_px) < threshold_px {
		return true, !prior
	}

	return false, false
}

// VerticalSpan is the hip midpoint minus the shoulder midpoint, in pixels.
func VerticalSpan(torso pose.Torso, frame_height_px float64) float64 {
	shoulder_y := (torso.LeftShoulder.Y + torso.RightShoulder.Y) / 2 * frame_height_px
	hip_y := (torso.LeftHip.Y + torso.RightHip.Y) / 2 * frame_height_px
	return hip_y - shoulder_y
}

type Result struct {
	// Detected is false when the frame carried no usable body; the
	// remaining fields then repeat the held state.
	Detected     bool
	Fallen       bool
	JustDetected bool
	SpanPx       float64
	FallTime     time.Time
}

type ClassifierOption struct {
	ThresholdPx float64
	Now         func() time.Time
}

func NewClassifierOption() *ClassifierOption {
	return &ClassifierOption{
		ThresholdPx: DEFAULT_THRESHOLD_PX,
		Now:         time.Now,
	}
}

// Classifier carries the fallen/normal state between frames. It is not safe
// for concurrent use; one frame loop owns it.
type Classifier struct {
	opt       *ClassifierOption
	fallen    bool
	fall_time time.Time
}

func NewClassifier(opt *ClassifierOption) *Classifier {
	if opt == nil {
		opt = NewClassifierOption()
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}

	return &Classifier{opt: opt}
}

func (c *Classifier) Threshold() float64 {
	return c.opt.ThresholdPx
}

func (c *Classifier) Fallen() bool {
	return c.fallen
}

// FallTime is when the classifier last entered the fallen state.
func (c *Classifier) FallTime() time.Time {
	return c.fall_time
}

// Observe classifies one frame. Frames without a body, without the four
// torso points, or with a non-positive height leave the state untouched.
func (c *Classifier) Observe(lms *pose.Landmarks, frame_height_px int) Result {
	torso, ok := lms.Torso()
	if !ok || frame_height_px <= 0 {
		return Result{
			Fallen:   c.fallen,
			FallTime: c.fall_time,
		}
	}

	h := float64(frame_height_px)
	fallen, just_detected := Classify(torso, h, c.opt.ThresholdPx, c.fallen)
	if just_detected {
		c.fall_time = c.opt.Now()
	}
	c.fallen = fallen

	return Result{
		Detected:     true,
		Fallen:       fallen,
		JustDetected: just_detected,
		SpanPx:       VerticalSpan(torso, h),
		FallTime:     c.fall_time,
	}
}
