package fall_detector_pose

import "errors"

var (
	ErrEstimatorClosed       = errors.New("pose estimator closed")
	ErrMessageTooLarge       = errors.New("pose estimator message too large")
	ErrEstimatorCommandUnset = errors.New("pose estimator command unset")
)
