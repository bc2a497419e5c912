package fall_detector_video

import "errors"

var (
	ErrUnexpectedFrame = errors.New("unexpected frame type")
)
