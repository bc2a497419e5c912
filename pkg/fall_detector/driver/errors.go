package fall_detector_driver

import "errors"

var (
	ErrUnsupportedFallDetectorDriver = errors.New("unsupported fall detector driver")
	ErrUnexpectedEvent               = errors.New("unexpected event")
	ErrPathUnset                     = errors.New("watch path unset")
	ErrUnexpectedOptionType          = errors.New("unexpected option type")
)
