package fall_detector_pose

// Image is a single video frame handed to a pose estimator.
type Image interface {
	Width() int
	Height() int
	EncodeJPEG() ([]byte, error)
}

// Estimator maps an image to the landmarks of a detected body.
// A nil Landmarks with nil error means no body was detected.
type Estimator interface {
	Estimate(img Image) (*Landmarks, error)
	Close() error
}
