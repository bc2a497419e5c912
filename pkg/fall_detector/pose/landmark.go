package fall_detector_pose

type PoseLandmark int

// Body points in MediaPipe Pose order.
const (
	NOSE PoseLandmark = iota
	LEFT_EYE_INNER
	LEFT_EYE
	LEFT_EYE_OUTER
	RIGHT_EYE_INNER
	RIGHT_EYE
	RIGHT_EYE_OUTER
	LEFT_EAR
	RIGHT_EAR
	MOUTH_LEFT
	MOUTH_RIGHT
	LEFT_SHOULDER
	RIGHT_SHOULDER
	LEFT_ELBOW
	RIGHT_ELBOW
	LEFT_WRIST
	RIGHT_WRIST
	LEFT_PINKY
	RIGHT_PINKY
	LEFT_INDEX
	RIGHT_INDEX
	LEFT_THUMB
	RIGHT_THUMB
	LEFT_HIP
	RIGHT_HIP
	LEFT_KNEE
	RIGHT_KNEE
	LEFT_ANKLE
	RIGHT_ANKLE
	LEFT_HEEL
	RIGHT_HEEL
	LEFT_FOOT_INDEX
	RIGHT_FOOT_INDEX

	NUM_POSE_LANDMARKS
)

// Connections drawn between landmarks when rendering a skeleton.
var POSE_CONNECTIONS = [][2]PoseLandmark{
	{LEFT_SHOULDER, RIGHT_SHOULDER},
	{LEFT_SHOULDER, LEFT_ELBOW},
	{LEFT_ELBOW, LEFT_WRIST},
	{RIGHT_SHOULDER, RIGHT_ELBOW},
	{RIGHT_ELBOW, RIGHT_WRIST},
	{LEFT_SHOULDER, LEFT_HIP},
	{RIGHT_SHOULDER, RIGHT_HIP},
	{LEFT_HIP, RIGHT_HIP},
	{LEFT_HIP, LEFT_KNEE},
	{LEFT_KNEE, LEFT_ANKLE},
	{RIGHT_HIP, RIGHT_KNEE},
	{RIGHT_KNEE, RIGHT_ANKLE},
	{LEFT_ANKLE, LEFT_HEEL},
	{LEFT_HEEL, LEFT_FOOT_INDEX},
	{RIGHT_ANKLE, RIGHT_HEEL},
	{RIGHT_HEEL, RIGHT_FOOT_INDEX},
}

// Landmark is a body point normalized to the frame: X and Y in [0,1]
// relative to frame width and height.
type Landmark struct {
	X          float64 `msgpack:"x" json:"x"`
	Y          float64 `msgpack:"y" json:"y"`
	Z          float64 `msgpack:"z" json:"z"`
	Visibility float64 `msgpack:"visibility" json:"visibility"`
}

// Landmarks is the landmark set of one detected body, indexed by PoseLandmark.
type Landmarks struct {
	points []Landmark
}

func NewLandmarks(points []Landmark) *Landmarks {
	buf := make([]Landmark, len(points))
	copy(buf, points)
	return &Landmarks{points: buf}
}

func (l *Landmarks) Len() int {
	if l == nil {
		return 0
	}
	return len(l.points)
}

func (l *Landmarks) Get(p PoseLandmark) (Landmark, bool) {
	if l == nil || p < 0 || int(p) >= len(l.points) {
		return Landmark{}, false
	}
	return l.points[p], true
}

func (l *Landmarks) Points() []Landmark {
	if l == nil {
		return nil
	}
	buf := make([]Landmark, len(l.points))
	copy(buf, l.points)
	return buf
}

// Torso holds the four points the fall heuristic needs.
type Torso struct {
	LeftShoulder  Landmark
	RightShoulder Landmark
	LeftHip       Landmark
	RightHip      Landmark
}

func (l *Landmarks) Torso() (Torso, bool) {
	var t Torso
	var ok [4]bool

	t.LeftShoulder, ok[0] = l.Get(LEFT_SHOULDER)
	t.RightShoulder, ok[1] = l.Get(RIGHT_SHOULDER)
	t.LeftHip, ok[2] = l.Get(LEFT_HIP)
	t.RightHip, ok[3] = l.Get(RIGHT_HIP)

	return t, ok[0] && ok[1] && ok[2] && ok[3]
}
