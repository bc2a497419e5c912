package fall_detector_pose

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"io/ioutil"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fake_image struct {
	width, height int
}

func (i *fake_image) Width() int                  { return i.width }
func (i *fake_image) Height() int                 { return i.height }
func (i *fake_image) EncodeJPEG() ([]byte, error) { return []byte{0xff, 0xd8, 0xff, 0xd9}, nil }

func new_test_logger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

// fake_worker answers every request on in with the next canned response.
func fake_worker(t *testing.T, in io.Reader, out io.WriteCloser, responses []estimate_response, seen chan<- estimate_request) {
	defer out.Close()
	for _, res := range responses {
		var req estimate_request
		if err := read_message(in, 0, &req); err != nil {
			return
		}
		seen <- req
		res.Seq = req.Seq
		if err := write_message(out, &res); err != nil {
			t.Errorf("fake worker write: %v", err)
			return
		}
	}
}

func standing_points() []Landmark {
	points := make([]Landmark, NUM_POSE_LANDMARKS)
	points[LEFT_SHOULDER] = Landmark{X: 0.45, Y: 0.30, Visibility: 0.99}
	points[RIGHT_SHOULDER] = Landmark{X: 0.55, Y: 0.30, Visibility: 0.99}
	points[LEFT_HIP] = Landmark{X: 0.47, Y: 0.60, Visibility: 0.98}
	points[RIGHT_HIP] = Landmark{X: 0.53, Y: 0.60, Visibility: 0.98}
	return points
}

func TestSubprocessEstimatorEstimate(t *testing.T) {
	req_r, req_w := io.Pipe()
	res_r, res_w := io.Pipe()
	seen := make(chan estimate_request, 2)

	go fake_worker(t, req_r, res_w, []estimate_response{
		{Landmarks: standing_points(), Timing: map[string]float64{"total_ms": 12.5}},
		{Landmarks: nil},
	}, seen)

	se := new_stream_estimator(NewSubprocessEstimatorOption(), new_test_logger(), req_w, res_r)
	img := &fake_image{width: 640, height: 480}

	lms, err := se.Estimate(img)
	require.NoError(t, err)
	require.NotNil(t, lms)
	assert.Equal(t, int(NUM_POSE_LANDMARKS), lms.Len())
	torso, ok := lms.Torso()
	require.True(t, ok)
	assert.InDelta(t, 0.60, torso.LeftHip.Y, 1e-9)

	req := <-seen
	assert.Equal(t, uint64(1), req.Seq)
	assert.Equal(t, 640, req.Width)
	assert.Equal(t, 480, req.Height)
	assert.NotEmpty(t, req.FrameData)

	lms, err = se.Estimate(img)
	require.NoError(t, err)
	assert.Nil(t, lms, "empty landmarks mean no body detected")
	assert.Equal(t, uint64(2), (<-seen).Seq)

	require.NoError(t, se.Close())
	_, err = se.Estimate(img)
	assert.Equal(t, ErrEstimatorClosed, err)
}

func TestSubprocessEstimatorWorkerError(t *testing.T) {
	req_r, req_w := io.Pipe()
	res_r, res_w := io.Pipe()
	seen := make(chan estimate_request, 1)

	go fake_worker(t, req_r, res_w, []estimate_response{{Error: "model not loaded"}}, seen)

	se := new_stream_estimator(NewSubprocessEstimatorOption(), new_test_logger(), req_w, res_r)
	_, err := se.Estimate(&fake_image{width: 640, height: 480})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not loaded")
}

func TestSubprocessEstimatorWorkerExit(t *testing.T) {
	req_r, req_w := io.Pipe()
	res_r, res_w := io.Pipe()
	seen := make(chan estimate_request, 1)

	// worker exits after reading the request without answering
	go fake_worker(t, req_r, res_w, nil, seen)
	go io.Copy(ioutil.Discard, req_r)

	se := new_stream_estimator(NewSubprocessEstimatorOption(), new_test_logger(), req_w, res_r)
	_, err := se.Estimate(&fake_image{width: 640, height: 480})
	assert.Error(t, err)
}

func TestReadMessageTooLarge(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], 1024)
	buf.Write(prefix[:])

	var res estimate_response
	assert.Equal(t, ErrMessageTooLarge, read_message(&buf, 16, &res))
}

func TestCommandArgs(t *testing.T) {
	opt := NewSubprocessEstimatorOption()
	opt.Args = []string{"pose_worker.py"}

	assert.Equal(t, []string{
		"pose_worker.py",
		"--min-detection-confidence", "0.70",
		"--min-tracking-confidence", "0.70",
	}, opt.command_args())
}

func TestNewSubprocessEstimatorRequiresCommand(t *testing.T) {
	_, err := NewSubprocessEstimator(context.TODO(), NewSubprocessEstimatorOption(), new_test_logger())
	assert.Equal(t, ErrEstimatorCommandUnset, err)
}
