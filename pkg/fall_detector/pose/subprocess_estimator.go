package fall_detector_pose

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmihailenco/msgpack/v5"
)

type SubprocessEstimatorOption struct {
	Command                string
	Args                   []string
	MinDetectionConfidence float64
	MinTrackingConfidence  float64
	MaxMessageSize         uint32
	Stop                   struct {
		Timeout time.Duration
	}
}

func NewSubprocessEstimatorOption() *SubprocessEstimatorOption {
	opt := &SubprocessEstimatorOption{}

	opt.MinDetectionConfidence = 0.7
	opt.MinTrackingConfidence = 0.7
	opt.MaxMessageSize = 64 << 20
	opt.Stop.Timeout = 2 * time.Second

	return opt
}

func (opt *SubprocessEstimatorOption) command_args() []string {
	args := append([]string{}, opt.Args...)
	args = append(args,
		"--min-detection-confidence", fmt.Sprintf("%.2f", opt.MinDetectionConfidence),
		"--min-tracking-confidence", fmt.Sprintf("%.2f", opt.MinTrackingConfidence),
	)
	return args
}

type estimate_request struct {
	FrameData []byte `msgpack:"frame_data"`
	Width     int    `msgpack:"width"`
	Height    int    `msgpack:"height"`
	Seq       uint64 `msgpack:"seq"`
}

type estimate_response struct {
	Seq       uint64             `msgpack:"seq"`
	Landmarks []Landmark         `msgpack:"landmarks"`
	Timing    map[string]float64 `msgpack:"timing"`
	Error     string             `msgpack:"error"`
}

// SubprocessEstimator drives an external pose worker process. Each Estimate
// call writes one request to the worker's stdin and blocks for one response
// on its stdout. Messages are a 4-byte big-endian length followed by a
// msgpack body.
type SubprocessEstimator struct {
	opt        *SubprocessEstimatorOption
	logger     logrus.FieldLogger
	cmd        *exec.Cmd
	stdin      io.WriteCloser
	stdout     *bufio.Reader
	seq        uint64
	wait_chan  chan error
	close_once sync.Once
	closed     atomic.Bool
}

func (se *SubprocessEstimator) get_logger() logrus.FieldLogger {
	return se.logger
}

func (se *SubprocessEstimator) Estimate(img Image) (*Landmarks, error) {
	if se.closed.Load() {
		return nil, ErrEstimatorClosed
	}

	buf, err := img.EncodeJPEG()
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}

	se.seq++
	req := &estimate_request{
		FrameData: buf,
		Width:     img.Width(),
		Height:    img.Height(),
		Seq:       se.seq,
	}
	if err = write_message(se.stdin, req); err != nil {
		return nil, fmt.Errorf("failed to send frame to pose estimator: %w", err)
	}

	var res estimate_response
	if err = read_message(se.stdout, se.opt.MaxMessageSize, &res); err != nil {
		return nil, fmt.Errorf("failed to receive pose estimator result: %w", err)
	}

	if res.Error != "" {
		return nil, fmt.Errorf("pose estimator: %s", res.Error)
	}

	se.get_logger().WithFields(logrus.Fields{
		"seq":       res.Seq,
		"landmarks": len(res.Landmarks),
		"total_ms":  res.Timing["total_ms"],
	}).Debugf("pose estimated")

	if len(res.Landmarks) == 0 {
		return nil, nil
	}

	return NewLandmarks(res.Landmarks), nil
}

func (se *SubprocessEstimator) Close() error {
	var err error

	se.close_once.Do(func() {
		logger := se.get_logger()

		se.closed.Store(true)
		err = se.stdin.Close()

		if se.cmd == nil {
			return
		}

		select {
		case werr := <-se.wait_chan:
			if werr != nil {
				logger.WithError(werr).Debugf("pose estimator exited")
			}
		case <-time.After(se.opt.Stop.Timeout):
			logger.Warningf("pose estimator did not exit in time, killing")
			if kerr := se.cmd.Process.Kill(); kerr != nil {
				logger.WithError(kerr).Warningf("failed to kill pose estimator")
			}
			<-se.wait_chan
		}

		logger.Debugf("pose estimator closed")
	})

	return err
}

func (se *SubprocessEstimator) stderr_loop(stderr io.Reader) {
	logger := se.get_logger().WithField("#at", "stderr_loop")

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "ERROR") || strings.Contains(line, "CRITICAL"):
			logger.Errorf("%s", line)
		case strings.Contains(line, "WARN"):
			logger.Warningf("%s", line)
		default:
			logger.Debugf("%s", line)
		}
	}
}

func new_stream_estimator(opt *SubprocessEstimatorOption, logger logrus.FieldLogger, stdin io.WriteCloser, stdout io.Reader) *SubprocessEstimator {
	return &SubprocessEstimator{
		opt:    opt,
		logger: logger,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}
}

// NewSubprocessEstimator starts the pose worker. The process is bound to ctx.
func NewSubprocessEstimator(ctx context.Context, opt *SubprocessEstimatorOption, logger logrus.FieldLogger) (*SubprocessEstimator, error) {
	if opt.Command == "" {
		return nil, ErrEstimatorCommandUnset
	}

	logger = logger.WithField("estimator", opt.Command)

	cmd := exec.CommandContext(ctx, opt.Command, opt.command_args()...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}

	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start pose estimator: %w", err)
	}

	se := new_stream_estimator(opt, logger, stdin, stdout)
	se.cmd = cmd
	se.wait_chan = make(chan error, 1)

	go se.stderr_loop(stderr)
	go func() {
		se.wait_chan <- cmd.Wait()
	}()

	logger.WithFields(logrus.Fields{
		"min_detection_confidence": opt.MinDetectionConfidence,
		"min_tracking_confidence":  opt.MinTrackingConfidence,
	}).Debugf("pose estimator started")

	return se, nil
}

func write_message(w io.Writer, v interface{}) error {
	body, err := msgpack.Marshal(v)
	if err != nil {
		return err
	}

	var prefix [4]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))
	if _, err = w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func read_message(r io.Reader, max uint32, v interface{}) error {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(prefix[:])
	if max > 0 && n > max {
		return ErrMessageTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return err
	}

	return msgpack.Unmarshal(body, v)
}
