package fall_detector_driver

import (
	"encoding/json"
	"io/ioutil"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"

	classifier "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/classifier"
	pose "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/pose"
	opt_helper "github.com/nayotta/metathings/pkg/common/option"
)

type LandmarkDirFallDetectorOption struct {
	Path         string
	ThresholdPx  float64
	Fsnotifyloop struct {
		Timeout time.Duration
	}
}

func NewLandmarkDirFallDetectorOption() *LandmarkDirFallDetectorOption {
	opt := &LandmarkDirFallDetectorOption{}

	opt.ThresholdPx = classifier.DEFAULT_THRESHOLD_PX
	opt.Fsnotifyloop.Timeout = 200 * time.Millisecond

	return opt
}

// landmark_file is written by an external pose estimator, one per frame.
// Null or empty landmarks mean no body was detected in that frame.
type landmark_file struct {
	Seq         uint64          `json:"seq"`
	FrameWidth  int             `json:"frame_width"`
	FrameHeight int             `json:"frame_height"`
	Landmarks   []pose.Landmark `json:"landmarks"`
}

// LandmarkDirFallDetector classifies landmark files dropped into a
// directory. All files go through one classifier owned by mainloop.
type LandmarkDirFallDetector struct {
	opt           *LandmarkDirFallDetectorOption
	logger        logrus.FieldLogger
	watcher       *fsnotify.Watcher
	classifier    *classifier.Classifier
	events        chan Event
	mainloop_chan chan string
	fsnotify_map  map[string]chan struct{}
	fsnotify_mtx  sync.Mutex
	last_seq      uint64
	err           error
	err_mtx       sync.Mutex
	done          chan struct{}
	close_once    sync.Once
}

func (ldfd *LandmarkDirFallDetector) get_logger() logrus.FieldLogger {
	return ldfd.logger
}

func (ldfd *LandmarkDirFallDetector) Detect() <-chan Event {
	return ldfd.events
}

func (ldfd *LandmarkDirFallDetector) Err() error {
	ldfd.err_mtx.Lock()
	defer ldfd.err_mtx.Unlock()
	return ldfd.err
}

func (ldfd *LandmarkDirFallDetector) set_err(err error) {
	ldfd.err_mtx.Lock()
	ldfd.err = err
	ldfd.err_mtx.Unlock()
}

func (ldfd *LandmarkDirFallDetector) Close() {
	ldfd.close_once.Do(func() {
		logger := ldfd.get_logger()

		close(ldfd.done)
		if ldfd.watcher != nil {
			ldfd.watcher.Close()
		}

		logger.Debugf("fall detector closed")
	})
}

func (ldfd *LandmarkDirFallDetector) fsnotify_create_event_handler(evt fsnotify.Event) {
	fn := evt.Name
	if !ldfd.is_landmark_file(fn) {
		return
	}

	sign := make(chan struct{}, 1)

	ldfd.track_file(fn, sign)

	go ldfd.fsnotify_loop(fn, sign)
}

func (ldfd *LandmarkDirFallDetector) fsnotify_write_event_handler(evt fsnotify.Event) {
	fn := evt.Name
	if !ldfd.is_landmark_file(fn) {
		return
	}

	logger := ldfd.get_logger().WithField("file", fn)

	ldfd.fsnotify_mtx.Lock()
	sign, ok := ldfd.fsnotify_map[fn]
	ldfd.fsnotify_mtx.Unlock()

	if !ok {
		logger.Debugf("write to untracked file")
		return
	}

	select {
	case sign <- struct{}{}:
	default:
	}
}

// fsnotify_loop waits until fn has had no writes for the settle timeout.
func (ldfd *LandmarkDirFallDetector) fsnotify_loop(fn string, sign chan struct{}) {
	logger := ldfd.get_logger().WithFields(logrus.Fields{
		"file": fn,
		"#at":  "fsnotify_loop",
	})
	defer ldfd.forget_file(fn, sign)

	for {
		select {
		case <-sign:
			logger.Debugf("file syncing")
		case <-time.After(ldfd.opt.Fsnotifyloop.Timeout):
			select {
			case ldfd.mainloop_chan <- fn:
				logger.Debugf("file done")
			case <-ldfd.done:
			}
			return
		case <-ldfd.done:
			return
		}
	}
}

func (ldfd *LandmarkDirFallDetector) track_file(fn string, sign chan struct{}) {
	ldfd.fsnotify_mtx.Lock()
	ldfd.fsnotify_map[fn] = sign
	ldfd.fsnotify_mtx.Unlock()
}

// forget_file drops the debounce entry of fn unless a newer create of the
// same name has replaced it.
func (ldfd *LandmarkDirFallDetector) forget_file(fn string, sign chan struct{}) {
	ldfd.fsnotify_mtx.Lock()
	defer ldfd.fsnotify_mtx.Unlock()

	if ldfd.fsnotify_map[fn] == sign {
		delete(ldfd.fsnotify_map, fn)
	}
}

func (ldfd *LandmarkDirFallDetector) is_landmark_file(fn string) bool {
	return path.Ext(fn) == ".json" && !strings.HasPrefix(path.Base(fn), ".")
}

func (ldfd *LandmarkDirFallDetector) read_landmark_file(fn string) (*landmark_file, error) {
	buf, err := ioutil.ReadFile(fn)
	if err != nil {
		return nil, err
	}

	var lf landmark_file
	if err = json.Unmarshal(buf, &lf); err != nil {
		return nil, err
	}

	return &lf, nil
}

// handle_landmark_file returns a FallDetected event when fn moves the
// classifier into the fallen state.
func (ldfd *LandmarkDirFallDetector) handle_landmark_file(fn string) Event {
	logger := ldfd.get_logger().WithField("file", fn)

	lf, err := ldfd.read_landmark_file(fn)
	if err != nil {
		logger.WithError(err).Warningf("failed to read landmark file")
		return nil
	}

	if lf.Seq != 0 && lf.Seq <= ldfd.last_seq {
		logger.WithFields(logrus.Fields{
			"seq":      lf.Seq,
			"last_seq": ldfd.last_seq,
		}).Debugf("skip stale landmark file")
		return nil
	}
	if lf.Seq != 0 {
		ldfd.last_seq = lf.Seq
	}

	if len(lf.Landmarks) == 0 {
		return nil
	}

	res := ldfd.classifier.Observe(pose.NewLandmarks(lf.Landmarks), lf.FrameHeight)
	if !res.Detected {
		logger.Debugf("landmark file without usable torso")
		return nil
	}
	if !res.JustDetected {
		return nil
	}

	logger.WithFields(logrus.Fields{
		"seq":     lf.Seq,
		"span_px": res.SpanPx,
	}).Warningf("fall detected")

	return NewFallDetected(res.FallTime, lf.Seq, res.SpanPx, fn)
}

func (ldfd *LandmarkDirFallDetector) mainloop() {
	defer close(ldfd.events)
	defer ldfd.Close()

	for {
		select {
		case fn := <-ldfd.mainloop_chan:
			evt := ldfd.handle_landmark_file(fn)
			if evt == nil {
				continue
			}

			select {
			case ldfd.events <- evt:
			case <-ldfd.done:
				return
			}
		case <-ldfd.done:
			return
		}
	}
}

func (ldfd *LandmarkDirFallDetector) watchloop() {
	logger := ldfd.get_logger()

	defer ldfd.Close()
	for {
		select {
		case event, ok := <-ldfd.watcher.Events:
			if !ok {
				return
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				ldfd.fsnotify_create_event_handler(event)
			} else if event.Op&fsnotify.Write == fsnotify.Write {
				ldfd.fsnotify_write_event_handler(event)
			}
		case err, ok := <-ldfd.watcher.Errors:
			if ok {
				logger.WithError(err).Warningf("receive fswatcher error")
				ldfd.set_err(err)
			}
			return
		case <-ldfd.done:
			return
		}
	}
}

func new_landmark_dir_fall_detector(opt *LandmarkDirFallDetectorOption, logger logrus.FieldLogger, watcher *fsnotify.Watcher) *LandmarkDirFallDetector {
	copt := classifier.NewClassifierOption()
	copt.ThresholdPx = opt.ThresholdPx

	return &LandmarkDirFallDetector{
		opt:           opt,
		logger:        logger,
		watcher:       watcher,
		classifier:    classifier.NewClassifier(copt),
		events:        make(chan Event),
		mainloop_chan: make(chan string),
		fsnotify_map:  make(map[string]chan struct{}),
		done:          make(chan struct{}),
	}
}

func NewLandmarkDirFallDetector(args ...interface{}) (FallDetector, error) {
	var err error
	var logger logrus.FieldLogger
	opt := NewLandmarkDirFallDetectorOption()

	if err = opt_helper.Setopt(map[string]func(string, interface{}) error{
		"path":                 opt_helper.ToString(&opt.Path),
		"threshold":            ToFloat64(&opt.ThresholdPx),
		"fsnotifyloop_timeout": opt_helper.ToDuration(&opt.Fsnotifyloop.Timeout),
		"logger":               opt_helper.ToLogger(&logger),
	})(args...); err != nil {
		return nil, err
	}

	if opt.Path == "" {
		return nil, ErrPathUnset
	}

	logger = DefaultLogger(logger).WithField("driver", "landmark_dir")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err = watcher.Add(opt.Path); err != nil {
		watcher.Close()
		return nil, err
	}

	ldfd := new_landmark_dir_fall_detector(opt, logger, watcher)

	go ldfd.watchloop()
	go ldfd.mainloop()

	return ldfd, nil
}

func init() {
	RegisterFallDetectorFactory("landmark_dir", NewLandmarkDirFallDetector)
}
