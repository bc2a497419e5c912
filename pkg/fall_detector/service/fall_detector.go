package fall_detector_service

import (
	"time"

	"github.com/spf13/cast"

	driver "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/driver"
	_ "github.com/nayotta/metathings-sensor-fall-detector/pkg/fall_detector/driver/camera"
	cfg_helper "github.com/nayotta/metathings/pkg/common/config"
	id_helper "github.com/nayotta/metathings/pkg/common/id"
	component "github.com/nayotta/metathings/pkg/component"
)

type FallDetectorService struct {
	module        *component.Module
	fall_detector driver.FallDetector
	event_stream  *component.FrameStream
}

func (fds *FallDetectorService) is_trigger_event() bool {
	return fds.event_stream != nil
}

func (fds *FallDetectorService) startup() {
	logger := fds.module.Logger()

	knl := fds.module.Kernel()
	kc := knl.Config()
	drv, args, err := cfg_helper.ParseConfigOption("name", cast.ToStringMap(kc.Get("fall_detector")),
		"logger", logger,
	)
	if err != nil {
		defer fds.module.Stop()
		logger.WithError(err).Errorf("failed to parse fall detector config")
		return
	}

	ntf_flw_n := kc.GetString("notification.flow_name")
	if ntf_flw_n != "" {
		fds.event_stream, err = knl.NewFrameStream(ntf_flw_n)
		if err != nil {
			defer fds.module.Stop()
			logger.WithError(err).Errorf("failed to new frame stream")
			return
		}
	}

	fds.fall_detector, err = driver.NewFallDetector(drv, args...)
	if err != nil {
		defer fds.module.Stop()
		logger.WithError(err).Errorf("failed to new fall detector")
		return
	}

	go fds.fall_detector_loop()
}

func fall_detected_frame(module_name string, fde driver.FallDetected) map[string]interface{} {
	return map[string]interface{}{
		"id":   id_helper.NewId(),
		"type": driver.EVENT_FALL_DETECTED,
		"module": map[string]interface{}{
			"name": module_name,
		},
		"seq":       fde.Seq(),
		"span_px":   fde.SpanPx(),
		"source":    fde.Source(),
		"timestamp": fde.Timestamp().Format(time.RFC3339Nano),
	}
}

func (fds *FallDetectorService) fall_detector_loop() {
	logger := fds.module.Logger()

	defer fds.module.Stop()
	defer fds.fall_detector.Close()
	for {
		select {
		case evt, ok := <-fds.fall_detector.Detect():
			if !ok {
				if err := fds.fall_detector.Err(); err != nil {
					logger.WithError(err).Errorf("fall detector failed")
				} else {
					logger.Warningf("fall detector closed")
				}
				return
			}

			fde := driver.ToFallDetected(evt)
			if fde == nil {
				logger.Warningf("unexpected event type")
				continue
			}

			logger.WithField("span_px", fde.SpanPx()).Warningf("fall detected")

			if fds.is_trigger_event() {
				if err := fds.event_stream.Push(fall_detected_frame(fds.module.Name(), fde)); err != nil {
					logger.WithError(err).Errorf("failed to push fall detected event")
					return
				}
			}
		}
	}
}

func (fds *FallDetectorService) InitModuleService(m *component.Module) error {
	fds.module = m

	go fds.startup()

	return nil
}
