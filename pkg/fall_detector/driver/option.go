package fall_detector_driver

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
)

// Option setters for opt_helper.Setopt that accept loosely typed config
// values, e.g. "50" or 50 for a float option.

func ToFloat64(v *float64) func(string, interface{}) error {
	return func(key string, val interface{}) error {
		x, err := cast.ToFloat64E(val)
		if err != nil {
			return err
		}
		*v = x
		return nil
	}
}

func ToBool(v *bool) func(string, interface{}) error {
	return func(key string, val interface{}) error {
		x, err := cast.ToBoolE(val)
		if err != nil {
			return err
		}
		*v = x
		return nil
	}
}

func ToStringLoose(v *string) func(string, interface{}) error {
	return func(key string, val interface{}) error {
		x, err := cast.ToStringE(val)
		if err != nil {
			return err
		}
		*v = x
		return nil
	}
}

func ToStringSlice(v *[]string) func(string, interface{}) error {
	return func(key string, val interface{}) error {
		x, err := cast.ToStringSliceE(val)
		if err != nil {
			return err
		}
		*v = x
		return nil
	}
}

func DefaultLogger(logger logrus.FieldLogger) logrus.FieldLogger {
	if logger == nil {
		return logrus.New()
	}
	return logger
}
