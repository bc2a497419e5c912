package fall_detector_driver

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLooseOptionSetters(t *testing.T) {
	var f float64
	assert.NoError(t, ToFloat64(&f)("threshold", "42.5"))
	assert.Equal(t, 42.5, f)
	assert.NoError(t, ToFloat64(&f)("threshold", 50))
	assert.Equal(t, 50.0, f)
	assert.Error(t, ToFloat64(&f)("threshold", "fifty"))

	var b bool
	assert.NoError(t, ToBool(&b)("display", "true"))
	assert.True(t, b)

	var s string
	assert.NoError(t, ToStringLoose(&s)("device", 0))
	assert.Equal(t, "0", s)

	var ss []string
	assert.NoError(t, ToStringSlice(&ss)("estimator_args", []interface{}{"pose_worker.py", "--model", "lite"}))
	assert.Equal(t, []string{"pose_worker.py", "--model", "lite"}, ss)
}

func TestToFallDetectedRejectsOtherEvents(t *testing.T) {
	_, err := ToFallDetectedE(other_event{})
	assert.Equal(t, ErrUnexpectedEvent, err)
	assert.Nil(t, ToFallDetected(other_event{}))
}

type other_event struct{}

func (other_event) Type() string         { return "Other" }
func (other_event) Timestamp() time.Time { return time.Time{} }
