package config

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/xhit/go-str2duration/v2"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/api/resource"
)

// Duration accepts Go durations plus days and weeks ("1d12h", "2w").
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*d = 0
		return nil
	}
	v, err := str2duration.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid duration '%s'", value.Line, s)
	}
	if v < 0 {
		return errors.Newf("line %d: duration must be >= 0, got '%s'", value.Line, s)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalYAML() (any, error) {
	return str2duration.String(time.Duration(d)), nil
}

// ByteSize is a byte count written as a resource quantity ("64Mi", "1G").
type ByteSize int64

func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	if s == "" {
		*b = 0
		return nil
	}
	q, err := resource.ParseQuantity(s)
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid byte size '%s'", value.Line, s)
	}
	if q.Sign() < 0 {
		return errors.Newf("line %d: byte size must be >= 0, got '%s'", value.Line, s)
	}
	// Value rounds fractional byte counts up
	*b = ByteSize(q.Value())
	return nil
}

func (b ByteSize) MarshalYAML() (any, error) {
	return resource.NewQuantity(int64(b), resource.BinarySI).String(), nil
}
