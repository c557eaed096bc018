package config

import (
	"fmt"
	"time"
)

const (
	defaultRequestInterval = 1 * time.Second
	defaultTimeout         = 30 * time.Second
)

// Duration is a time.Duration written as a Go duration string ("1.5s") in TOML.
type Duration time.Duration

func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}
