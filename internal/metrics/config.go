package metrics

import (
	"net"

	"codeberg.org/mutker/asusfanctl/internal/errors"
)

type Config struct {
	// Listen is the address of the /metrics endpoint. Empty disables it.
	Listen string
}

func DefaultConfig() Config {
	return Config{}
}

func (c Config) Enabled() bool {
	return c.Listen != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.New().Wrap(ErrInvalidListen, err)
	}
	return nil
}
