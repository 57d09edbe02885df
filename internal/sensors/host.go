package sensors

import (
	"context"
	"strings"

	"codeberg.org/mutker/asusfanctl/internal/logger"
	"github.com/shirou/gopsutil/v3/host"
)

// Host reads the operating system's temperature sensors.
type Host struct {
	read   func(ctx context.Context) ([]host.TemperatureStat, error)
	logger logger.Logger
}

func NewHost(log logger.Logger) *Host {
	return &Host{read: host.SensorsTemperaturesWithContext, logger: log}
}

// Temperatures groups sensors by the part of their key before the first
// underscore ("coretemp_core_0" belongs to "coretemp"), keeping read order.
func (h *Host) Temperatures(ctx context.Context) (map[string][]float64, error) {
	stats, err := h.read(ctx)
	if err != nil {
		// partial results come back together with warnings
		if len(stats) == 0 {
			return nil, err
		}
		h.logger.Debug().Err(err).Msg("Host sensor read returned warnings")
	}

	groups := make(map[string][]float64)
	for _, s := range stats {
		group, _, _ := strings.Cut(s.SensorKey, "_")
		groups[group] = append(groups[group], s.Temperature)
	}

	return groups, nil
}
