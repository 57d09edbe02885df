package gpu

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"

	"codeberg.org/mutker/asusfanctl/internal/errors"
	"codeberg.org/mutker/asusfanctl/internal/logger"
)

const smiBinary = "nvidia-smi"

var smiArgs = []string{"--query-gpu=index,name,temperature.gpu", "--format=csv,noheader,nounits"}

// SMI enumerates NVIDIA GPUs by querying nvidia-smi.
type SMI struct {
	run    func(ctx context.Context) ([]byte, error)
	logger logger.Logger
}

func (s *SMI) GPUs(ctx context.Context) ([]Info, error) {
	out, err := s.run(ctx)
	if err != nil {
		return nil, errors.New().Wrap(ErrQueryFailed, err)
	}

	return parseSMI(out, s.logger)
}

func (*SMI) Close() error {
	return nil
}

// parseSMI reads "index, name, temperature" CSV rows. Rows whose temperature
// is not a number ("[N/A]") are skipped.
func parseSMI(out []byte, log logger.Logger) ([]Info, error) {
	var gpus []Info

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) < 3 {
			log.Debug().Str("line", line).Msg("Skipping malformed nvidia-smi row")
			continue
		}

		last := len(fields) - 1
		index, err := strconv.Atoi(strings.TrimSpace(fields[0]))
		if err != nil {
			log.Debug().Str("line", line).Msg("Skipping nvidia-smi row without index")
			continue
		}
		temp, err := strconv.Atoi(strings.TrimSpace(fields[last]))
		if err != nil {
			log.Debug().Str("line", line).Msg("Skipping nvidia-smi row without temperature")
			continue
		}

		gpus = append(gpus, Info{
			Index:       index,
			Name:        strings.TrimSpace(strings.Join(fields[1:last], ",")),
			Temperature: temp,
		})
	}

	if err := scanner.Err(); err != nil {
		return gpus, errors.New().Wrap(ErrQueryFailed, err)
	}

	return gpus, nil
}
