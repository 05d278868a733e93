package stages

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/yungbote/synphys-pipeline/internal/pipeline"
)

// Command returns a ProcessFunc that runs argv with the unit appended as the
// final argument. The unit and rebuild flag are also exposed through
// PIPELINE_UNIT and PIPELINE_REBUILD for scripts that prefer the
// environment. The command's stdout becomes the stored payload, wrapped as
// JSON. Used by the CLI, where each stage of a declared pipeline is an
// external analysis command.
func Command(argv ...string) ProcessFunc {
	return func(ctx context.Context, unit pipeline.Unit, rebuild bool) ([]byte, error) {
		if len(argv) == 0 {
			return nil, fmt.Errorf("empty command")
		}
		args := append(append([]string{}, argv[1:]...), string(unit))
		cmd := exec.CommandContext(ctx, argv[0], args...)
		cmd.Env = append(os.Environ(),
			"PIPELINE_UNIT="+string(unit),
			fmt.Sprintf("PIPELINE_REBUILD=%t", rebuild),
		)
		var stdout, stderr bytes.Buffer
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
		if err := cmd.Run(); err != nil {
			return nil, fmt.Errorf("command %q: %w (stderr: %s)", argv[0], err, tail(stderr.String(), 512))
		}
		payload, err := json.Marshal(map[string]any{"output": stdout.String()})
		if err != nil {
			return nil, err
		}
		return payload, nil
	}
}

// CommandUnits returns a UnitsFunc that runs argv and treats each non-empty
// line of its stdout as one candidate unit.
func CommandUnits(argv ...string) UnitsFunc {
	return func(ctx context.Context) ([]pipeline.Unit, error) {
		if len(argv) == 0 {
			return nil, fmt.Errorf("empty units command")
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("units command %q: %w", argv[0], err)
		}
		var units []pipeline.Unit
		for _, line := range strings.Split(string(out), "\n") {
			line = strings.TrimSpace(line)
			if line != "" {
				units = append(units, pipeline.Unit(line))
			}
		}
		return units, nil
	}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
