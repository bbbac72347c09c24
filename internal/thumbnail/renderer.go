package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoRenderer is returned when a mesh must be rendered but no renderer is configured.
var ErrNoRenderer = errors.New("no mesh renderer configured")

// RenderRequest describes one mesh render.
type RenderRequest struct {
	Input      string
	Output     string
	Extension  string
	Width      int
	Height     int
	Rotation   [3]float64
	Background string
}

// Renderer turns a model file into a PNG image at Output.
type Renderer interface {
	Render(ctx context.Context, req RenderRequest) error
}

// ExecRenderer runs an external executable for every render.
type ExecRenderer struct {
	Binary string
}

// Render invokes the executable with the request encoded as flags.
func (r ExecRenderer) Render(ctx context.Context, req RenderRequest) error {
	binary := strings.TrimSpace(r.Binary)
	if binary == "" {
		return ErrNoRenderer
	}
	cmd := exec.CommandContext(ctx, binary, renderArgs(req)...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("render %s: %w: %s", req.Input, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func renderArgs(req RenderRequest) []string {
	rotation := make([]string, len(req.Rotation))
	for i, v := range req.Rotation {
		rotation[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return []string{
		"--input", req.Input,
		"--output", req.Output,
		"--width", strconv.Itoa(req.Width),
		"--height", strconv.Itoa(req.Height),
		"--rotate", strings.Join(rotation, ","),
		"--background", req.Background,
	}
}
