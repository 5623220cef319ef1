package media

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

type ffmpeg struct {
	cmd []string
}

// NewFFmpeg returns a Processor backed by the ffmpeg binary named in command.
// Extra words in command (for example "-hide_banner -loglevel error") are
// placed before the generated arguments.
func NewFFmpeg(command string) (Processor, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse ffmpeg command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("ffmpeg command empty")
	}
	return &ffmpeg{cmd: args}, nil
}

func (f *ffmpeg) Concat(ctx context.Context, req ConcatRequest) error {
	return f.run(ctx, ConcatArgs(req))
}

func (f *ffmpeg) Tempo(ctx context.Context, req TempoRequest) error {
	filter, err := AtempoFilter(req.Speed)
	if err != nil {
		return err
	}
	return f.run(ctx, TempoArgs(req, filter))
}

// ConcatArgs returns the ffmpeg arguments for a stream-copy concat.
func ConcatArgs(req ConcatRequest) []string {
	return []string{"-f", "concat", "-safe", "0", "-i", req.ManifestPath, "-c", "copy", req.OutputPath, "-y"}
}

// TempoArgs returns the ffmpeg arguments for an audio-only tempo change.
func TempoArgs(req TempoRequest, filter string) []string {
	return []string{"-i", req.InputPath, "-filter:a", filter, "-vn", req.OutputPath, "-y"}
}

func (f *ffmpeg) run(ctx context.Context, extra []string) error {
	base := f.cmd[0]
	args := append([]string{}, f.cmd[1:]...)
	args = append(args, extra...)

	command := exec.CommandContext(ctx, base, args...)
	var stderr bytes.Buffer
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%w: %v", ctxErr, err)
		}
		return &CommandError{Command: base, Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}
	return nil
}
