package media

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

type wavProcessor struct{}

// NewWAVProcessor returns a pure-Go Processor for PCM WAV input. It pairs with
// the mock synthesizer for dry runs where ffmpeg is not installed.
func NewWAVProcessor() Processor {
	return wavProcessor{}
}

func (wavProcessor) Concat(ctx context.Context, req ConcatRequest) error {
	files, err := ReadManifest(req.ManifestPath)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("manifest lists no files")
	}

	var merged *audio.IntBuffer
	var bitDepth int
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf, depth, err := readWAV(name)
		if err != nil {
			return err
		}
		if merged == nil {
			merged = buf
			bitDepth = depth
			continue
		}
		if buf.Format.SampleRate != merged.Format.SampleRate || buf.Format.NumChannels != merged.Format.NumChannels || depth != bitDepth {
			return fmt.Errorf("%s: format differs from first input", name)
		}
		merged.Data = append(merged.Data, buf.Data...)
	}
	return writeWAV(req.OutputPath, merged, bitDepth)
}

// Tempo resamples by frame decimation. Pitch shifts with speed; the mock only
// has to get the duration right.
func (wavProcessor) Tempo(ctx context.Context, req TempoRequest) error {
	if req.Speed <= 0 || math.IsNaN(req.Speed) || math.IsInf(req.Speed, 0) {
		return fmt.Errorf("invalid tempo factor %v", req.Speed)
	}
	buf, depth, err := readWAV(req.InputPath)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	channels := buf.Format.NumChannels
	frames := len(buf.Data) / channels
	outFrames := int(float64(frames) / req.Speed)
	out := make([]int, 0, outFrames*channels)
	for i := 0; i < outFrames; i++ {
		src := int(float64(i) * req.Speed)
		if src >= frames {
			break
		}
		out = append(out, buf.Data[src*channels:(src+1)*channels]...)
	}
	buf.Data = out
	return writeWAV(req.OutputPath, buf, depth)
}

func readWAV(path string) (*audio.IntBuffer, int, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer file.Close()
	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("%s: invalid wav file", path)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}
	return buf, int(dec.BitDepth), nil
}

func writeWAV(path string, buf *audio.IntBuffer, bitDepth int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()
	enc := wav.NewEncoder(file, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
