package tts

import (
	"context"
	"fmt"
	"os"
	"time"
	"unicode/utf8"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// MockSampleRate is the sample rate of files written by the mock synthesizer.
const MockSampleRate = 16000

type mockSynth struct {
	perRune time.Duration
}

// NewMockSynth returns a Synthesizer that writes silent 16-bit mono WAV audio
// lasting perRune for every rune of input. It exists for dry runs and tests.
func NewMockSynth(perRune time.Duration) Synthesizer {
	if perRune <= 0 {
		perRune = 60 * time.Millisecond
	}
	return &mockSynth{perRune: perRune}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(req.TextPath)
	if err != nil {
		return fmt.Errorf("read chunk text: %w", err)
	}
	duration := time.Duration(utf8.RuneCount(data)) * m.perRune
	samples := int(duration.Seconds() * MockSampleRate)

	file, err := os.Create(req.OutputPath)
	if err != nil {
		return fmt.Errorf("create mock audio: %w", err)
	}
	defer file.Close()
	return WriteSilence(file, samples, MockSampleRate)
}

// WriteSilence encodes samples frames of 16-bit mono silence as WAV.
func WriteSilence(file *os.File, samples, sampleRate int) error {
	buffer := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: sampleRate},
		Data:           make([]int, samples),
		SourceBitDepth: 16,
	}
	enc := wav.NewEncoder(file, sampleRate, 16, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
