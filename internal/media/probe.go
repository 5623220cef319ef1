package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
)

// ErrUnknownFormat is returned by Duration for files that are neither WAV nor MP3.
var ErrUnknownFormat = errors.New("unknown audio format")

// Duration reports the playing time of a WAV or MP3 file. The format is taken
// from the file header, not the extension.
func Duration(path string) (time.Duration, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	header := make([]byte, 4)
	if _, err := io.ReadFull(file, header); err != nil {
		return 0, fmt.Errorf("read header of %s: %w", path, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}

	if bytes.Equal(header, []byte("RIFF")) {
		return wavDuration(file, path)
	}
	return mp3Duration(file, path)
}

// wavDuration counts frames in the data chunk. The decoder's own Duration
// works from the RIFF size in whole seconds, which is too coarse here.
func wavDuration(file *os.File, path string) (time.Duration, error) {
	dec := wav.NewDecoder(file)
	if err := dec.FwdToPCM(); err != nil {
		return 0, fmt.Errorf("%s: invalid wav file: %w", path, err)
	}
	frameBytes := int64(dec.NumChans) * int64(dec.BitDepth/8)
	if frameBytes == 0 || dec.SampleRate == 0 {
		return 0, fmt.Errorf("%s: wav header has no frame layout", path)
	}
	frames := dec.PCMLen() / frameBytes
	return time.Duration(frames) * time.Second / time.Duration(dec.SampleRate), nil
}

func mp3Duration(file *os.File, path string) (time.Duration, error) {
	dec, err := mp3.NewDecoder(file)
	if err != nil {
		return 0, fmt.Errorf("%s: %w: %v", path, ErrUnknownFormat, err)
	}
	// go-mp3 always decodes to 16-bit stereo.
	const bytesPerFrame = 4
	length := dec.Length()
	if length <= 0 || dec.SampleRate() <= 0 {
		return 0, fmt.Errorf("%s: cannot determine mp3 length", path)
	}
	frames := length / bytesPerFrame
	return time.Duration(frames) * time.Second / time.Duration(dec.SampleRate()), nil
}
