package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"audio-advisor/pkg/models"
)

var ErrUnsupportedWAV = errors.New("unsupported wav file")

type wavFormat struct {
	audioFormat   uint16
	channels      uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// ReadFeatures computes duration, RMS and zero crossing rate of a 16-bit PCM WAV file.
func ReadFeatures(path string) (models.AudioFeatures, error) {
	f, err := os.Open(path)
	if err != nil {
		return models.AudioFeatures{}, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	return DecodeFeatures(f)
}

func DecodeFeatures(r io.Reader) (models.AudioFeatures, error) {
	var header [12]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return models.AudioFeatures{}, fmt.Errorf("read riff header: %w", err)
	}
	if string(header[0:4]) != "RIFF" || string(header[8:12]) != "WAVE" {
		return models.AudioFeatures{}, fmt.Errorf("%w: missing RIFF/WAVE header", ErrUnsupportedWAV)
	}

	var format *wavFormat
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(r, chunk[:]); err != nil {
			return models.AudioFeatures{}, fmt.Errorf("%w: no data chunk", ErrUnsupportedWAV)
		}
		id := string(chunk[0:4])
		size := binary.LittleEndian.Uint32(chunk[4:8])

		switch id {
		case "fmt ":
			buf := make([]byte, size+size%2)
			if _, err := io.ReadFull(r, buf); err != nil {
				return models.AudioFeatures{}, fmt.Errorf("read fmt chunk: %w", err)
			}
			if size < 16 {
				return models.AudioFeatures{}, fmt.Errorf("%w: short fmt chunk", ErrUnsupportedWAV)
			}
			format = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(buf[0:2]),
				channels:      binary.LittleEndian.Uint16(buf[2:4]),
				sampleRate:    binary.LittleEndian.Uint32(buf[4:8]),
				bitsPerSample: binary.LittleEndian.Uint16(buf[14:16]),
			}
		case "data":
			if format == nil {
				return models.AudioFeatures{}, fmt.Errorf("%w: data before fmt", ErrUnsupportedWAV)
			}
			return measure(r, *format)
		default:
			if _, err := io.CopyN(io.Discard, r, int64(size)+int64(size%2)); err != nil {
				return models.AudioFeatures{}, fmt.Errorf("skip %q chunk: %w", id, err)
			}
		}
	}
}

// measure streams the data chunk. The declared chunk size is ignored because
// streaming encoders write a placeholder there.
func measure(r io.Reader, format wavFormat) (models.AudioFeatures, error) {
	// 0xFFFE is WAVE_FORMAT_EXTENSIBLE, which ffmpeg never emits for pcm_s16le but other tools do.
	if (format.audioFormat != 1 && format.audioFormat != 0xFFFE) || format.bitsPerSample != 16 {
		return models.AudioFeatures{}, fmt.Errorf("%w: format %d with %d bits", ErrUnsupportedWAV, format.audioFormat, format.bitsPerSample)
	}
	if format.channels == 0 || format.sampleRate == 0 {
		return models.AudioFeatures{}, fmt.Errorf("%w: zero channels or sample rate", ErrUnsupportedWAV)
	}

	var (
		sumSquares float64
		samples    int64
		crossings  int64
		prev       int16
		buf        = make([]byte, 32*1024)
		carry      []byte
	)

	for {
		n, err := r.Read(buf)
		data := append(carry, buf[:n]...)
		even := len(data) - len(data)%2
		for i := 0; i < even; i += 2 {
			s := int16(binary.LittleEndian.Uint16(data[i : i+2]))
			v := float64(s) / 32768.0
			sumSquares += v * v
			if samples > 0 && (prev < 0) != (s < 0) {
				crossings++
			}
			prev = s
			samples++
		}
		carry = append(carry[:0], data[even:]...)

		if err == io.EOF {
			break
		}
		if err != nil {
			return models.AudioFeatures{}, fmt.Errorf("read samples: %w", err)
		}
	}

	features := models.AudioFeatures{
		SampleRate: int(format.sampleRate),
		Channels:   int(format.channels),
	}
	if samples == 0 {
		return features, nil
	}

	frames := float64(samples) / float64(format.channels)
	features.DurationSeconds = frames / float64(format.sampleRate)
	features.RMS = math.Sqrt(sumSquares / float64(samples))
	if samples > 1 {
		features.ZeroCrossingRate = float64(crossings) / float64(samples-1)
	}
	return features, nil
}
