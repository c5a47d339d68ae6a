package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"audio-advisor/pkg/apperr"

	"github.com/google/uuid"
)

const (
	SampleRate = 16000
	Channels   = 1
	Codec      = "pcm_s16le"
)

// Converter turns inputPath into a mono 16 kHz signed 16-bit little-endian WAV at outputPath.
type Converter interface {
	Convert(ctx context.Context, inputPath, outputPath string) error
}

type FFmpegConverter struct {
	binary string
}

func NewFFmpegConverter(binary string) *FFmpegConverter {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &FFmpegConverter{binary: binary}
}

func (c *FFmpegConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	if _, err := exec.LookPath(c.binary); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}

	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"-acodec", Codec,
		"-f", "wav",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Normalizer validates an upload, converts it and verifies the converted file.
type Normalizer struct {
	converter Converter
	outputDir string
}

func NewNormalizer(converter Converter, outputDir string) *Normalizer {
	return &Normalizer{converter: converter, outputDir: outputDir}
}

// Normalize returns the path of a freshly converted file. On failure no
// converted file is left behind.
func (n *Normalizer) Normalize(ctx context.Context, inputPath string) (string, error) {
	info, err := os.Stat(inputPath)
	if err != nil {
		return "", apperr.Newf(apperr.ErrInvalidInput, "normalize", "input file not found: %s", inputPath)
	}
	if info.IsDir() {
		return "", apperr.Newf(apperr.ErrInvalidInput, "normalize", "input is a directory: %s", inputPath)
	}
	if info.Size() == 0 {
		return "", apperr.Newf(apperr.ErrInvalidInput, "normalize", "input file is empty")
	}

	if err := os.MkdirAll(n.outputDir, 0o755); err != nil {
		return "", apperr.New(apperr.ErrConversionFailed, "normalize", fmt.Errorf("create output dir: %w", err))
	}
	outputPath := filepath.Join(n.outputDir, fmt.Sprintf("converted_%s.wav", uuid.NewString()))

	if err := n.converter.Convert(ctx, inputPath, outputPath); err != nil {
		discard(outputPath)
		return "", apperr.New(apperr.ErrConversionFailed, "normalize", err)
	}

	// The converter may report success and still leave nothing usable behind.
	out, err := os.Stat(outputPath)
	if err != nil {
		return "", apperr.Newf(apperr.ErrConversionFailed, "normalize", "no output file created")
	}
	if out.Size() == 0 {
		discard(outputPath)
		return "", apperr.Newf(apperr.ErrConversionFailed, "normalize", "empty output file")
	}

	return outputPath, nil
}

func discard(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove partial conversion output", "path", path, "err", err)
	}
}
