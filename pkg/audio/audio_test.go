package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"audio-advisor/pkg/apperr"
)

// fakeConverter writes payload to the output path, then returns err.
type fakeConverter struct {
	payload []byte
	write   bool
	err     error

	calls int
	gotIn string
}

func (f *fakeConverter) Convert(ctx context.Context, inputPath, outputPath string) error {
	f.calls++
	f.gotIn = inputPath
	if f.write {
		if err := os.WriteFile(outputPath, f.payload, 0o644); err != nil {
			return err
		}
	}
	return f.err
}

func writeInput(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "upload.mp3")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	return path
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		t.Fatalf("read dir: %v", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestNormalizer_Normalize(t *testing.T) {
	tests := []struct {
		name      string
		input     []byte
		noInput   bool
		converter fakeConverter
		wantKind  error
		wantCalls int
	}{
		{
			name:      "success",
			input:     []byte("ID3 fake mp3"),
			converter: fakeConverter{write: true, payload: silentWAV(1, 16000)},
			wantCalls: 1,
		},
		{
			name:      "missing input",
			noInput:   true,
			wantKind:  apperr.ErrInvalidInput,
			wantCalls: 0,
		},
		{
			name:      "empty input",
			input:     []byte{},
			wantKind:  apperr.ErrInvalidInput,
			wantCalls: 0,
		},
		{
			name:      "converter error removes partial output",
			input:     []byte("data"),
			converter: fakeConverter{write: true, payload: []byte("partial"), err: errors.New("exit status 1")},
			wantKind:  apperr.ErrConversionFailed,
			wantCalls: 1,
		},
		{
			name:      "success without output file",
			input:     []byte("data"),
			converter: fakeConverter{},
			wantKind:  apperr.ErrConversionFailed,
			wantCalls: 1,
		},
		{
			name:      "success with empty output file",
			input:     []byte("data"),
			converter: fakeConverter{write: true, payload: []byte{}},
			wantKind:  apperr.ErrConversionFailed,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			inDir := t.TempDir()
			outDir := filepath.Join(t.TempDir(), "nested", "converted")

			inputPath := filepath.Join(inDir, "missing.mp3")
			if !tt.noInput {
				inputPath = writeInput(t, inDir, tt.input)
			}

			conv := tt.converter
			n := NewNormalizer(&conv, outDir)
			out, err := n.Normalize(context.Background(), inputPath)

			if conv.calls != tt.wantCalls {
				t.Fatalf("expected %d converter calls, got %d", tt.wantCalls, conv.calls)
			}

			if tt.wantKind != nil {
				if !errors.Is(err, tt.wantKind) {
					t.Fatalf("expected %v, got %v", tt.wantKind, err)
				}
				if out != "" {
					t.Fatalf("expected no output path on failure, got %q", out)
				}
				if files := listDir(t, outDir); len(files) != 0 {
					t.Fatalf("expected no converted files after failure, found %v", files)
				}
				return
			}

			if err != nil {
				t.Fatalf("normalize: %v", err)
			}
			if conv.gotIn != inputPath {
				t.Fatalf("converter got %q, want %q", conv.gotIn, inputPath)
			}
			if filepath.Dir(out) != outDir {
				t.Fatalf("expected output under %q, got %q", outDir, out)
			}
			info, err := os.Stat(out)
			if err != nil || info.Size() == 0 {
				t.Fatalf("expected non-empty output file, stat err=%v", err)
			}
		})
	}
}

func TestNormalizer_UniqueOutputPaths(t *testing.T) {
	dir := t.TempDir()
	input := writeInput(t, dir, []byte("data"))
	conv := &fakeConverter{write: true, payload: []byte("RIFF")}
	n := NewNormalizer(conv, filepath.Join(dir, "out"))

	first, err := n.Normalize(context.Background(), input)
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}
	second, err := n.Normalize(context.Background(), input)
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if first == second {
		t.Fatalf("expected distinct output paths, got %q twice", first)
	}
}

func TestDecodeFeatures_Silence(t *testing.T) {
	features, err := DecodeFeatures(bytes.NewReader(silentWAV(3, 16000)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if features.SampleRate != 16000 || features.Channels != 1 {
		t.Fatalf("unexpected format: %+v", features)
	}
	if math.Abs(features.DurationSeconds-3) > 1e-9 {
		t.Fatalf("expected 3s, got %f", features.DurationSeconds)
	}
	if features.RMS != 0 || features.ZeroCrossingRate != 0 {
		t.Fatalf("expected silent statistics, got %+v", features)
	}
}

func TestDecodeFeatures_SquareWave(t *testing.T) {
	// Alternating +A/-A crosses zero on every sample and has RMS A.
	const amp = 16384
	samples := make([]int16, 1600)
	for i := range samples {
		if i%2 == 0 {
			samples[i] = amp
		} else {
			samples[i] = -amp
		}
	}
	features, err := DecodeFeatures(bytes.NewReader(buildWAV(samples, 16000, true)))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if math.Abs(features.RMS-0.5) > 1e-9 {
		t.Fatalf("expected rms 0.5, got %f", features.RMS)
	}
	if math.Abs(features.ZeroCrossingRate-1) > 1e-9 {
		t.Fatalf("expected zcr 1, got %f", features.ZeroCrossingRate)
	}
	if math.Abs(features.DurationSeconds-0.1) > 1e-9 {
		t.Fatalf("expected 0.1s, got %f", features.DurationSeconds)
	}
}

func TestDecodeFeatures_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{name: "not riff", data: []byte("ID3\x03\x00\x00\x00\x00\x00\x00\x00\x00")},
		{name: "truncated", data: []byte("RIFF")},
		{name: "no data chunk", data: buildWAV(nil, 16000, false)[:36]},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeFeatures(bytes.NewReader(tt.data)); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestReadFeatures_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.wav")
	if err := os.WriteFile(path, silentWAV(2, 16000), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	features, err := ReadFeatures(path)
	if err != nil {
		t.Fatalf("read features: %v", err)
	}
	if math.Abs(features.DurationSeconds-2) > 1e-9 {
		t.Fatalf("expected 2s, got %f", features.DurationSeconds)
	}
}

func silentWAV(seconds, rate int) []byte {
	return buildWAV(make([]int16, seconds*rate), rate, false)
}

// buildWAV writes a mono 16-bit PCM WAV, optionally with a LIST chunk before data as ffmpeg does.
func buildWAV(samples []int16, rate int, withList bool) []byte {
	var body bytes.Buffer
	body.WriteString("WAVE")

	body.WriteString("fmt ")
	_ = binary.Write(&body, binary.LittleEndian, uint32(16))
	_ = binary.Write(&body, binary.LittleEndian, uint16(1))
	_ = binary.Write(&body, binary.LittleEndian, uint16(1))
	_ = binary.Write(&body, binary.LittleEndian, uint32(rate))
	_ = binary.Write(&body, binary.LittleEndian, uint32(rate*2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(2))
	_ = binary.Write(&body, binary.LittleEndian, uint16(16))

	if withList {
		info := []byte("INFOISFT\x06\x00\x00\x00Lavf\x00\x00")
		body.WriteString("LIST")
		_ = binary.Write(&body, binary.LittleEndian, uint32(len(info)))
		body.Write(info)
	}

	body.WriteString("data")
	_ = binary.Write(&body, binary.LittleEndian, uint32(len(samples)*2))
	for _, s := range samples {
		_ = binary.Write(&body, binary.LittleEndian, s)
	}

	var out bytes.Buffer
	out.WriteString("RIFF")
	_ = binary.Write(&out, binary.LittleEndian, uint32(body.Len()))
	out.Write(body.Bytes())
	return out.Bytes()
}
