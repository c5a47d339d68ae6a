package pipeline

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"audio-advisor/pkg/apperr"
	"audio-advisor/pkg/models"

	"github.com/google/uuid"
)

var extensionFallback = map[string]string{
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/mp4":       ".m4a",
	"audio/x-m4a":     ".m4a",
	"audio/wav":       ".wav",
	"audio/x-wav":     ".wav",
	"audio/wave":      ".wav",
	"audio/webm":      ".webm",
	"audio/ogg":       ".ogg",
	"audio/aiff":      ".aiff",
	"audio/flac":      ".flac",
	"video/mp4":       ".m4a",
	"video/quicktime": ".m4a",
}

// store writes the upload under a unique name in the upload directory. The
// file is tracked before the first byte is written.
func (a *Analyzer) store(in *Upload, files *scratch) (*models.UploadedAudio, error) {
	if a.cfg.MaxUploadBytes > 0 && in.Size > a.cfg.MaxUploadBytes {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "store", "audio file exceeds maximum size of %d bytes", a.cfg.MaxUploadBytes)
	}
	if err := os.MkdirAll(a.cfg.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("store: create upload dir: %w", err)
	}

	body := bufio.NewReaderSize(in.Body, 512)
	sample, err := body.Peek(512)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, apperr.New(apperr.ErrInvalidInput, "store", fmt.Errorf("read audio sample: %w", err))
	}

	contentType := strings.ToLower(strings.TrimSpace(in.ContentType))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(sample)
	}

	path := filepath.Join(a.cfg.UploadDir, uuid.NewString()+extensionFor(in.Filename, contentType))
	out, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("store: create upload file: %w", err)
	}
	files.track(path)

	var src io.Reader = body
	if a.cfg.MaxUploadBytes > 0 {
		src = io.LimitReader(body, a.cfg.MaxUploadBytes+1)
	}
	written, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("store: write upload: %w", err)
	}
	if a.cfg.MaxUploadBytes > 0 && written > a.cfg.MaxUploadBytes {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "store", "audio file exceeds maximum size of %d bytes", a.cfg.MaxUploadBytes)
	}
	if written == 0 {
		return nil, apperr.Newf(apperr.ErrInvalidInput, "store", "uploaded file is empty")
	}

	return models.NewUploadedAudio(path, in.Filename, contentType, written), nil
}

func extensionFor(filename, contentType string) string {
	ext := strings.ToLower(strings.TrimSpace(filepath.Ext(filepath.Base(filename))))
	if ext != "" && ext != "." {
		return ext
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}
	if ext, ok := extensionFallback[mediaType]; ok {
		return ext
	}
	if exts, err := mime.ExtensionsByType(mediaType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
