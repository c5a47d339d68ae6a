package pipeline

import (
	"errors"
	"log/slog"
	"os"
)

// scratch owns the temporary files of one analysis request. Files are
// tracked as soon as they exist and removed together by a single release.
type scratch struct {
	logger    *slog.Logger
	paths     []string
	released  bool
	onRelease func(paths []string)
}

func newScratch(logger *slog.Logger, onRelease func(paths []string)) *scratch {
	return &scratch{logger: logger, onRelease: onRelease}
}

func (s *scratch) track(path string) {
	if path == "" {
		return
	}
	s.paths = append(s.paths, path)
}

// release removes every tracked file. Removal errors are logged and dropped.
func (s *scratch) release() {
	if s.released {
		return
	}
	s.released = true

	for _, path := range s.paths {
		err := os.Remove(path)
		switch {
		case err == nil:
			s.logger.Debug("removed temporary file", "path", path)
		case errors.Is(err, os.ErrNotExist):
		default:
			s.logger.Warn("failed to remove temporary file", "path", path, "err", err)
		}
	}

	if s.onRelease != nil {
		s.onRelease(append([]string(nil), s.paths...))
	}
}
