package pipeline

import (
	"context"
	"io"
	"log/slog"
	"time"

	"audio-advisor/pkg/apperr"
	"audio-advisor/pkg/logging"
	"audio-advisor/pkg/models"
)

type Normalizer interface {
	Normalize(ctx context.Context, inputPath string) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, path string) ([]models.Classification, error)
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// State names the step an analysis request has reached.
type State string

const (
	StateReceived   State = "received"
	StateStored     State = "stored"
	StateNormalized State = "normalized"
	StateClassified State = "classified"
	StatePrompted   State = "prompted"
	StateSuggested  State = "suggested"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Upload is the audio attached to an analysis request. Size is the declared
// size, or -1 when unknown.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Request struct {
	Audio  *Upload
	Prompt string
}

type Config struct {
	UploadDir      string
	MaxUploadBytes int64
}

// Analyzer runs the analysis pipeline for one request at a time per call;
// concurrent calls share nothing but the scratch directories.
type Analyzer struct {
	cfg        Config
	normalizer Normalizer
	classifier Classifier
	generator  Generator

	features  func(path string) (models.AudioFeatures, error)
	onCleanup func(paths []string)
}

func NewAnalyzer(cfg Config, normalizer Normalizer, classifier Classifier, generator Generator) *Analyzer {
	return &Analyzer{
		cfg:        cfg,
		normalizer: normalizer,
		classifier: classifier,
		generator:  generator,
	}
}

// WithFeatures enables signal feature extraction on the normalized file.
func (a *Analyzer) WithFeatures(fn func(path string) (models.AudioFeatures, error)) *Analyzer {
	a.features = fn
	return a
}

// Analyze stores the upload, normalizes, classifies and asks for suggestions.
// Every temporary file created along the way is removed before it returns,
// whatever the outcome.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (models.AnalysisResponse, error) {
	logger := logging.FromContext(ctx)
	started := time.Now()

	if req.Audio == nil || req.Audio.Body == nil {
		logger.Info("analysis rejected", "state", StateReceived, "err", apperr.ErrMissingAudio)
		return models.AnalysisResponse{}, apperr.ErrMissingAudio
	}
	if req.Audio.Size == 0 {
		return models.AnalysisResponse{}, apperr.Newf(apperr.ErrInvalidInput, "receive", "uploaded file is empty")
	}

	files := newScratch(logger, a.onCleanup)
	defer files.release()

	resp, state, err := a.run(ctx, logger, files, req)
	if err != nil {
		logger.Error("analysis failed",
			"state", StateFailed,
			"failed_after", state,
			"duration_ms", time.Since(started).Milliseconds(),
			"err", err,
		)
		return models.AnalysisResponse{}, err
	}

	logger.Info("analysis completed",
		"state", StateCompleted,
		"genres", len(resp.Genre),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return resp, nil
}

// run executes the stages in order and reports the last state reached.
func (a *Analyzer) run(ctx context.Context, logger *slog.Logger, files *scratch, req Request) (models.AnalysisResponse, State, error) {
	upload, err := a.store(req.Audio, files)
	if err != nil {
		return models.AnalysisResponse{}, StateReceived, err
	}
	logger.Debug("analysis stage", "state", StateStored, "upload_id", upload.ID, "size", upload.Size, "content_type", upload.ContentType)

	normalized, err := a.normalizer.Normalize(ctx, upload.Path)
	if err != nil {
		return models.AnalysisResponse{}, StateStored, err
	}
	files.track(normalized)
	logger.Debug("analysis stage", "state", StateNormalized, "path", normalized)

	features := a.extractFeatures(logger, normalized)

	genre, err := a.classifier.Classify(ctx, normalized)
	if err != nil {
		return models.AnalysisResponse{}, StateNormalized, err
	}
	logger.Debug("analysis stage", "state", StateClassified, "labels", len(genre))

	prompt := BuildPrompt(genre, req.Prompt)
	logger.Debug("analysis stage", "state", StatePrompted, "genres", GenreSummary(genre))

	suggestions, err := a.generator.Generate(ctx, prompt)
	if err != nil {
		return models.AnalysisResponse{}, StatePrompted, err
	}
	logger.Debug("analysis stage", "state", StateSuggested, "chars", len(suggestions))

	if genre == nil {
		genre = []models.Classification{}
	}
	return models.AnalysisResponse{
		Genre:       genre,
		Suggestions: suggestions,
		Features:    features,
	}, StateSuggested, nil
}

func (a *Analyzer) extractFeatures(logger *slog.Logger, path string) *models.AudioFeatures {
	if a.features == nil {
		return nil
	}
	features, err := a.features(path)
	if err != nil {
		logger.Warn("signal features unavailable", "path", path, "err", err)
		return nil
	}
	return &features
}
