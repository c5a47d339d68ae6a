package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Classification is one label/confidence pair returned by the genre classifier.
// Results are not guaranteed to be sorted by score.
type Classification struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// AudioFeatures are simple signal statistics computed from the normalized waveform.
type AudioFeatures struct {
	DurationSeconds  float64 `json:"durationSeconds"`
	SampleRate       int     `json:"sampleRate"`
	Channels         int     `json:"channels"`
	RMS              float64 `json:"rms"`
	ZeroCrossingRate float64 `json:"zeroCrossingRate"`
}

// AnalysisResponse is the payload returned by POST /analyze.
type AnalysisResponse struct {
	Genre       []Classification `json:"genre"`
	Suggestions string           `json:"suggestions"`
	Features    *AudioFeatures   `json:"features,omitempty"`
}

// UploadedAudio is a request-scoped file written to scratch storage.
type UploadedAudio struct {
	ID          string    `json:"id"`
	Path        string    `json:"path"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	ReceivedAt  time.Time `json:"received_at"`
}

func NewUploadedAudio(path, filename, contentType string, size int64) *UploadedAudio {
	return &UploadedAudio{
		ID:          uuid.New().String(),
		Path:        path,
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		ReceivedAt:  time.Now(),
	}
}

type Chat struct {
	ID        string    `json:"_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Message struct {
	ID        string    `json:"_id"`
	ChatID    string    `json:"chatId"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Audio     string    `json:"audio,omitempty"`
	AudioID   string    `json:"audioId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// DefaultChatName mirrors the mobile client's naming: "Chat M/D/YYYY".
func DefaultChatName(at time.Time) string {
	return fmt.Sprintf("Chat %d/%d/%d", int(at.Month()), at.Day(), at.Year())
}

func NewChat(name string, now time.Time) Chat {
	if name == "" {
		name = DefaultChatName(now)
	}
	return Chat{
		ID:        uuid.New().String(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
