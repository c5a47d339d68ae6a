package classifier

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audio-advisor/pkg/apperr"
)

func TestClient_Classify(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		responseBody string
		wantErr      error
		wantLabels   []string
	}{
		{
			name:         "Success keeps service order",
			status:       http.StatusOK,
			responseBody: `[{"label":"lofi","score":0.3},{"label":"ambient","score":0.4}]`,
			wantLabels:   []string{"lofi", "ambient"},
		},
		{
			name:         "Model loading",
			status:       http.StatusServiceUnavailable,
			responseBody: `{"error":"Model is loading","estimated_time":20}`,
			wantErr:      apperr.ErrClassificationFailed,
		},
		{
			name:         "Garbage body",
			status:       http.StatusOK,
			responseBody: `not json`,
			wantErr:      apperr.ErrClassificationFailed,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			var (
				gotPath  string
				gotAuth  string
				gotType  string
				gotBytes []byte
			)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					w.WriteHeader(http.StatusMethodNotAllowed)
					return
				}
				gotPath = r.URL.Path
				gotAuth = r.Header.Get("Authorization")
				gotType = r.Header.Get("Content-Type")
				gotBytes, _ = io.ReadAll(r.Body)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.responseBody))
			}))
			defer srv.Close()

			path := filepath.Join(t.TempDir(), "clip.wav")
			if err := os.WriteFile(path, []byte("RIFF....WAVE"), 0o644); err != nil {
				t.Fatalf("write clip: %v", err)
			}

			client := NewClient(srv.URL+"/", "hf-key", "")
			results, err := client.Classify(context.Background(), path)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("classify: %v", err)
			}
			if gotPath != "/models/"+DefaultModel {
				t.Fatalf("unexpected path %q", gotPath)
			}
			if gotAuth != "Bearer hf-key" {
				t.Fatalf("unexpected auth header %q", gotAuth)
			}
			if gotType != "audio/wav" {
				t.Fatalf("unexpected content type %q", gotType)
			}
			if string(gotBytes) != "RIFF....WAVE" {
				t.Fatalf("audio bytes not forwarded, got %q", gotBytes)
			}
			if len(results) != len(tt.wantLabels) {
				t.Fatalf("expected %d results, got %d", len(tt.wantLabels), len(results))
			}
			for i, label := range tt.wantLabels {
				if results[i].Label != label {
					t.Fatalf("result %d: expected %q, got %q", i, label, results[i].Label)
				}
			}
		})
	}
}

func TestClient_ClassifyMissingFile(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	client := NewClient(srv.URL, "", "")
	_, err := client.Classify(context.Background(), filepath.Join(t.TempDir(), "nope.wav"))
	if !errors.Is(err, apperr.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if called {
		t.Fatalf("service must not be called for a missing file")
	}
}

func TestClient_ErrorMessageCarriesServiceText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"Malformed audio"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "", "custom/model").ClassifyBytes(context.Background(), []byte("x"))
	if err == nil || !strings.Contains(err.Error(), "Malformed audio") {
		t.Fatalf("expected service message in error, got %v", err)
	}
}
