package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/HienH/sale-smell/internal/service/provider"
	"github.com/HienH/sale-smell/internal/validation"
)

const testKey = "test-key"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/", APIKey: testKey})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"missing key", Config{}, true},
		{"blank key", Config{APIKey: "  "}, true},
		{"bad url", Config{APIKey: "k", BaseURL: "not a url"}, true},
		{"defaults", Config{APIKey: "k"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && c.config.BaseURL != DefaultBaseURL {
				t.Errorf("expected default base URL, got %s", c.config.BaseURL)
			}
		})
	}
}

func TestUpload(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/upload" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != testKey {
			t.Errorf("expected raw API key in Authorization, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("Content-Type") != "application/octet-stream" {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFdata" {
			t.Errorf("unexpected body %q", body)
		}
		_, _ = w.Write([]byte(`{"upload_url":"https://cdn.example/abc"}`))
	})

	ref, err := c.Upload(context.Background(), &validation.Audio{Name: "a.wav", Data: []byte("RIFFdata")})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if ref != "https://cdn.example/abc" {
		t.Errorf("unexpected upload url %s", ref)
	}
}

func TestUpload_MissingURL(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	})

	if _, err := c.Upload(context.Background(), &validation.Audio{Data: []byte("x")}); err == nil {
		t.Error("expected an error for a missing upload_url")
	}
}

func TestCreateJob(t *testing.T) {
	var got provider.JobRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v2/transcript" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"id":"tx-1","status":"queued"}`))
	})

	req := provider.NewJobRequest("https://cdn.example/abc", provider.DefaultFeatures())
	id, err := c.CreateJob(context.Background(), req)
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if id != "tx-1" {
		t.Errorf("expected tx-1, got %s", id)
	}
	if got.AudioURL != "https://cdn.example/abc" || !got.SpeakerLabels || !got.RedactPII {
		t.Errorf("unexpected request body %+v", got)
	}
}

func TestGetJob(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v2/transcript/tx-1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{
			"id": "tx-1",
			"status": "completed",
			"text": "hello there",
			"speaker_labels": true,
			"utterances": [{"speaker": "A", "text": "hello there", "start": 0, "end": 900, "confidence": 0.9}]
		}`))
	})

	rec, err := c.GetJob(context.Background(), "tx-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if rec.Status != "completed" || len(rec.Utterances) != 1 {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.SpeakerLabels == nil || !rec.SpeakerLabels.Enabled {
		t.Error("expected speaker_labels flag to decode")
	}
}

func TestStatusErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantBody string
	}{
		{"api error field", http.StatusUnauthorized, `{"error":"Authentication error, API token missing/invalid"}`, "Authentication error, API token missing/invalid"},
		{"raw body", http.StatusBadGateway, "bad gateway", "bad gateway"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.GetJob(context.Background(), "tx-1")
			var se *provider.StatusError
			if !errors.As(err, &se) {
				t.Fatalf("expected *provider.StatusError, got %v", err)
			}
			if se.Code != tt.status || se.Body != tt.wantBody {
				t.Errorf("got %d %q", se.Code, se.Body)
			}
		})
	}
}

func TestGetJob_BadJSON(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{not json`))
	})

	if _, err := c.GetJob(context.Background(), "tx-1"); err == nil {
		t.Error("expected a parse error")
	}
}
