package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/jaehoon-kim/lectern/internal/media"
	"github.com/jaehoon-kim/lectern/internal/session"
)

type fakeResolver struct {
	info media.VideoInfo
	err  error
}

func (r *fakeResolver) Info(ctx context.Context, videoURL string) (media.VideoInfo, error) {
	return r.info, r.err
}

func apiHandler(resolver VideoResolver) http.Handler {
	return Handler(Deps{
		Sessions: func(sink session.Sink) Session { return nil },
		Resolver: resolver,
		Logger:   log.New(io.Discard),
	})
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return payload
}

func TestValidateRecognizedURL(t *testing.T) {
	h := apiHandler(&fakeResolver{})

	rec := postJSON(t, h, "/api/validate", `{"url":"https://www.youtube.com/watch?v=dQw4w9WgXcQ"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	payload := decodeBody(t, rec)
	if payload["valid"] != true {
		t.Fatalf("expected valid=true, got %#v", payload)
	}
	if payload["video_id"] != "dQw4w9WgXcQ" {
		t.Fatalf("unexpected video_id: %#v", payload["video_id"])
	}
	if payload["embed_url"] != "https://www.youtube.com/embed/dQw4w9WgXcQ" {
		t.Fatalf("unexpected embed_url: %#v", payload["embed_url"])
	}
}

func TestValidateUnrecognizedURL(t *testing.T) {
	h := apiHandler(&fakeResolver{})

	rec := postJSON(t, h, "/api/validate", `{"url":"https://example.com/video"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	payload := decodeBody(t, rec)
	if payload["valid"] != false {
		t.Fatalf("expected valid=false, got %#v", payload)
	}
}

func TestValidateBadBody(t *testing.T) {
	h := apiHandler(&fakeResolver{})

	rec := postJSON(t, h, "/api/validate", "not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestVideoInfoSuccess(t *testing.T) {
	h := apiHandler(&fakeResolver{info: media.VideoInfo{
		Title:   "Lecture 1",
		IsLive:  true,
		Channel: "Uni",
	}})

	rec := postJSON(t, h, "/api/video-info", `{"url":"https://www.youtube.com/watch?v=abc"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	payload := decodeBody(t, rec)
	if payload["success"] != true {
		t.Fatalf("expected success=true, got %#v", payload)
	}
	info, ok := payload["info"].(map[string]any)
	if !ok {
		t.Fatalf("expected info object, got %#v", payload["info"])
	}
	if info["title"] != "Lecture 1" || info["is_live"] != true {
		t.Fatalf("unexpected info: %#v", info)
	}
}

func TestVideoInfoFailure(t *testing.T) {
	h := apiHandler(&fakeResolver{err: errors.New("yt-dlp: Video unavailable")})

	rec := postJSON(t, h, "/api/video-info", `{"url":"https://www.youtube.com/watch?v=gone"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	payload := decodeBody(t, rec)
	if payload["success"] != false {
		t.Fatalf("expected success=false, got %#v", payload)
	}
	if msg, _ := payload["error"].(string); !strings.Contains(msg, "Video unavailable") {
		t.Fatalf("unexpected error: %#v", payload["error"])
	}
}

func TestVideoInfoMissingURL(t *testing.T) {
	h := apiHandler(&fakeResolver{})

	rec := postJSON(t, h, "/api/video-info", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
