package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// formatSelectors is the ladder of yt-dlp format selectors tried in order.
// 91-95 are common live audio formats; "worst" is the compatibility fallback.
var formatSelectors = []string{
	"bestaudio/best",
	"bestaudio*",
	"91/92/93/94/95",
	"worst",
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?:youtube\.com/watch\?v=|youtu\.be/|youtube\.com/embed/)([^&\n?#]+)`),
	regexp.MustCompile(`youtube\.com/live/([^&\n?#]+)`),
}

// VideoInfo is the subset of yt-dlp metadata surfaced to clients.
type VideoInfo struct {
	Title     string  `json:"title"`
	Duration  float64 `json:"duration"`
	IsLive    bool    `json:"is_live"`
	Thumbnail string  `json:"thumbnail"`
	Channel   string  `json:"channel"`
}

type runFunc func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// Resolver turns a video page URL into a directly fetchable audio stream URL
// by shelling out to yt-dlp.
type Resolver struct {
	ytdlpPath string
	run       runFunc
}

func NewResolver(ytdlpPath string) *Resolver {
	if ytdlpPath == "" {
		ytdlpPath = "yt-dlp"
	}
	return &Resolver{ytdlpPath: ytdlpPath, run: runCommand}
}

// ResolveStreamURL extracts a playable audio stream URL, trying each format
// selector until one succeeds. Failure of the whole ladder is fatal.
func (r *Resolver) ResolveStreamURL(ctx context.Context, videoURL string) (string, error) {
	var lastErr error
	for _, selector := range formatSelectors {
		stdout, stderr, err := r.run(ctx, r.ytdlpPath, "-f", selector, "-g", "--no-playlist", videoURL)
		if err == nil && len(bytes.TrimSpace(stdout)) > 0 {
			return strings.TrimSpace(string(stdout)), nil
		}
		if ctx.Err() != nil {
			return "", &AcquisitionError{Reason: "stream url resolution timed out", Err: ctx.Err()}
		}
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			lastErr = fmt.Errorf("yt-dlp: %s", msg)
		} else if err != nil {
			lastErr = err
		}
	}
	return "", &AcquisitionError{Reason: "stream url resolution failed", Err: lastErr}
}

// Info fetches video metadata as JSON.
func (r *Resolver) Info(ctx context.Context, videoURL string) (VideoInfo, error) {
	stdout, stderr, err := r.run(ctx, r.ytdlpPath, "-j", "--no-playlist", videoURL)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return VideoInfo{}, fmt.Errorf("yt-dlp: %s", msg)
		}
		return VideoInfo{}, fmt.Errorf("video info: %w", err)
	}

	var raw struct {
		Title      string  `json:"title"`
		Duration   float64 `json:"duration"`
		IsLive     bool    `json:"is_live"`
		LiveStatus string  `json:"live_status"`
		Thumbnail  string  `json:"thumbnail"`
		Channel    string  `json:"channel"`
	}
	if err := json.Unmarshal(stdout, &raw); err != nil {
		return VideoInfo{}, fmt.Errorf("parse video info: %w", err)
	}

	return VideoInfo{
		Title:     raw.Title,
		Duration:  raw.Duration,
		IsLive:    raw.IsLive || raw.LiveStatus == "is_live",
		Thumbnail: raw.Thumbnail,
		Channel:   raw.Channel,
	}, nil
}

// ExtractVideoID pulls the video ID out of watch, short, embed, and live
// YouTube URL forms. Returns "" when the URL matches none of them.
func ExtractVideoID(url string) string {
	for _, pattern := range videoIDPatterns {
		if m := pattern.FindStringSubmatch(url); m != nil {
			return m[1]
		}
	}
	return ""
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}
