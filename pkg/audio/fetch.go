package audio

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

var (
	apiClient = resty.New().
		SetTimeout(2*time.Minute).
		SetRetryCount(2).
		SetHeader("Accept", "audio/wav, audio/x-wav, application/octet-stream")
)

// Fetch downloads and decodes a WAV file over HTTP.
func Fetch(ctx context.Context, url string) (*Clip, error) {
	resp, err := apiClient.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to fetch %s: %s", url, resp.Status())
	}

	clip, err := ReadWAV(bytes.NewReader(resp.Body()))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", url, err)
	}
	return clip, nil
}

// Open loads a clip from a local path or an http(s) URL.
func Open(ctx context.Context, location string) (*Clip, error) {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return Fetch(ctx, location)
	}
	return LoadWAV(location)
}
