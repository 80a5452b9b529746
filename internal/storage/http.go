package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// HTTPFetcher downloads documents referenced by http:// or https:// URLs.
type HTTPFetcher struct {
	Client *http.Client
}

// NewHTTPFetcher returns a fetcher whose requests time out after timeout.
func NewHTTPFetcher(timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{Client: &http.Client{Timeout: timeout}}
}

func (h *HTTPFetcher) client() *http.Client {
	if h.Client != nil {
		return h.Client
	}
	return http.DefaultClient
}

func (h *HTTPFetcher) Handles(ref string) bool {
	return strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://")
}

// ModTime uses the Last-Modified header. Servers that omit it yield the zero
// time, so every import of such a URL is treated as the same revision.
func (h *HTTPFetcher) ModTime(ctx context.Context, ref string) (time.Time, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, ref, nil)
	if err != nil {
		return time.Time{}, err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("head %s: %w", ref, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 400 {
		return time.Time{}, fmt.Errorf("head %s: status %d", ref, resp.StatusCode)
	}
	lm := resp.Header.Get("Last-Modified")
	if lm == "" {
		return time.Time{}, nil
	}
	t, err := http.ParseTime(lm)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

func (h *HTTPFetcher) Fetch(ctx context.Context, ref, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return err
	}
	resp, err := h.client().Do(req)
	if err != nil {
		return fmt.Errorf("get %s: %w", ref, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("get %s: status %d", ref, resp.StatusCode)
	}

	f, err := os.Create(dst)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(dst)
		return fmt.Errorf("download %s: %w", ref, err)
	}
	log.Debug().Str("url", ref).Int64("bytes", n).Msg("Fetch: downloaded")
	return nil
}
