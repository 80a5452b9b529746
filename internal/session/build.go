package session

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"

	"github.com/local/pdfsnip/internal/config"
	"github.com/local/pdfsnip/internal/converter"
	"github.com/local/pdfsnip/internal/djvu"
	"github.com/local/pdfsnip/internal/document"
	"github.com/local/pdfsnip/internal/export"
	"github.com/local/pdfsnip/internal/filetype"
	"github.com/local/pdfsnip/internal/mupdf"
	"github.com/local/pdfsnip/internal/renderer"
	"github.com/local/pdfsnip/internal/statuscheck"
	"github.com/local/pdfsnip/internal/storage"
	"github.com/local/pdfsnip/internal/store"
)

// Build wires a session from configuration: format detection, the PDF and
// DjVu openers, remote fetchers, the optional Redis thumbnail cache and both
// export engines. The returned checker probes the same dependencies.
func Build(ctx context.Context, cfg config.Config, prefs config.Preferences) (*Session, *statuscheck.Checker, error) {
	runner := converter.NewExec(cfg.Export.ToolTimeout, 2)

	fetchers := []document.Fetcher{storage.NewHTTPFetcher(cfg.Storage.HTTPTimeout)}
	uploaders := []export.Uploader{}
	var s3Pinger statuscheck.Pinger
	if cfg.Storage.S3Bucket != "" || cfg.Storage.S3Endpoint != "" {
		s3c, err := storage.NewS3Client(ctx, cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("S3 unavailable, s3:// references disabled")
		} else {
			fetchers = append(fetchers, s3c)
			uploaders = append(uploaders, s3c)
			s3Pinger = s3c
		}
	}

	reg, err := document.NewRegistry(document.RegistryOptions{
		WorkDir:  cfg.Storage.WorkDir,
		Detector: filetype.New(),
		Openers: map[document.Kind]document.Opener{
			document.KindPDF:  mupdf.Opener{},
			document.KindDjVu: djvu.Opener{Runner: runner, Timeout: cfg.Render.Timeout},
		},
		Fetchers: fetchers,
	})
	if err != nil {
		return nil, nil, err
	}

	var (
		cache       renderer.Cache
		closers     []io.Closer
		redisPinger statuscheck.Pinger
	)
	if cfg.Cache.RedisURL != "" {
		tc, err := store.NewThumbCache(cfg.Cache.RedisURL, cfg.Cache.TTL)
		if err != nil {
			log.Warn().Err(err).Msg("thumbnail cache unavailable, rendering without it")
		} else {
			cache, redisPinger = tc, tc
			closers = append(closers, tc)
		}
	}

	s, err := New(Options{
		Registry:    reg,
		Native:      &export.Native{TempDir: reg.WorkDir(), DjVuScale: cfg.Export.DjVuScale},
		External:    &export.ExternalTool{Runner: runner, Tool: cfg.Export.ToolPath},
		Uploaders:   uploaders,
		Cache:       cache,
		Render:      cfg.Render,
		Preferences: prefs,
		Closers:     closers,
	})
	if err != nil {
		_ = reg.Close()
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, nil, err
	}

	checker := statuscheck.New(statuscheck.Options{Redis: redisPinger, S3: s3Pinger, ToolPath: cfg.Export.ToolPath})
	return s, checker, nil
}
