package main

import (
    "context"
    "fmt"
    "net/http"
    "os"
    "os/signal"
    "path/filepath"
    "syscall"
    "time"

    "github.com/rs/zerolog/log"

    cfgpkg "github.com/local/pdfsnip/internal/config"
    "github.com/local/pdfsnip/internal/imagerender"
    logpkg "github.com/local/pdfsnip/internal/logger"
    "github.com/local/pdfsnip/internal/metrics"
    "github.com/local/pdfsnip/internal/session"
    "github.com/local/pdfsnip/internal/store"
)

func main() {
    cfg := cfgpkg.Load()

    // Init logging
    _ = logpkg.Init(logpkg.Options{
        Level: cfg.Logging.Level,
        Pretty: cfg.Logging.Pretty,
        File: cfg.Logging.File,
        MaxSizeMB: cfg.Logging.MaxSizeMB,
        MaxBackups: cfg.Logging.MaxBackups,
        MaxAgeDays: cfg.Logging.MaxAgeDays,
        Compress: cfg.Logging.Compress,
        SendToAxiom: cfg.Axiom.Send && cfg.Axiom.APIKey != "",
        AxiomAPIKey: cfg.Axiom.APIKey,
        AxiomOrgID: cfg.Axiom.OrgID,
        AxiomDataset: cfg.Axiom.Dataset,
        AxiomFlush: cfg.Axiom.FlushInterval,
    })
    defer logpkg.Close()

    metrics.Init()
    var srv *http.Server
    if cfg.Metrics.Addr != "" {
        mux := http.NewServeMux()
        mux.Handle("/metrics", metrics.Handler())
        mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
            w.WriteHeader(http.StatusOK)
            _, _ = w.Write([]byte("ok"))
        })
        srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
        go func(){
            log.Info().Msgf("metrics listening on %s", cfg.Metrics.Addr)
            if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
                log.Error().Err(err).Msg("metrics server error")
            }
        }()
    }

    ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
    defer stop()

    // Preferences
    prefs := cfgpkg.DefaultPreferences()
    ps, err := store.OpenPrefs(cfg.PrefsPath)
    if err != nil {
        log.Warn().Err(err).Str("path", cfg.PrefsPath).Msg("preferences unavailable, using defaults")
    } else {
        defer ps.Close()
        if p, err := ps.Load(ctx); err != nil {
            log.Warn().Err(err).Msg("failed to load preferences")
        } else {
            prefs = p
        }
    }

    sess, checker, err := session.Build(ctx, cfg, prefs)
    if err != nil {
        log.Fatal().Err(err).Msg("failed to start session")
    }
    checker.Summary(ctx).Log(log.Logger)

    code := run(ctx, cfg, sess)

    if ps != nil {
        if err := ps.Save(context.Background(), sess.Preferences()); err != nil {
            log.Error().Err(err).Msg("failed to save preferences")
        }
    }
    shutdown, cancel := context.WithTimeout(context.Background(), 10*time.Second)
    defer cancel()
    if err := sess.Close(shutdown); err != nil {
        log.Error().Err(err).Msg("session close")
    }
    if srv != nil { _ = srv.Shutdown(shutdown) }
    fmt.Fprintln(os.Stderr, "shutdown complete")
    if code != 0 {
        logpkg.Close()
        os.Exit(code)
    }
}

func run(ctx context.Context, cfg cfgpkg.Config, sess *session.Session) int {
    go drain(sess)

    handles, err := sess.Import(ctx, os.Args[1:]...)
    if err != nil {
        log.Error().Err(err).Msg("some documents were not imported")
    }
    for _, h := range handles {
        l := logpkg.Doc(h.Path)
        l.Info().Str("kind", h.Kind.String()).Int("pages", h.Pages).Msg("imported")
    }

    if cfg.ThumbDir != "" {
        sess.SetVisible(0, sess.List().Len()-1)
    }
    if err := sess.WaitIdle(ctx); err != nil {
        log.Warn().Err(err).Msg("interrupted before thumbnails finished")
        return 1
    }
    info := sess.Info()
    log.Info().Int("documents", info.Documents).Int("pages", info.Pages).Str("engine", info.Engine).Msg("session ready")

    if cfg.ThumbDir != "" {
        if err := writeThumbnails(sess, cfg.ThumbDir); err != nil {
            log.Error().Err(err).Str("dir", cfg.ThumbDir).Msg("failed to write thumbnails")
            return 1
        }
    }
    if cfg.Output != "" {
        rep, err := sess.Export(ctx, cfg.Output)
        if err != nil {
            log.Error().Err(err).Str("dest", cfg.Output).Msg("export failed")
            return 1
        }
        log.Info().Str("dest", rep.Dest).Int("pages", rep.Pages).Int("dropped_transforms", rep.DroppedTransforms).Msg("exported")
    }
    return 0
}

// drain consumes renderer events until the session closes.
func drain(sess *session.Session) {
    for ev := range sess.Events() {
        if ev.Kind == session.ThumbnailReady {
            log.Debug().Int("index", ev.Index).Str("page", ev.Entry.Label).Msg("thumbnail ready")
        }
    }
}

func writeThumbnails(sess *session.Session, dir string) error {
    if err := os.MkdirAll(dir, 0o755); err != nil { return err }
    for i, e := range sess.List().Snapshot() {
        img := e.Thumbnail()
        if img == nil { continue }
        data, err := imagerender.EncodePNG(img)
        if err != nil { return err }
        if err := os.WriteFile(filepath.Join(dir, fmt.Sprintf("%04d.png", i+1)), data, 0o644); err != nil { return err }
    }
    return nil
}
