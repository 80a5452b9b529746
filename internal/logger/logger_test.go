package logger

import (
    "encoding/json"
    "os"
    "path/filepath"
    "strings"
    "testing"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/rs/zerolog"
)

func TestInitWritesJSONToFile(t *testing.T) {
    file := filepath.Join(t.TempDir(), "logs", "pdfsnip.log")
    if err := Init(Options{Level: "debug", File: file, MaxSizeMB: 1}); err != nil {
        t.Fatalf("Init: %v", err)
    }
    defer Close()

    l := Doc("/tmp/a.pdf")
    l.Info().Int("pages", 3).Msg("imported")

    data, err := os.ReadFile(file)
    if err != nil { t.Fatalf("read log: %v", err) }
    lines := strings.Split(strings.TrimSpace(string(data)), "\n")
    var ev map[string]interface{}
    if err := json.Unmarshal([]byte(lines[len(lines)-1]), &ev); err != nil {
        t.Fatalf("last line is not JSON: %v", err)
    }
    if ev["doc"] != "/tmp/a.pdf" || ev["service"] != serviceName || ev["message"] != "imported" {
        t.Fatalf("unexpected event %v", ev)
    }
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
    file := filepath.Join(t.TempDir(), "pdfsnip.log")
    if err := Init(Options{Level: "chatty", File: file}); err != nil {
        t.Fatalf("Init: %v", err)
    }
    l := Doc("x")
    l.Debug().Msg("hidden")
    l.Info().Msg("shown")

    data, _ := os.ReadFile(file)
    if strings.Contains(string(data), "hidden") || !strings.Contains(string(data), "shown") {
        t.Fatalf("log = %s", data)
    }
}

func TestAxiomWriterFiltersByLevel(t *testing.T) {
    c := &axiomClient{queue: make(chan axiom.Event, 4)}
    w := &axiomWriter{client: c, min: zerolog.InfoLevel}

    _, _ = w.WriteLevel(zerolog.DebugLevel, []byte(`{"level":"debug","message":"skip"}`))
    _, _ = w.WriteLevel(zerolog.WarnLevel, []byte(`{"level":"warn","message":"keep"}`))
    _, _ = w.WriteLevel(zerolog.ErrorLevel, []byte("not json"))

    if len(c.queue) != 2 { t.Fatalf("queued %d events, want 2", len(c.queue)) }
    first := <-c.queue
    if first["message"] != "keep" { t.Fatalf("first event = %v", first) }
    second := <-c.queue
    if second["message"] != "not json" || second["level"] != "error" { t.Fatalf("second event = %v", second) }
}

func TestAxiomSendDropsWhenFull(t *testing.T) {
    c := &axiomClient{queue: make(chan axiom.Event, 1)}
    c.Send(axiom.Event{"n": 1})
    c.Send(axiom.Event{"n": 2})
    if c.dropped.Load() != 1 { t.Fatalf("dropped = %d, want 1", c.dropped.Load()) }
}
