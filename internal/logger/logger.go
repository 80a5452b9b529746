package logger

import (
    "context"
    "encoding/json"
    "fmt"
    "io"
    "os"
    "path/filepath"
    "sync/atomic"
    "time"

    "github.com/axiomhq/axiom-go/axiom"
    "github.com/axiomhq/axiom-go/axiom/ingest"
    "github.com/rs/zerolog"
    "github.com/rs/zerolog/log"
    lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Options defines logger initialization parameters.
type Options struct {
    Level        string
    Pretty       bool
    File         string
    MaxSizeMB    int
    MaxBackups   int
    MaxAgeDays   int
    Compress     bool

    // Axiom
    SendToAxiom  bool
    AxiomAPIKey  string
    AxiomOrgID   string
    AxiomDataset string
    AxiomFlush   time.Duration
}

const serviceName = "pdfsnip"

var (
    global = zerolog.Nop()
    ax     *axiomClient
)

// Init sets up the global logger: rotated log file, console output and
// optional Axiom forwarding of info+ events.
func Init(opts Options) error {
    // Ensure log directory exists
    if opts.File != "" {
        if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
            return fmt.Errorf("create logs dir: %w", err)
        }
    }

    // Build writers
    var writers []io.Writer

    if opts.File != "" {
        writers = append(writers, &lumberjack.Logger{
            Filename:   opts.File,
            MaxSize:    opts.MaxSizeMB,
            MaxBackups: opts.MaxBackups,
            MaxAge:     opts.MaxAgeDays,
            Compress:   opts.Compress,
        })
    }

    // console goes to stderr; stdout stays free for session output
    if opts.Pretty {
        writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
    } else {
        writers = append(writers, os.Stderr)
    }

    // Optional Axiom writer (info+)
    if opts.SendToAxiom && opts.AxiomAPIKey != "" {
        client, err := newAxiomClient(opts.AxiomAPIKey, opts.AxiomOrgID, opts.AxiomDataset, opts.AxiomFlush)
        if err != nil {
            // log to stderr and continue without Axiom
            fmt.Fprintf(os.Stderr, "Axiom disabled: %v\n", err)
        } else {
            ax = client
            writers = append(writers, &axiomWriter{client: client, min: zerolog.InfoLevel})
        }
    }

    out := zerolog.MultiLevelWriter(writers...)

    // Global zerolog config
    zerolog.TimeFieldFormat = time.RFC3339
    lvl, err := zerolog.ParseLevel(opts.Level)
    if err != nil {
        lvl = zerolog.InfoLevel
    }

    global = zerolog.New(out).Level(lvl).With().Timestamp().Str("service", serviceName).Logger()
    log.Logger = global
    return nil
}

// Close flushes any buffered external loggers.
func Close() {
    if ax != nil {
        _ = ax.Close()
        ax = nil
    }
}

// Doc returns a child logger tagged with a document path.
func Doc(path string) zerolog.Logger {
    return global.With().Str("doc", path).Logger()
}

// axiomWriter forwards info+ events to Axiom. It is a zerolog.LevelWriter
// so filtering happens before the JSON line is decoded.
type axiomWriter struct {
    client *axiomClient
    min    zerolog.Level
}

func (w *axiomWriter) Write(p []byte) (int, error) { return w.WriteLevel(zerolog.InfoLevel, p) }

func (w *axiomWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
    if level < w.min { return len(p), nil }
    ev := axiom.Event{}
    if err := json.Unmarshal(p, &ev); err != nil {
        ev = axiom.Event{"message": string(p), "level": level.String()}
    }
    if _, ok := ev[ingest.TimestampField]; !ok {
        ev[ingest.TimestampField] = time.Now()
    }
    w.client.Send(ev)
    return len(p), nil
}

const axiomBatchSize = 200

// axiomClient batches events and ingests them on a ticker or when a batch
// fills up. Events are dropped, and counted, when the queue is full.
type axiomClient struct {
    client  *axiom.Client
    dataset string
    queue   chan axiom.Event
    dropped atomic.Int64
    done    chan struct{}
    stop    context.CancelFunc
}

func newAxiomClient(token, orgID, dataset string, flushEvery time.Duration) (*axiomClient, error) {
    if dataset == "" { dataset = "dev_" + serviceName }
    opts := []axiom.Option{axiom.SetToken(token)}
    if orgID != "" { opts = append(opts, axiom.SetOrganizationID(orgID)) }
    c, err := axiom.NewClient(opts...)
    if err != nil { return nil, err }
    if flushEvery <= 0 { flushEvery = 10 * time.Second }

    ctx, cancel := context.WithCancel(context.Background())
    ac := &axiomClient{
        client:  c,
        dataset: dataset,
        queue:   make(chan axiom.Event, 5*axiomBatchSize),
        done:    make(chan struct{}),
        stop:    cancel,
    }
    go ac.loop(ctx, flushEvery)
    return ac, nil
}

func (a *axiomClient) Send(ev axiom.Event) {
    select {
    case a.queue <- ev:
    default:
        a.dropped.Add(1)
    }
}

func (a *axiomClient) ingest(batch []axiom.Event) {
    if len(batch) == 0 { return }
    ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
    defer cancel()
    if _, err := a.client.IngestEvents(ctx, a.dataset, batch); err != nil {
        fmt.Fprintf(os.Stderr, "axiom ingest of %d events failed: %v\n", len(batch), err)
    }
}

func (a *axiomClient) loop(ctx context.Context, flushEvery time.Duration) {
    defer close(a.done)
    ticker := time.NewTicker(flushEvery)
    defer ticker.Stop()
    batch := make([]axiom.Event, 0, axiomBatchSize)
    for {
        select {
        case <-ctx.Done():
        drain:
            for {
                select {
                case ev := <-a.queue:
                    batch = append(batch, ev)
                default:
                    break drain
                }
            }
            a.ingest(batch)
            return
        case <-ticker.C:
            a.ingest(batch)
            batch = batch[:0]
        case ev := <-a.queue:
            batch = append(batch, ev)
            if len(batch) >= axiomBatchSize {
                a.ingest(batch)
                batch = batch[:0]
            }
        }
    }
}

func (a *axiomClient) Close() error {
    a.stop()
    <-a.done
    if n := a.dropped.Load(); n > 0 {
        fmt.Fprintf(os.Stderr, "axiom: %d log events dropped\n", n)
    }
    return nil
}
