package statuscheck

import (
    "context"
    "errors"
    "time"

    "github.com/rs/zerolog"

    "github.com/local/pdfsnip/internal/converter"
)

// Pinger models a remote dependency that can report reachability.
type Pinger interface {
    Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for the external tools and services the
// session may use.
type Checker struct {
    redis    Pinger
    s3       Pinger
    tool     string
    lookPath func(string) (string, bool)
}

// Options configures the Checker. Nil pingers report "not configured".
type Options struct {
    Redis    Pinger
    S3       Pinger
    ToolPath string
    // LookPath overrides binary discovery; nil uses converter.Available.
    LookPath func(string) (string, bool)
}

// Status represents the readiness of a subsystem.
type Status struct {
    OK      bool   `json:"ok"`
    Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
    Redis   Status `json:"redis"`
    S3      Status `json:"s3"`
    Export  Status `json:"export_tool"`
    DDjVu   Status `json:"ddjvu"`
    DjVused Status `json:"djvused"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
    lp := opts.LookPath
    if lp == nil { lp = converter.Available }
    tool := opts.ToolPath
    if tool == "" { tool = "pdftk" }
    return &Checker{redis: opts.Redis, s3: opts.S3, tool: tool, lookPath: lp}
}

// Summary returns the current status snapshot.
func (c *Checker) Summary(ctx context.Context) Summary {
    return Summary{
        Redis:   c.ping(ctx, c.redis, 2*time.Second),
        S3:      c.ping(ctx, c.s3, 5*time.Second),
        Export:  c.binary(c.tool),
        DDjVu:   c.binary("ddjvu"),
        DjVused: c.binary("djvused"),
    }
}

// Log writes one line per subsystem.
func (s Summary) Log(l zerolog.Logger) {
    for _, item := range []struct {
        name string
        st   Status
    }{{"redis", s.Redis}, {"s3", s.S3}, {"export_tool", s.Export}, {"ddjvu", s.DDjVu}, {"djvused", s.DjVused}} {
        ev := l.Info()
        if !item.st.OK { ev = l.Warn() }
        ev.Str("subsystem", item.name).Bool("ok", item.st.OK).Msg(item.st.Message)
    }
}

func (c *Checker) ping(ctx context.Context, p Pinger, timeout time.Duration) Status {
    if p == nil {
        return Status{OK: false, Message: "Not configured"}
    }
    ctx, cancel := context.WithTimeout(ctx, timeout)
    defer cancel()
    if err := p.Ping(ctx); err != nil {
        return Status{OK: false, Message: trimError(err)}
    }
    return Status{OK: true, Message: "Connected"}
}

func (c *Checker) binary(name string) Status {
    path, ok := c.lookPath(name)
    if !ok {
        return Status{OK: false, Message: "Binary not found"}
    }
    return Status{OK: true, Message: path}
}

func trimError(err error) string {
    if err == nil {
        return ""
    }
    var netErr interface{ Timeout() bool }
    if errors.As(err, &netErr) && netErr.Timeout() {
        return "timeout"
    }
    if errors.Is(err, context.DeadlineExceeded) {
        return "timeout"
    }
    msg := err.Error()
    if len(msg) > 120 {
        return msg[:120]
    }
    return msg
}
