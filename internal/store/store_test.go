package store

import (
    "context"
    "image"
    "image/color"
    "path/filepath"
    "testing"
    "time"

    redis "github.com/redis/go-redis/v9"

    "github.com/local/pdfsnip/internal/config"
)

func TestPrefsLoadDefaults(t *testing.T) {
    p, err := OpenPrefs(filepath.Join(t.TempDir(), "nested", "prefs.db"))
    if err != nil { t.Fatalf("OpenPrefs: %v", err) }
    defer p.Close()

    got, err := p.Load(context.Background())
    if err != nil { t.Fatalf("Load: %v", err) }
    if got != config.DefaultPreferences() { t.Fatalf("got %+v, want defaults", got) }
}

func TestPrefsSaveLoad(t *testing.T) {
    path := filepath.Join(t.TempDir(), "prefs.db")
    ctx := context.Background()
    want := config.Preferences{WindowX: 5, WindowY: 6, WindowWidth: 900, WindowHeight: 700, ThumbSize: 320, LazyRender: true, UseExternalTool: true}

    p, err := OpenPrefs(path)
    if err != nil { t.Fatalf("OpenPrefs: %v", err) }
    if err := p.Save(ctx, want); err != nil { t.Fatalf("Save: %v", err) }
    want.ThumbSize = 640
    if err := p.Save(ctx, want); err != nil { t.Fatalf("second Save: %v", err) }
    p.Close()

    p, err = OpenPrefs(path)
    if err != nil { t.Fatalf("reopen: %v", err) }
    defer p.Close()
    got, err := p.Load(ctx)
    if err != nil { t.Fatalf("Load: %v", err) }
    if got != want { t.Fatalf("got %+v, want %+v", got, want) }
}

func TestNilThumbCache(t *testing.T) {
    var c *ThumbCache
    ctx := context.Background()
    if _, ok := c.Get(ctx, "k"); ok { t.Fatal("nil cache must miss") }
    c.Put(ctx, "k", image.NewNRGBA(image.Rect(0, 0, 1, 1)))
    if err := c.Close(); err != nil { t.Fatal(err) }
    if err := c.Ping(ctx); err == nil { t.Fatal("nil cache ping should fail") }
}

func TestThumbCacheUnreachable(t *testing.T) {
    client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
    c := NewThumbCacheFromClient(client, time.Minute)
    defer c.Close()

    ctx := context.Background()
    img := image.NewNRGBA(image.Rect(0, 0, 2, 2))
    img.Set(0, 0, color.Black)
    c.Put(ctx, "k", img)
    if _, ok := c.Get(ctx, "k"); ok { t.Fatal("unreachable cache must miss") }
}

func TestNewThumbCacheBadURL(t *testing.T) {
    if _, err := NewThumbCache("not a url", time.Minute); err == nil { t.Fatal("expected error") }
}
