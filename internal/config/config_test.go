package config

import (
    "testing"
    "time"
)

func TestFromEnvDefaults(t *testing.T) {
    for _, k := range []string{"RENDER_TIMEOUT", "ANTIALIAS_FACTOR", "MIN_THUMB_SIZE", "MAX_THUMB_SIZE", "EXPORT_TOOL", "AXIOM_DATASET"} {
        t.Setenv(k, "")
    }
    cfg := FromEnv()
    if cfg.Render.Timeout != 30*time.Second { t.Errorf("Render.Timeout = %v", cfg.Render.Timeout) }
    if cfg.Render.AntialiasFactor != 4 { t.Errorf("AntialiasFactor = %d", cfg.Render.AntialiasFactor) }
    if cfg.Export.ToolPath != "pdftk" { t.Errorf("ToolPath = %q", cfg.Export.ToolPath) }
    if cfg.Axiom.Dataset != "dev_pdfsnip" { t.Errorf("Dataset = %q", cfg.Axiom.Dataset) }
}

func TestFromEnvOverrides(t *testing.T) {
    t.Setenv("RENDER_TIMEOUT", "5s")
    t.Setenv("ANTIALIAS_FACTOR", "0")
    t.Setenv("MIN_THUMB_SIZE", "100")
    t.Setenv("MAX_THUMB_SIZE", "20")
    t.Setenv("EXPORT_DJVU_SCALE", "0.5")
    cfg := FromEnv()
    if cfg.Render.Timeout != 5*time.Second { t.Errorf("Render.Timeout = %v", cfg.Render.Timeout) }
    if cfg.Render.AntialiasFactor != 1 { t.Errorf("AntialiasFactor = %d, want clamp to 1", cfg.Render.AntialiasFactor) }
    if cfg.Render.MaxThumbSize != 100 { t.Errorf("MaxThumbSize = %d, want raised to min", cfg.Render.MaxThumbSize) }
    if cfg.Export.DjVuScale != 0.5 { t.Errorf("DjVuScale = %v", cfg.Export.DjVuScale) }
}

func TestParseHelpers(t *testing.T) {
    boolCases := map[string]bool{"1": true, "true": true, " YES ": true, "on": true, "0": false, "": false, "nope": false}
    for in, want := range boolCases {
        if got := parseBool(in); got != want { t.Errorf("parseBool(%q) = %v", in, got) }
    }
    if parseInt("x", 7) != 7 || parseInt("12", 7) != 12 { t.Error("parseInt") }
    if parseDuration("bad", time.Second) != time.Second { t.Error("parseDuration") }
}

func TestPreferencesRoundTrip(t *testing.T) {
    p := Preferences{WindowX: 10, WindowY: 20, WindowWidth: 1024, WindowHeight: 768, ThumbSize: 400, UseExternalTool: true}
    got := PreferencesFromMap(p.Map())
    if got != p { t.Fatalf("got %+v, want %+v", got, p) }
}

func TestPreferencesFromMapDefaults(t *testing.T) {
    got := PreferencesFromMap(map[string]string{
        PrefThumbSize:      "-3",
        PrefPreferEmbedded: "garbage",
        PrefWindowWidth:    "1200",
    })
    want := DefaultPreferences()
    want.WindowWidth = 1200
    if got != want { t.Fatalf("got %+v, want %+v", got, want) }
}
