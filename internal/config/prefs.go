package config

import "strconv"

// Preferences is the user's persisted UI state. Values are copied, never shared.
type Preferences struct {
    WindowX         int
    WindowY         int
    WindowWidth     int
    WindowHeight    int
    ThumbSize       int
    PreferEmbedded  bool
    LazyRender      bool
    UseExternalTool bool
    Antialias       bool
}

// Preference keys as stored in the settings table.
const (
    PrefWindowX         = "window_x"
    PrefWindowY         = "window_y"
    PrefWindowWidth     = "window_width"
    PrefWindowHeight    = "window_height"
    PrefThumbSize       = "thumb_size"
    PrefPreferEmbedded  = "prefer_embedded"
    PrefLazyRender      = "lazy_render"
    PrefUseExternalTool = "use_external_tool"
    PrefAntialias       = "antialias"
)

// DefaultPreferences returns the first-run preferences.
func DefaultPreferences() Preferences {
    return Preferences{
        WindowWidth:    800,
        WindowHeight:   600,
        ThumbSize:      200,
        PreferEmbedded: true,
        LazyRender:     true,
        Antialias:      true,
    }
}

// Map flattens p into string settings.
func (p Preferences) Map() map[string]string {
    return map[string]string{
        PrefWindowX:         strconv.Itoa(p.WindowX),
        PrefWindowY:         strconv.Itoa(p.WindowY),
        PrefWindowWidth:     strconv.Itoa(p.WindowWidth),
        PrefWindowHeight:    strconv.Itoa(p.WindowHeight),
        PrefThumbSize:       strconv.Itoa(p.ThumbSize),
        PrefPreferEmbedded:  strconv.FormatBool(p.PreferEmbedded),
        PrefLazyRender:      strconv.FormatBool(p.LazyRender),
        PrefUseExternalTool: strconv.FormatBool(p.UseExternalTool),
        PrefAntialias:       strconv.FormatBool(p.Antialias),
    }
}

// PreferencesFromMap overlays settings onto the defaults. Missing or
// malformed values keep their default.
func PreferencesFromMap(m map[string]string) Preferences {
    p := DefaultPreferences()
    p.WindowX = parseInt(m[PrefWindowX], p.WindowX)
    p.WindowY = parseInt(m[PrefWindowY], p.WindowY)
    p.WindowWidth = parseInt(m[PrefWindowWidth], p.WindowWidth)
    p.WindowHeight = parseInt(m[PrefWindowHeight], p.WindowHeight)
    p.ThumbSize = parseInt(m[PrefThumbSize], p.ThumbSize)
    p.PreferEmbedded = boolOr(m[PrefPreferEmbedded], p.PreferEmbedded)
    p.LazyRender = boolOr(m[PrefLazyRender], p.LazyRender)
    p.UseExternalTool = boolOr(m[PrefUseExternalTool], p.UseExternalTool)
    p.Antialias = boolOr(m[PrefAntialias], p.Antialias)
    if p.ThumbSize <= 0 { p.ThumbSize = DefaultPreferences().ThumbSize }
    return p
}

func boolOr(s string, def bool) bool {
    if s == "" { return def }
    if b, err := strconv.ParseBool(s); err == nil { return b }
    return def
}
