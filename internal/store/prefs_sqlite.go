package store

import (
    "context"
    "database/sql"
    "fmt"
    "os"
    "path/filepath"

    "github.com/rs/zerolog/log"
    _ "modernc.org/sqlite"

    "github.com/local/pdfsnip/internal/config"
)

// Prefs persists config.Preferences in a sqlite key/value settings table.
type Prefs struct {
    db *sql.DB
}

// OpenPrefs opens (creating if needed) the preference database at path.
func OpenPrefs(path string) (*Prefs, error) {
    if dir := filepath.Dir(path); dir != "" {
        if err := os.MkdirAll(dir, 0o755); err != nil { return nil, err }
    }
    db, err := sql.Open("sqlite", path)
    if err != nil { return nil, fmt.Errorf("open prefs: %w", err) }
    db.SetMaxOpenConns(1)

    const schema = `
    CREATE TABLE IF NOT EXISTS settings (
        key TEXT PRIMARY KEY,
        value TEXT
    );`
    if _, err := db.Exec(schema); err != nil {
        _ = db.Close()
        return nil, fmt.Errorf("create settings table: %w", err)
    }
    return &Prefs{db: db}, nil
}

func (p *Prefs) Close() error { return p.db.Close() }

// Load returns the stored preferences overlaid on the defaults.
func (p *Prefs) Load(ctx context.Context) (config.Preferences, error) {
    rows, err := p.db.QueryContext(ctx, "SELECT key, value FROM settings")
    if err != nil { return config.DefaultPreferences(), err }
    defer rows.Close()

    settings := make(map[string]string)
    for rows.Next() {
        var key, value string
        if err := rows.Scan(&key, &value); err != nil { return config.DefaultPreferences(), err }
        settings[key] = value
    }
    if err := rows.Err(); err != nil { return config.DefaultPreferences(), err }
    return config.PreferencesFromMap(settings), nil
}

// Save writes every preference in one transaction.
func (p *Prefs) Save(ctx context.Context, prefs config.Preferences) error {
    tx, err := p.db.BeginTx(ctx, nil)
    if err != nil { return err }
    defer func() { _ = tx.Rollback() }()

    stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)")
    if err != nil { return err }
    defer stmt.Close()
    for k, v := range prefs.Map() {
        if _, err := stmt.ExecContext(ctx, k, v); err != nil { return fmt.Errorf("save %s: %w", k, err) }
    }
    if err := tx.Commit(); err != nil { return err }
    log.Debug().Int("thumb_size", prefs.ThumbSize).Msg("preferences saved")
    return nil
}
