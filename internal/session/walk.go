package session

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/rs/zerolog/log"
)

var documentExts = map[string]bool{".pdf": true, ".djvu": true, ".djv": true}

// expandRefs replaces every local directory in refs with the documents found
// below it, sorted by path. Other refs pass through unchanged.
func expandRefs(refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	var errs []string
	for _, ref := range refs {
		info, err := os.Stat(ref)
		if err != nil || !info.IsDir() {
			out = append(out, ref)
			continue
		}
		found, err := walkDocuments(ref)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", ref, err))
		}
		log.Debug().Str("dir", ref).Int("documents", len(found)).Msg("directory expanded")
		out = append(out, found...)
	}
	if len(errs) > 0 {
		return out, fmt.Errorf("walk: %s", strings.Join(errs, "; "))
	}
	return out, nil
}

func walkDocuments(root string) ([]string, error) {
	var (
		mu    sync.Mutex
		found []string
	)
	conf := &fastwalk.Config{Follow: true}
	err := fastwalk.Walk(conf, root, func(path string, d iofs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !documentExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		mu.Lock()
		found = append(found, path)
		mu.Unlock()
		return nil
	})
	sort.Strings(found)
	return found, err
}
