package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const upSQLSuffix = ".up.sql"

// Pair is a scaffolded up/down migration file pair
type Pair struct {
	Version  string
	UpPath   string
	DownPath string
}

// Scaffold writes an empty up/down migration pair into dir. Versions are
// second-resolution timestamps, matching golang-migrate's ordering.
func Scaffold(dir, name string) (*Pair, error) {
	slug := slugify(name)
	if slug == "" {
		return nil, fmt.Errorf("migration name %q contains no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create migrations directory: %w", err)
	}

	version := time.Now().Format("20060102150405")
	base := version + "_" + slug
	pair := &Pair{
		Version:  version,
		UpPath:   filepath.Join(dir, base+upSQLSuffix),
		DownPath: filepath.Join(dir, base+".down.sql"),
	}

	up := fmt.Sprintf(
		"-- %s\n"+
			"-- Tables that feed offline sync need: id UUID PRIMARY KEY, tenant_id UUID,\n"+
			"-- store_id UUID, version BIGINT NOT NULL DEFAULT 1. Change capture reads\n"+
			"-- all four; register new tracked tables in the server's tracked registry.\n\n",
		slug)
	down := fmt.Sprintf("-- revert %s\n\n", slug)

	if err := os.WriteFile(pair.UpPath, []byte(up), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", pair.UpPath, err)
	}
	if err := os.WriteFile(pair.DownPath, []byte(down), 0o644); err != nil {
		_ = os.Remove(pair.UpPath)
		return nil, fmt.Errorf("failed to write %s: %w", pair.DownPath, err)
	}
	return pair, nil
}

// Versions lists the migrations present in dir, oldest first, one entry per
// up/down pair. A missing directory lists as empty.
func Versions(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var versions []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSQLSuffix) {
			continue
		}
		versions = append(versions, strings.TrimSuffix(entry.Name(), upSQLSuffix))
	}
	sort.Strings(versions)
	return versions, nil
}

// slugify lowercases a migration name and collapses anything that is not a
// letter or digit into single underscores
func slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		default:
			pendingSep = true
		}
	}
	return b.String()
}
