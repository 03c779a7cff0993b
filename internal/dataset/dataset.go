// Package dataset reads and writes the canonical museum records, stored as
// one JSON file per partition under the data directory.
package dataset

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/markhazleton/MuseumSpark-sub000/internal/model"
)

// Repository manages partition files under a single directory, typically
// data/museums.
type Repository struct {
	dir string
}

func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

func (r *Repository) path(partition string) string {
	return filepath.Join(r.dir, partition+".json")
}

// Partitions lists the partition names present on disk, sorted.
func (r *Repository) Partitions() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read dir %s", r.dir)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(out)
	return out, nil
}

// Load reads one partition. Records come back sorted by key regardless of
// file order.
func (r *Repository) Load(partition string) ([]model.Museum, error) {
	raw, err := os.ReadFile(r.path(partition))
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read partition %s", partition)
	}
	var museums []model.Museum
	if err := json.Unmarshal(raw, &museums); err != nil {
		return nil, eris.Wrapf(err, "dataset: parse partition %s", partition)
	}
	sort.Slice(museums, func(i, j int) bool { return museums[i].Key < museums[j].Key })
	return museums, nil
}

// Save writes one partition atomically: records are sorted by key, marshaled
// to an indented temp file in the same directory, then renamed over the
// target. A crash mid-write never leaves a truncated partition behind.
func (r *Repository) Save(partition string, museums []model.Museum) error {
	sort.Slice(museums, func(i, j int) bool { return museums[i].Key < museums[j].Key })

	raw, err := json.MarshalIndent(museums, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "dataset: marshal partition %s", partition)
	}
	raw = append(raw, '\n')

	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return eris.Wrapf(err, "dataset: mkdir %s", r.dir)
	}

	tmp, err := os.CreateTemp(r.dir, fmt.Sprintf(".%s-*.json.tmp", partition))
	if err != nil {
		return eris.Wrapf(err, "dataset: temp file for %s", partition)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "dataset: write partition %s", partition)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return eris.Wrapf(err, "dataset: sync partition %s", partition)
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrapf(err, "dataset: close partition %s", partition)
	}
	if err := os.Rename(tmpName, r.path(partition)); err != nil {
		return eris.Wrapf(err, "dataset: rename partition %s", partition)
	}

	zap.L().Debug("partition written",
		zap.String("partition", partition),
		zap.Int("museums", len(museums)))
	return nil
}

// Signature returns a cheap change signature for a partition file based on
// its mtime and size, or "" when the file does not exist.
func (r *Repository) Signature(partition string) (string, error) {
	info, err := os.Stat(r.path(partition))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "dataset: stat partition %s", partition)
	}
	return fmt.Sprintf("mtime:%d:size:%d", info.ModTime().UnixNano(), info.Size()), nil
}

// FileSignature is Signature for an arbitrary path; sources use it to
// watermark local upstream files like registry spreadsheets.
func FileSignature(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", eris.Wrapf(err, "dataset: stat %s", path)
	}
	return fmt.Sprintf("mtime:%d:size:%d", info.ModTime().UnixNano(), info.Size()), nil
}

// Upsert replaces the record with a matching key or appends a new one,
// returning the updated slice.
func Upsert(museums []model.Museum, m model.Museum) []model.Museum {
	for i := range museums {
		if museums[i].Key == m.Key {
			museums[i] = m
			return museums
		}
	}
	return append(museums, m)
}
