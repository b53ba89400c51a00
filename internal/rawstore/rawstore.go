// Package rawstore lays out fetched search responses on disk. A file's
// existence marks its (route, date) task as done.
package rawstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// monthDirs are the month directory names used by existing corpora.
var monthDirs = [...]string{
	"enero", "febrero", "marzo", "abril", "mayo", "junio",
	"julio", "agosto", "septiembre", "octubre", "noviembre", "diciembre",
}

// CityDir strips a parenthesised suffix from a city label: "Lima (Todos)" -> "Lima".
func CityDir(label string) string {
	if i := strings.Index(label, "("); i >= 0 {
		label = label[:i]
	}
	return strings.TrimSpace(label)
}

func MonthDir(m time.Month) string {
	if m < time.January || m > time.December {
		return fmt.Sprintf("mes_%d", int(m))
	}
	return monthDirs[m-1]
}

// Path returns root/<origin>/<destination>/<month>/api_response_<YYYYMMDD>.json.
func Path(root, origin, destination string, day time.Time) string {
	return filepath.Join(root, CityDir(origin), CityDir(destination), MonthDir(day.Month()),
		"api_response_"+day.Format("20060102")+".json")
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Digest identifies a raw body's content. A re-crawl that rewrites a path
// with new fares yields a new digest.
func Digest(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// FileDigest is Digest of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("digest %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Write stores body at path. The body lands in a temp file first and is
// renamed into place, so a crash never leaves a truncated done marker.
func Write(path string, body []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// List returns every .json file below root in lexical order.
func List(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".json") && !strings.HasPrefix(d.Name(), ".") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}
