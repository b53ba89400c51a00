package rawstore

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPathLayout(t *testing.T) {
	day := time.Date(2025, time.July, 5, 0, 0, 0, 0, time.UTC)
	got := Path("root", "Lima (Todos)", "Arequipa", day)
	want := filepath.Join("root", "Lima", "Arequipa", "julio", "api_response_20250705.json")
	if got != want {
		t.Fatalf("Path = %q, want %q", got, want)
	}
}

func TestDigestFollowsContent(t *testing.T) {
	root := t.TempDir()
	p := Path(root, "Lima", "Cusco", time.Date(2025, time.July, 5, 0, 0, 0, 0, time.UTC))
	first := []byte(`{"inventories":[{"fareList":[120]}]}`)
	if err := Write(p, first); err != nil {
		t.Fatalf("write: %v", err)
	}
	d1, err := FileDigest(p)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d1 != Digest(first) {
		t.Fatalf("FileDigest = %s, want %s", d1, Digest(first))
	}

	if err := Write(p, []byte(`{"inventories":[{"fareList":[99]}]}`)); err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	d2, err := FileDigest(p)
	if err != nil {
		t.Fatalf("digest: %v", err)
	}
	if d2 == d1 {
		t.Fatalf("digest unchanged after rewrite")
	}
	if _, err := FileDigest(filepath.Join(root, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestWriteExistsList(t *testing.T) {
	root := t.TempDir()
	p := Path(root, "Cusco", "Puno", time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC))
	if Exists(p) {
		t.Fatalf("file should not exist yet")
	}
	body := []byte(`{"inventories":[]}`)
	if err := Write(p, body); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !Exists(p) {
		t.Fatalf("file should exist after write")
	}
	got, err := os.ReadFile(p)
	if err != nil || string(got) != string(body) {
		t.Fatalf("read back = %q, %v", got, err)
	}

	other := Path(root, "Arequipa", "Puno", time.Date(2025, time.March, 2, 0, 0, 0, 0, time.UTC))
	if err := Write(other, body); err != nil {
		t.Fatalf("write: %v", err)
	}
	files, err := List(root)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || files[0] != other || files[1] != p {
		t.Fatalf("List = %v", files)
	}

	entries, _ := os.ReadDir(filepath.Dir(p))
	for _, e := range entries {
		if e.Name() != filepath.Base(p) {
			t.Fatalf("leftover file %s", e.Name())
		}
	}
}

func TestMonthDirOutOfRange(t *testing.T) {
	if got := MonthDir(13); got != "mes_13" {
		t.Fatalf("MonthDir(13) = %q", got)
	}
}
