package epub

import (
	"archive/zip"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/valpere/scanbook/internal/structurer"
)

func readEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	r, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("failed to open epub: %v", err)
	}
	defer r.Close()

	entries := make(map[string]string)
	for _, f := range r.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("failed to open %s: %v", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			t.Fatalf("failed to read %s: %v", f.Name, err)
		}
		entries[f.Name] = string(data)
	}
	return entries
}

func TestWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.epub")
	chapters := []structurer.Chapter{
		{Title: "Chapter 2", BodyHTML: "<p>Goodbye.</p>", Order: 1},
		{Title: "Chapter 1 & more", BodyHTML: "<p>Hello world.</p>", Order: 0},
	}

	err := Write(path, chapters, Metadata{Title: "My Book", Author: "Jane Doe", Language: "en"})
	if err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	entries := readEntries(t, path)
	if entries["mimetype"] != "application/epub+zip" {
		t.Errorf("unexpected mimetype %q", entries["mimetype"])
	}

	var first, second string
	for name, content := range entries {
		switch {
		case strings.HasSuffix(name, "chap_001.xhtml"):
			first = content
		case strings.HasSuffix(name, "chap_002.xhtml"):
			second = content
		}
	}
	if !strings.Contains(first, "<h1>Chapter 1 &amp; more</h1>") || !strings.Contains(first, "Hello world.") {
		t.Errorf("first section is not chapter 1:\n%s", first)
	}
	if !strings.Contains(second, "<h1>Chapter 2</h1>") || !strings.Contains(second, "Goodbye.") {
		t.Errorf("second section is not chapter 2:\n%s", second)
	}

	var opf string
	for name, content := range entries {
		if strings.HasSuffix(name, ".opf") {
			opf = content
		}
	}
	if !strings.Contains(opf, "My Book") || !strings.Contains(opf, "Jane Doe") {
		t.Errorf("package document lacks metadata:\n%s", opf)
	}
}

func TestWrite_NoChapters(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "empty.epub"), nil, Metadata{Title: "Empty"})
	if !errors.Is(err, ErrNoChapters) {
		t.Errorf("expected ErrNoChapters, got %v", err)
	}
}
