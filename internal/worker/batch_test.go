package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestRunAll(t *testing.T) {
	jobs := []*FuncJob[int]{
		{Key: "a", Fn: func(ctx context.Context) (int, error) { return 1, nil }},
		{Key: "b", Fn: func(ctx context.Context) (int, error) { return 0, errors.New("down") }},
		{Key: "c", Fn: func(ctx context.Context) (int, error) { return 3, nil }},
	}

	results := RunAll(context.Background(), 2, jobs)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results["a"].Value != 1 || results["c"].Value != 3 {
		t.Errorf("unexpected values: a=%d c=%d", results["a"].Value, results["c"].Value)
	}
	if results["b"].GetError() == nil {
		t.Error("expected error for b")
	}
}

func TestRunAll_Empty(t *testing.T) {
	results := RunAll[string](context.Background(), 2, nil)
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestReadLinesFromFile(t *testing.T) {
	content := `http://example.com/feed.xml
# comment
https://example.org/rss

http://example.com/feed.xml
http://example.net/atom   `

	path := filepath.Join(t.TempDir(), "feeds.txt")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	lines, err := ReadLinesFromFile(path)
	if err != nil {
		t.Fatalf("ReadLinesFromFile failed: %v", err)
	}

	expected := []string{"http://example.com/feed.xml", "https://example.org/rss", "http://example.net/atom"}
	if len(lines) != len(expected) {
		t.Fatalf("expected %d lines, got %d", len(expected), len(lines))
	}
	for i, line := range lines {
		if line != expected[i] {
			t.Errorf("expected %s at index %d, got %s", expected[i], i, line)
		}
	}
}

func TestReadLinesFromFile_NonExistent(t *testing.T) {
	if _, err := ReadLinesFromFile("non_existent_file.txt"); err == nil {
		t.Error("expected error for non-existent file, got nil")
	}
}
