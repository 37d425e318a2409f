package main

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hits.txt")
	data := "# E x y\n0.1 0.25 -1.5\n\n2.0\t-3\t4.75 extra\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	hits, err := parseFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("%d hits", len(hits))
	}
	if hits[0].Energy != 0.1 || hits[0].X != 0.25 || hits[0].Y != -1.5 || hits[0].EventID != 0 {
		t.Errorf("hit 0 = %+v", hits[0])
	}
	if hits[1].Energy != 2 || hits[1].X != -3 || hits[1].Y != 4.75 || hits[1].EventID != 1 {
		t.Errorf("hit 1 = %+v", hits[1])
	}
}

func TestParseFileErrors(t *testing.T) {
	dir := t.TempDir()
	for name, data := range map[string]string{
		"short": "0.1 0.2\n",
		"nan":   "0.1 abc 0.2\n",
	} {
		path := filepath.Join(dir, name)
		os.WriteFile(path, []byte(data), 0644)
		if _, err := parseFile(path); err == nil {
			t.Errorf("%s: no error", name)
		}
	}
	if _, err := parseFile(filepath.Join(dir, "missing")); err == nil {
		t.Error("missing file: no error")
	}
}

func TestRandomHits(t *testing.T) {
	a := randomHits(500, 0.1, 30, 9)
	b := randomHits(500, 0.1, 30, 9)
	for i := range a {
		if a[i] != b[i] {
			t.Fatal("same seed gave different hits")
		}
		if math.Abs(a[i].X) > 15 || math.Abs(a[i].Y) > 15 || a[i].Energy != 0.1 {
			t.Fatalf("hit %d = %+v", i, a[i])
		}
	}
}
