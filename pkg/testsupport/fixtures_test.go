package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFixture(t *testing.T) {
	path := WriteTempFile(t, "test.txt", []byte("test fixture content"))

	result := LoadFixture(t, path)
	if string(result) != "test fixture content" {
		t.Errorf("expected %q, got %q", "test fixture content", result)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := WriteTempFile(t, "test.json", []byte(`{"name":"test","value":42,"items":["a","b","c"]}`))

	var result map[string]any
	LoadFixtureJSON(t, path, &result)

	if result["name"] != "test" {
		t.Errorf("expected name=test, got %v", result["name"])
	}
	if result["value"] != float64(42) { // JSON unmarshals numbers as float64
		t.Errorf("expected value=42, got %v", result["value"])
	}
}

func TestLoadEntities(t *testing.T) {
	type item struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	path := WriteTempFile(t, "items.json", []byte(`[{"id":"1","name":"one"},{"id":"2","name":"two"}]`))

	items := LoadEntities[item](t, path)
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[1] != (item{ID: "2", Name: "two"}) {
		t.Errorf("unexpected second item %+v", items[1])
	}
}

func TestWriteTempFile(t *testing.T) {
	path := WriteTempFile(t, "config.yaml", []byte("ttl: 1m\n"))

	if filepath.Base(path) != "config.yaml" {
		t.Errorf("expected file name config.yaml, got %s", filepath.Base(path))
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("temp file missing: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}
}

func TestFixturePath(t *testing.T) {
	if got := FixturePath("users.json"); got != filepath.Join("testdata", "users.json") {
		t.Errorf("unexpected fixture path %s", got)
	}
}
