package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// testTopologyPath returns the path to a topology under testdata.
func testTopologyPath(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join("testdata", name)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("test file not found: %s", path)
	}
	return path
}

// withFlags sets the global output flags for the duration of a test.
func withFlags(t *testing.T, json, plain bool) {
	t.Helper()
	oldJSON, oldPlain := jsonOut, noColor
	jsonOut, noColor = json, plain
	t.Cleanup(func() { jsonOut, noColor = oldJSON, oldPlain })
}

// assertContains checks that output contains all expected strings
func assertContains(t *testing.T, output string, expected []string) {
	t.Helper()
	for _, want := range expected {
		if !strings.Contains(output, want) {
			t.Errorf("output missing expected string %q\nGot: %s", want, output)
		}
	}
}
