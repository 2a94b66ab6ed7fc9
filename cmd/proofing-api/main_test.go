package main

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, dir string, args ...string) string {
	t.Helper()
	base := []string{
		"--database-dsn=",
		"--local-path=" + filepath.Join(dir, "local.db"),
		"--storage-root=" + filepath.Join(dir, "storage"),
		"--log-level=error",
	}
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(base, args...))
	if err := cmd.Execute(); err != nil {
		t.Fatalf("%s failed: %v\n%s", strings.Join(args, " "), err, out.String())
	}
	return out.String()
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{"serve", "favorites", "comments", "session", "export", "migrate", "gallery", "settings"}
	for _, name := range want {
		found := false
		for _, sub := range root.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		if !found {
			t.Fatalf("expected subcommand %q", name)
		}
	}
}

func TestLocalOnlyFavoritesAcrossInvocations(t *testing.T) {
	dir := t.TempDir()

	var session struct {
		UserName string `json:"userName"`
	}
	if err := json.Unmarshal([]byte(runCLI(t, dir, "session", "login", "Alice")), &session); err != nil || session.UserName != "Alice" {
		t.Fatalf("unexpected session %+v (%v)", session, err)
	}

	runCLI(t, dir, "favorites", "add", "g1", "p1")
	runCLI(t, dir, "favorites", "add", "g1", "p2")
	runCLI(t, dir, "favorites", "add", "g1", "p1")

	var listed struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(runCLI(t, dir, "favorites", "list", "g1")), &listed); err != nil || listed.Count != 2 {
		t.Fatalf("expected 2 favorites, got %+v (%v)", listed, err)
	}

	runCLI(t, dir, "favorites", "remove", "g1", "p1")
	if err := json.Unmarshal([]byte(runCLI(t, dir, "favorites", "mine", "g1")), &listed); err != nil || listed.Count != 1 {
		t.Fatalf("expected 1 favorite after removal, got %+v (%v)", listed, err)
	}
}

func TestExportWritesManifest(t *testing.T) {
	dir := t.TempDir()
	runCLI(t, dir, "favorites", "add", "g1", "p1", "--user-name", "Alice")
	runCLI(t, dir, "comments", "add", "g1", "p1", "love", "this")

	manifest := filepath.Join(dir, "selection.txt")
	output := runCLI(t, dir, "export", "g1", "--type", "personal", "--client-name", "Jean", "--output", manifest)

	var result struct {
		URL      string `json:"url"`
		FileName string `json:"file_name"`
	}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("failed to decode export: %v\n%s", err, output)
	}
	if !strings.HasPrefix(result.FileName, "selection-personal-g1-") {
		t.Fatalf("unexpected file name %q", result.FileName)
	}
	if !strings.Contains(result.URL, "/photos/selections/"+result.FileName) {
		t.Fatalf("unexpected url %q", result.URL)
	}
}

func TestCatalogCommandsNeedSharedStore(t *testing.T) {
	cmd := newRootCommand()
	dir := t.TempDir()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{
		"--database-dsn=",
		"--local-path=" + filepath.Join(dir, "local.db"),
		"--storage-root=" + filepath.Join(dir, "storage"),
		"gallery", "list",
	})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "database.dsn") {
		t.Fatalf("expected catalog error, got %v", err)
	}
}
