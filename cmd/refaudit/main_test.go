package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/panbanda/refaudit/pkg/audit"
	"github.com/panbanda/refaudit/pkg/config"
	"github.com/panbanda/refaudit/pkg/ledger"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"refaudit", "--no-color"}, args...))
	return out.String(), err
}

func TestConfigValidate(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "refaudit.toml")
	writeFile(t, good, "[thresholds]\ncomplexity_warn = 5\ncomplexity_error = 10\n")
	out, err := runApp(t, "-c", good, "config", "validate")
	if err != nil {
		t.Fatalf("validate good config: %v", err)
	}
	if !strings.Contains(out, "Configuration valid") {
		t.Errorf("output = %q, want confirmation", out)
	}

	bad := filepath.Join(dir, "bad.toml")
	writeFile(t, bad, "[execution]\nworkers = -1\n")
	if _, err := runApp(t, "-c", bad, "config", "validate"); err == nil {
		t.Error("expected validation error for negative workers")
	}
}

func TestConfigShow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "refaudit.yaml")
	writeFile(t, path, "thresholds:\n  complexity_warn: 7\n")

	out, err := runApp(t, "-c", path, "config", "show")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "# Configuration from: "+path) {
		t.Errorf("missing source line in %q", out)
	}
	if !strings.Contains(out, "complexity_warn = 7") {
		t.Errorf("missing overridden threshold in %q", out)
	}
}

func TestAuditPair(t *testing.T) {
	dir := t.TempDir()
	original := filepath.Join(dir, "legacy", "svc.py")
	refactored := filepath.Join(dir, "src", "svc.py")
	writeFile(t, original, `class Svc:
    def keep(self):
        return 1

    def dropped(self):
        return 2
`)
	writeFile(t, refactored, `class Svc:
    def keep(self):
        return 1

    def fresh(self, x):
        if x:
            return 3
        return 4
`)
	ledgerPath := filepath.Join(dir, "audit_ledger.json")
	outPath := filepath.Join(dir, "report.json")

	_, err := runApp(t, "-f", "json", "-o", outPath,
		"audit",
		"--root", dir,
		"--original", original,
		"--refactored", refactored,
		"--ledger", ledgerPath,
		"--no-quality",
		"--no-progress",
	)
	if err != nil {
		t.Fatalf("audit: %v", err)
	}

	l, err := ledger.Load(ledgerPath)
	if err != nil {
		t.Fatalf("load ledger: %v", err)
	}
	rec, ok := l["src/svc.py"]
	if !ok {
		t.Fatalf("ledger keys = %v, want src/svc.py", l.Paths())
	}
	diff := rec.MethodDiff["Svc"]
	if len(diff.Missing) != 1 || diff.Missing[0] != "dropped" {
		t.Errorf("missing = %v, want [dropped]", diff.Missing)
	}
	if len(diff.Added) != 1 || diff.Added[0] != "fresh" {
		t.Errorf("added = %v, want [fresh]", diff.Added)
	}
	if got := rec.Complexity["Svc.fresh"].Complexity; got != 2 {
		t.Errorf("Svc.fresh complexity = %d, want 2", got)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	var printed map[string]json.RawMessage
	if err := json.Unmarshal(data, &printed); err != nil {
		t.Fatalf("report is not JSON: %v", err)
	}
	if _, ok := printed["src/svc.py"]; !ok {
		t.Errorf("printed report lacks src/svc.py: %s", data)
	}
}

func TestAuditRequiresRefactored(t *testing.T) {
	dir := t.TempDir()
	if _, err := runApp(t, "audit", "--root", dir, "--no-quality"); err == nil {
		t.Error("expected error without --refactored")
	}
}

func TestAuditPairRejectsDirectory(t *testing.T) {
	dir := t.TempDir()
	if _, err := runApp(t, "audit", "--root", dir, "--refactored", dir, "--no-quality"); err == nil {
		t.Error("expected error for a directory in pair mode")
	}
}

func TestWatchRoots(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Audit.Refactored = "/repo/src/svc.py"
	cfg.Audit.Original = "/repo/legacy/svc.py"
	cfg.Audit.Tests = "/repo/src/test_svc.py"

	roots := watchRoots(cfg, audit.Request{Mode: audit.ModePair})
	want := []string{"/repo/src", "/repo/legacy"}
	if len(roots) != len(want) {
		t.Fatalf("roots = %v, want %v", roots, want)
	}
	for i := range want {
		if roots[i] != filepath.FromSlash(want[i]) {
			t.Errorf("roots[%d] = %q, want %q", i, roots[i], want[i])
		}
	}
}
