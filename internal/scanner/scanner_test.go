package scanner

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/panbanda/refaudit/pkg/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(root, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("Failed to create directory: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create file %s: %v", name, err)
		}
	}
}

func TestNewScanner(t *testing.T) {
	s := NewScanner(nil)
	if s == nil {
		t.Fatal("NewScanner(nil) returned nil")
	}
	if s.config == nil {
		t.Error("scanner.config should not be nil when passing nil")
	}

	cfg := config.DefaultConfig()
	s = NewScanner(cfg)
	if s.config != cfg {
		t.Error("scanner.config should be the provided config")
	}
}

func TestScanDir(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"app.py":               "x = 1\n",
		"pkg/service.py":       "class S: pass\n",
		"pkg/__init__.py":      "",
		"pkg/test_service.py":  "def test_x(): pass\n",
		"pkg/service_test.py":  "def test_y(): pass\n",
		"conftest.py":          "",
		"README.md":            "# readme\n",
		"__pycache__/app.py":   "",
		".venv/lib/site.py":    "",
		"build/lib/pkg/mod.py": "",
	})

	result, err := NewScanner(nil).ScanDir(tmpDir)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}

	want := []string{"app.py", "pkg/__init__.py", "pkg/service.py"}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("ScanDir() = %v, want %v", result, want)
	}
}

func TestScanDirGitignore(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(tmpDir, ".git"), 0755); err != nil {
		t.Fatal(err)
	}
	writeTree(t, tmpDir, map[string]string{
		".gitignore":             "generated/\n*_pb2.py\n",
		"src/app.py":             "",
		"src/api_pb2.py":         "",
		"src/generated/model.py": "",
		"src/sub/.gitignore":     "local.py\n",
		"src/sub/local.py":       "",
		"src/sub/kept.py":        "",
	})

	// scanning below the git root still honours the root .gitignore
	result, err := NewScanner(nil).ScanDir(filepath.Join(tmpDir, "src"))
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	want := []string{"app.py", "sub/kept.py"}
	if !reflect.DeepEqual(result, want) {
		t.Errorf("ScanDir() = %v, want %v", result, want)
	}

	cfg := config.DefaultConfig()
	cfg.Exclude.Gitignore = false
	result, err = NewScanner(cfg).ScanDir(filepath.Join(tmpDir, "src"))
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	if len(result) != 5 {
		t.Errorf("ScanDir() without gitignore found %d files, want 5: %v", len(result), result)
	}
}

func TestScanDirSymlinkOutsideRoot(t *testing.T) {
	outside := t.TempDir()
	writeTree(t, outside, map[string]string{"secret.py": ""})

	root := t.TempDir()
	writeTree(t, root, map[string]string{"app.py": ""})
	if err := os.Symlink(filepath.Join(outside, "secret.py"), filepath.Join(root, "link.py")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	result, err := NewScanner(nil).ScanDir(root)
	if err != nil {
		t.Fatalf("ScanDir() error: %v", err)
	}
	if !reflect.DeepEqual(result, []string{"app.py"}) {
		t.Errorf("ScanDir() = %v, want [app.py]", result)
	}
}

func TestScanDirMissingRoot(t *testing.T) {
	if _, err := NewScanner(nil).ScanDir(filepath.Join(t.TempDir(), "nope")); err == nil {
		t.Error("ScanDir() on a missing root should fail")
	}
}

func TestScanFile(t *testing.T) {
	tmpDir := t.TempDir()
	writeTree(t, tmpDir, map[string]string{
		"pkg/mod.py":       "",
		"pkg/test_mod.py":  "",
		"pkg/notes.txt":    "",
		"build/pkg/gen.py": "",
		"pkg/sub/inner.py": "",
	})

	s := NewScanner(nil)
	tests := []struct {
		rel  string
		want bool
	}{
		{"pkg/mod.py", true},
		{"pkg/sub/inner.py", true},
		{"pkg/test_mod.py", false},
		{"pkg/notes.txt", false},
		{"build/pkg/gen.py", false},
		{"pkg", false},
	}
	for _, tt := range tests {
		t.Run(tt.rel, func(t *testing.T) {
			got, err := s.ScanFile(tmpDir, tt.rel)
			if err != nil {
				t.Fatalf("ScanFile(%q) error: %v", tt.rel, err)
			}
			if got != tt.want {
				t.Errorf("ScanFile(%q) = %v, want %v", tt.rel, got, tt.want)
			}
		})
	}

	if _, err := s.ScanFile(tmpDir, "missing.py"); err == nil {
		t.Error("ScanFile() on a missing file should fail")
	}
}

func TestIsWithinRoot(t *testing.T) {
	root := filepath.FromSlash("/repo")
	tests := []struct {
		path string
		want bool
	}{
		{"/repo", true},
		{"/repo/a.py", true},
		{"/repo2/a.py", false},
		{"/other", false},
	}
	for _, tt := range tests {
		if got := isWithinRoot(filepath.FromSlash(tt.path), root); got != tt.want {
			t.Errorf("isWithinRoot(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}
