package cache

import (
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/panbanda/refaudit/pkg/ast"
	"github.com/panbanda/refaudit/pkg/models"
)

func TestNew(t *testing.T) {
	tmpDir := t.TempDir()

	c, err := New(filepath.Join(tmpDir, "nested", "cache"), 24, true)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if !c.Enabled() {
		t.Error("cache should be enabled")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "nested", "cache")); err != nil {
		t.Errorf("cache directory not created: %v", err)
	}

	c, err = New("", 0, false)
	if err != nil {
		t.Fatalf("New() error for disabled cache: %v", err)
	}
	if c.Enabled() {
		t.Error("cache should be disabled")
	}
}

func TestHashBytes(t *testing.T) {
	a := HashBytes([]byte("def f(): pass"))
	b := HashBytes([]byte("def f(): pass"))
	c := HashBytes([]byte("def g(): pass"))
	if a != b {
		t.Error("same content should hash equally")
	}
	if a == c {
		t.Error("different content should hash differently")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64", len(a))
	}
}

func TestLookupStore(t *testing.T) {
	c, err := New(t.TempDir(), 24, true)
	if err != nil {
		t.Fatal(err)
	}

	if err := c.Store("pkg/mod.py", "h1", []byte("data")); err != nil {
		t.Fatalf("Store() error: %v", err)
	}
	data, ok := c.Lookup("pkg/mod.py", "h1")
	if !ok || string(data) != "data" {
		t.Errorf("Lookup() = %q, %v", data, ok)
	}
	if _, ok := c.Lookup("pkg/mod.py", "h2"); ok {
		t.Error("Lookup() should miss on a different hash")
	}
	if _, ok := c.Lookup("other.py", "h1"); ok {
		t.Error("Lookup() should miss on an unknown key")
	}

	if err := c.Store("pkg/mod.py", "h2", []byte("newer")); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.Lookup("pkg/mod.py", "h1"); ok {
		t.Error("replaced entry should miss on the old hash")
	}
}

func TestTTLExpiry(t *testing.T) {
	c, err := New(t.TempDir(), 1, true)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Store("k", "h", []byte("v")); err != nil {
		t.Fatal(err)
	}

	// age the entry past the TTL
	c.ttl = time.Nanosecond
	time.Sleep(time.Millisecond)
	if _, ok := c.Lookup("k", "h"); ok {
		t.Error("expired entry should miss")
	}
	if _, err := os.Stat(c.entryPath("k")); !os.IsNotExist(err) {
		t.Error("expired entry should be removed")
	}
}

func TestPrune(t *testing.T) {
	dir := t.TempDir()
	c, err := New(dir, 0, true)
	if err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"a", "b"} {
		if err := c.Store(k, "h", []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "garbage.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".entry-123"), []byte("partial"), 0o644); err != nil {
		t.Fatal(err)
	}

	removed, err := c.Prune()
	if err != nil {
		t.Fatalf("Prune() error: %v", err)
	}
	if removed != 2 {
		t.Errorf("Prune() removed %d, want 2", removed)
	}
	if _, ok := c.Lookup("a", "h"); !ok {
		t.Error("live entry should survive Prune()")
	}

	c.ttl = time.Nanosecond
	time.Sleep(time.Millisecond)
	removed, err = c.Prune()
	if err != nil || removed != 2 {
		t.Errorf("Prune() after expiry = %d, %v; want 2, nil", removed, err)
	}
}

func TestDisabledCache(t *testing.T) {
	c, _ := New("", 0, false)
	if err := c.Store("k", "h", []byte("v")); err != nil {
		t.Errorf("Store() on disabled cache: %v", err)
	}
	if _, ok := c.Lookup("k", "h"); ok {
		t.Error("disabled cache should never hit")
	}
	if n, err := c.Prune(); n != 0 || err != nil {
		t.Errorf("Prune() = %d, %v", n, err)
	}

	var nilCache *Cache
	if nilCache.Enabled() {
		t.Error("nil cache should be disabled")
	}
}

type countingParser struct {
	calls atomic.Int32
	err   error
}

func (p *countingParser) Parse(path string, src []byte) (*ast.Module, error) {
	p.calls.Add(1)
	if p.err != nil {
		return nil, p.err
	}
	return &ast.Module{Path: path, Root: &ast.Node{
		Kind: ast.KindModule, StartLine: 1, EndLine: 3,
		Children: []*ast.Node{{Kind: ast.KindFunction, Name: "f", Async: true, StartLine: 1, EndLine: 3}},
	}}, nil
}

func TestParser_CachesByContent(t *testing.T) {
	c, err := New(t.TempDir(), 0, true)
	if err != nil {
		t.Fatal(err)
	}
	inner := &countingParser{}
	p := NewParser(inner, c, nil)

	src := []byte("async def f():\n    pass\n")
	first, err := p.Parse("pkg/mod.py", src)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	second, err := p.Parse("pkg/mod.py", src)
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if inner.calls.Load() != 1 {
		t.Errorf("inner parser called %d times, want 1", inner.calls.Load())
	}
	if second.Path != "pkg/mod.py" || len(second.Root.Children) != 1 {
		t.Fatalf("cached module = %+v", second)
	}
	fn := second.Root.Children[0]
	want := first.Root.Children[0]
	if fn.Name != want.Name || !fn.Async || fn.EndLine != want.EndLine {
		t.Errorf("cached function = %+v, want %+v", fn, want)
	}

	// changed content is parsed again
	if _, err := p.Parse("pkg/mod.py", []byte("def g(): pass\n")); err != nil {
		t.Fatal(err)
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner parser called %d times, want 2", inner.calls.Load())
	}
}

func TestParser_DoesNotCacheErrors(t *testing.T) {
	c, err := New(t.TempDir(), 0, true)
	if err != nil {
		t.Fatal(err)
	}
	inner := &countingParser{err: &models.ParseError{Path: "bad.py", Err: errors.New("syntax")}}
	p := NewParser(inner, c, nil)

	for range 2 {
		_, err := p.Parse("bad.py", []byte("def ("))
		var pe *models.ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("Parse() error = %v, want ParseError", err)
		}
	}
	if inner.calls.Load() != 2 {
		t.Errorf("inner parser called %d times, want 2", inner.calls.Load())
	}
}

func TestParser_DisabledCacheDelegates(t *testing.T) {
	c, _ := New("", 0, false)
	inner := &countingParser{}
	p := NewParser(inner, c, nil)
	for range 3 {
		if _, err := p.Parse("a.py", []byte("x = 1")); err != nil {
			t.Fatal(err)
		}
	}
	if inner.calls.Load() != 3 {
		t.Errorf("inner parser called %d times, want 3", inner.calls.Load())
	}
}
