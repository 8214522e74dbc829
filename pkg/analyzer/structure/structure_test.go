package structure

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/panbanda/refaudit/pkg/ast"
	"github.com/panbanda/refaudit/pkg/ast/treesitter"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *ast.Module {
	t.Helper()
	mod, err := treesitter.New().Parse("mod.py", []byte(src))
	require.NoError(t, err)
	return mod
}

func TestExtract(t *testing.T) {
	src := `def top():
    def inner():
        pass
    return inner

class Foo:
    def kept(self):
        return 1

    @property
    def value(self):
        return 2

    async def load(self):
        class Local:
            def hidden(self):
                pass
        return Local

    class Inner:
        def deep(self):
            pass
`
	ranges := Extract(parse(t, src))

	want := []models.MethodRange{
		{QualifiedName: "top", StartLine: 1, EndLine: 4},
		{QualifiedName: "Foo.kept", OwningClass: "Foo", StartLine: 7, EndLine: 8},
		{QualifiedName: "Foo.value", OwningClass: "Foo", StartLine: 11, EndLine: 12},
		{QualifiedName: "Foo.load", OwningClass: "Foo", StartLine: 14, EndLine: 18},
		{QualifiedName: "Foo.Inner.deep", OwningClass: "Foo.Inner", StartLine: 21, EndLine: 22},
	}
	assert.Equal(t, want, ranges)
}

func TestExtract_RangesAreOrdered(t *testing.T) {
	src := `class A:
    def a(self): pass
    def b(self):
        x = 1
        return x
def c(): pass
`
	for _, r := range Extract(parse(t, src)) {
		assert.LessOrEqual(t, r.StartLine, r.EndLine, r.QualifiedName)
	}
}

func TestExtract_MissingEndLineFallsBackToSubtree(t *testing.T) {
	mod := &ast.Module{Root: &ast.Node{Kind: ast.KindModule, Children: []*ast.Node{
		{Kind: ast.KindClass, Name: "C", StartLine: 1, Children: []*ast.Node{
			{Kind: ast.KindFunction, Name: "m", StartLine: 2, Children: []*ast.Node{
				{Kind: ast.KindCall, Name: "print", StartLine: 5},
			}},
			{Kind: ast.KindFunction, Name: "bare", StartLine: 7},
		}},
	}}}

	ranges := Extract(mod)
	require.Len(t, ranges, 2)
	assert.Equal(t, models.MethodRange{QualifiedName: "C.m", OwningClass: "C", StartLine: 2, EndLine: 5}, ranges[0])
	assert.Equal(t, 7, ranges[1].EndLine)
}

func TestExtract_NilModule(t *testing.T) {
	assert.Nil(t, Extract(nil))
	assert.Nil(t, Extract(&ast.Module{}))
}

func TestExtractFile(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.py")
	bad := filepath.Join(dir, "bad.py")
	require.NoError(t, os.WriteFile(good, []byte("def f():\n    pass\n"), 0644))
	require.NoError(t, os.WriteFile(bad, []byte("def f(:\n"), 0644))

	p := treesitter.New()

	ranges, err := ExtractFile(p, good)
	require.NoError(t, err)
	require.Len(t, ranges, 1)
	assert.Equal(t, "f", ranges[0].QualifiedName)

	_, err = ExtractFile(p, bad)
	var pe *models.ParseError
	assert.True(t, errors.As(err, &pe))
}

func TestByClass(t *testing.T) {
	groups := ByClass([]models.MethodRange{
		{QualifiedName: "helper"},
		{QualifiedName: "Foo.a", OwningClass: "Foo"},
		{QualifiedName: "Foo.b", OwningClass: "Foo"},
	})
	assert.Equal(t, map[string][]string{
		models.ModuleScope: {"helper"},
		"Foo":              {"a", "b"},
	}, groups)
}
