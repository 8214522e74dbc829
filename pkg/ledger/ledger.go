// Package ledger reads and writes the audit ledger file.
//
// A ledger on disk is a JSON object keyed by normalized path. Load validates
// it against an embedded JSON Schema before decoding, Save writes it
// atomically and leaves an identical file untouched, and Union folds a
// fresh run into a prior one.
package ledger

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/panbanda/refaudit/pkg/models"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "refaudit://ledger.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(schemaJSON))
		if err != nil {
			schemaErr = fmt.Errorf("decode ledger schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource(schemaURL, doc); err != nil {
			schemaErr = fmt.Errorf("add ledger schema: %w", err)
			return
		}
		schema, schemaErr = c.Compile(schemaURL)
	})
	return schema, schemaErr
}

// Validate checks raw ledger JSON against the ledger schema.
func Validate(data []byte) error {
	sch, err := compiled()
	if err != nil {
		return err
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("invalid ledger JSON: %w", err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("ledger does not match schema: %w", err)
	}
	return nil
}

// Load reads the ledger at path. A missing file yields an empty ledger;
// an unreadable or invalid one is an error.
func Load(path string) (models.AuditLedger, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return make(models.AuditLedger), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return make(models.AuditLedger), nil
	}
	if err := Validate(data); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	var l models.AuditLedger
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", path, err)
	}
	for _, rec := range l {
		normalize(rec)
	}
	return l, nil
}

// normalize fills sub-ledgers that decoded as null.
func normalize(rec *models.FileAuditRecord) {
	if rec.MethodDiff == nil {
		rec.MethodDiff = make(map[string]models.MethodDiff)
	}
	if rec.MissingTests == nil {
		rec.MissingTests = []models.MissingTestEntry{}
	}
	if rec.Complexity == nil {
		rec.Complexity = make(map[string]models.ComplexityEntry)
	}
	if rec.Quality == nil {
		rec.Quality = make(models.QualityFinding)
	}
}

// Encode renders the ledger as indented JSON with a trailing newline.
func Encode(l models.AuditLedger) ([]byte, error) {
	if l == nil {
		l = make(models.AuditLedger)
	}
	data, err := json.MarshalIndent(l, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode ledger: %w", err)
	}
	return append(data, '\n'), nil
}

// Save writes the ledger to path through a temporary file and a rename.
// It reports whether the file was written; a file whose content already
// matches is left alone.
func Save(path string, l models.AuditLedger) (bool, error) {
	data, err := Encode(l)
	if err != nil {
		return false, err
	}

	if existing, err := os.ReadFile(path); err == nil && xxhash.Sum64(existing) == xxhash.Sum64(data) {
		return false, nil
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("create ledger directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return false, fmt.Errorf("create temp ledger: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return false, fmt.Errorf("write temp ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return false, fmt.Errorf("close temp ledger: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return false, fmt.Errorf("chmod temp ledger: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return false, fmt.Errorf("replace ledger: %w", err)
	}
	return true, nil
}

// Union returns a new ledger holding every key of prior and fresh. Where
// both have a key, the fresh record wins.
func Union(prior, fresh models.AuditLedger) models.AuditLedger {
	out := make(models.AuditLedger, len(prior)+len(fresh))
	for k, rec := range prior {
		out[k] = rec
	}
	for k, rec := range fresh {
		out[k] = rec
	}
	return out
}
