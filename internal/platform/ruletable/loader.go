package ruletable

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ehr/comorbidity/internal/domain/comorbidity"
)

//go:embed tables
var embedded embed.FS

var (
	embeddedOnce sync.Once
	embeddedReg  *Registry
	embeddedErr  error
)

// Embedded returns the registry of rule tables compiled into the binary.
// The tables are parsed once per process.
func Embedded() (*Registry, error) {
	embeddedOnce.Do(func() {
		sub, err := fs.Sub(embedded, "tables")
		if err != nil {
			embeddedErr = err
			return
		}
		embeddedReg, embeddedErr = LoadFS(sub)
	})
	return embeddedReg, embeddedErr
}

// Parse decodes one YAML or JSON rule table, validates its shape against the
// schema and builds the rule set.
func Parse(data []byte) (*Document, *comorbidity.RuleSet, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, nil, fmt.Errorf("parse rule table: %w", err)
	}
	if raw == nil {
		return nil, nil, fmt.Errorf("parse rule table: empty document")
	}
	if err := ValidateDocument(raw); err != nil {
		return nil, nil, err
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, nil, fmt.Errorf("decode rule table: %w", err)
	}
	rs, err := doc.RuleSet()
	if err != nil {
		return nil, nil, err
	}
	return &doc, rs, nil
}

// LoadFS parses every .yaml, .yml and .json file under fsys into a registry.
func LoadFS(fsys fs.FS) (*Registry, error) {
	reg := NewRegistry()
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !isTableFile(p) {
			return nil
		}
		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("read %s: %w", p, err)
		}
		_, rs, err := Parse(data)
		if err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		if err := reg.Add(rs); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if reg.Len() == 0 {
		return nil, fmt.Errorf("no rule tables found")
	}
	return reg, nil
}

// LoadDir loads rule tables from a directory on disk.
func LoadDir(dir string) (*Registry, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("rules dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("rules dir: %s is not a directory", dir)
	}
	reg, err := LoadFS(os.DirFS(dir))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", dir, err)
	}
	return reg, nil
}

// ReadFile parses a single rule table file.
func ReadFile(name string) (*Document, *comorbidity.RuleSet, error) {
	data, err := os.ReadFile(name)
	if err != nil {
		return nil, nil, err
	}
	doc, rs, err := Parse(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", name, err)
	}
	return doc, rs, nil
}

func isTableFile(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}
