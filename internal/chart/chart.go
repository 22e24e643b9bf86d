// Package chart loads a chart of accounts from YAML or TOML files and
// imports it into storage.
package chart

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"kicho/internal/core"
)

// Format names a chart file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

var ErrUnknownFormat = errors.New("unknown chart format")

// AccountDef is one account as written in a chart file.
type AccountDef struct {
	Code     string `yaml:"code" toml:"code"`
	Name     string `yaml:"name" toml:"name"`
	Category string `yaml:"category" toml:"category"`
}

// File is the top-level layout of a chart file.
type File struct {
	Accounts []AccountDef `yaml:"accounts" toml:"accounts"`
}

// FormatFromPath picks the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", fmt.Errorf("%w: %s (want .yaml, .yml or .toml)", ErrUnknownFormat, path)
}

// Load reads and validates the chart file at path.
func Load(path string) ([]core.Account, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chart file: %w", err)
	}
	accounts, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return accounts, nil
}

// Parse decodes data and validates every account. Codes must be unique and
// categories are matched case-insensitively.
func Parse(data []byte, format Format) ([]core.Account, error) {
	var f File
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &f)
		if err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown TOML key %s", undecoded[0])
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}

	accounts := make([]core.Account, 0, len(f.Accounts))
	seen := make(map[string]int, len(f.Accounts))
	for i, def := range f.Accounts {
		a := core.Account{
			Code:     strings.TrimSpace(def.Code),
			Name:     strings.TrimSpace(def.Name),
			Category: core.AccountCategory(strings.ToUpper(strings.TrimSpace(def.Category))),
		}
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("account #%d (%q): %w", i+1, def.Code, err)
		}
		if prev, dup := seen[a.Code]; dup {
			return nil, fmt.Errorf("account #%d: code %s already defined by account #%d", i+1, a.Code, prev)
		}
		seen[a.Code] = i + 1
		accounts = append(accounts, a)
	}
	return accounts, nil
}

// Upserter stores accounts by code. *storage.SQLiteRepository implements it.
type Upserter interface {
	UpsertAccount(ctx context.Context, a core.Account) (core.Account, error)
}

// Import upserts accounts in order and returns the stored accounts. It stops
// at the first failure.
func Import(ctx context.Context, store Upserter, accounts []core.Account) ([]core.Account, error) {
	saved := make([]core.Account, 0, len(accounts))
	for _, a := range accounts {
		s, err := store.UpsertAccount(ctx, a)
		if err != nil {
			return saved, fmt.Errorf("import account %s: %w", a.Code, err)
		}
		saved = append(saved, s)
	}
	return saved, nil
}
