package chart

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"kicho/internal/core"
	"kicho/internal/storage"
)

const sampleYAML = `
accounts:
  - code: "101"
    name: 現金
    category: asset
  - code: "750"
    name: 研修費
    category: EXPENSE
`

const sampleTOML = `
[[accounts]]
code = "101"
name = "現金"
category = "ASSET"

[[accounts]]
code = "750"
name = "研修費"
category = "expense"
`

func TestParse(t *testing.T) {
	for _, tc := range []struct {
		format Format
		data   string
	}{
		{FormatYAML, sampleYAML},
		{FormatTOML, sampleTOML},
	} {
		t.Run(string(tc.format), func(t *testing.T) {
			accounts, err := Parse([]byte(tc.data), tc.format)
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if len(accounts) != 2 {
				t.Fatalf("got %d accounts", len(accounts))
			}
			if accounts[0] != (core.Account{Code: "101", Name: "現金", Category: core.Asset}) {
				t.Errorf("first = %+v", accounts[0])
			}
			if accounts[1].Category != core.ExpenseCategory || accounts[1].Name != "研修費" {
				t.Errorf("second = %+v", accounts[1])
			}
		})
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name   string
		format Format
		data   string
		want   error
	}{
		{"bad category", FormatYAML, "accounts:\n  - {code: \"1\", name: x, category: INCOME}\n", core.ErrInvalidCategory},
		{"bad code", FormatYAML, "accounts:\n  - {code: \"A1\", name: x, category: ASSET}\n", core.ErrInvalidAccountCode},
		{"empty name", FormatTOML, "[[accounts]]\ncode = \"1\"\nname = \"\"\ncategory = \"ASSET\"\n", core.ErrEmptyAccountName},
		{"unknown format", Format("json"), "{}", ErrUnknownFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data), tt.format); !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}

	dup := "accounts:\n  - {code: \"1\", name: a, category: ASSET}\n  - {code: \"1\", name: b, category: ASSET}\n"
	if _, err := Parse([]byte(dup), FormatYAML); err == nil {
		t.Error("expected duplicate code error")
	}
	if _, err := Parse([]byte("[[accounts]]\ncode = \"1\"\nnmae = \"x\"\n"), FormatTOML); err == nil {
		t.Error("expected unknown key error")
	}
	if _, err := Parse([]byte("accounts: [\n"), FormatYAML); err == nil {
		t.Error("expected YAML syntax error")
	}
}

func TestFormatFromPath(t *testing.T) {
	for path, want := range map[string]Format{"a.yaml": FormatYAML, "b.YML": FormatYAML, "c.toml": FormatTOML} {
		if got, err := FormatFromPath(path); err != nil || got != want {
			t.Errorf("%s: %v, %v", path, got, err)
		}
	}
	if _, err := FormatFromPath("chart.csv"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("csv err = %v", err)
	}
}

func TestLoadAndImport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "chart.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	accounts, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	repo, err := storage.NewSQLiteRepository(filepath.Join(dir, "kicho.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	defer repo.Close()

	saved, err := Import(context.Background(), repo, accounts)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if len(saved) != 2 || saved[0].ID == 0 || saved[1].ID == 0 {
		t.Fatalf("saved = %+v", saved)
	}

	all, err := repo.ListAccounts(context.Background())
	if err != nil {
		t.Fatalf("ListAccounts: %v", err)
	}
	// 20 seeded accounts, 101 updated in place, 750 added.
	if len(all) != 21 {
		t.Errorf("accounts after import = %d, want 21", len(all))
	}

	if _, err := Load(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("expected error for missing file")
	}
}
