package backend

import (
	"context"
	"fmt"
	"log/slog"

	"kicho/internal/sheets"
	gsheet "kicho/internal/sheets/google"
	"kicho/internal/sheets/memory"
)

// NewLedgerWriter creates the export backend described by config.
func NewLedgerWriter(ctx context.Context, config Config) (sheets.LedgerWriter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SheetsBackend:
		client, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:      config.GoogleSpreadsheetID,
			SheetName:          config.GoogleSheetName,
			ServiceAccountFile: config.GoogleServiceAccountFile,
			ServiceAccountJSON: config.GoogleServiceAccountJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		slog.InfoContext(ctx, "Initialized Google Sheets export backend",
			"spreadsheet_id", config.GoogleSpreadsheetID,
			"sheet", config.GoogleSheetName)
		return client, nil
	default:
		slog.InfoContext(ctx, "Initialized in-memory export backend")
		return memory.New(), nil
	}
}
