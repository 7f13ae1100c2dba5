package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/gorm"
)

var journalCSVHeader = []string{"ID", "Vendor", "Network", "Wallet", "Type", "To", "Amount", "Fee", "Token", "Status", "TxHash", "Block", "Retries", "LastError", "CreatedAt"}

// JournalExporter writes journal records as CSV.
type JournalExporter struct {
	db *gorm.DB
}

func NewJournalExporter(db *gorm.DB) *JournalExporter {
	return &JournalExporter{db: db}
}

// ExportToCSV writes the records matching filter, oldest first.
func (e *JournalExporter) ExportToCSV(writer io.Writer, filter RecordFilter) error {
	records, err := ListRecords(e.db, filter)
	if err != nil {
		return fmt.Errorf("failed to get records: %w", err)
	}

	csvWriter := csv.NewWriter(writer)
	if err := csvWriter.Write(journalCSVHeader); err != nil {
		return fmt.Errorf("failed to write header to CSV: %w", err)
	}

	for _, r := range records {
		row := []string{
			r.ID.String(),
			r.Vendor,
			r.Network,
			r.Wallet,
			string(r.Type),
			r.ToAddress,
			r.Amount,
			r.Fee,
			r.TokenSymbol,
			string(r.Status),
			r.TxHash,
			strconv.FormatUint(r.BlockNumber, 10),
			strconv.Itoa(r.Retries),
			r.Error,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := csvWriter.Write(row); err != nil {
			return fmt.Errorf("failed to write row to CSV: %w", err)
		}
	}
	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportToFile writes <outputDir>/journal_<wallet>.csv and returns its path.
func (e *JournalExporter) ExportToFile(outputDir string, filter RecordFilter) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", outputDir, err)
	}

	name := "journal.csv"
	if filter.Wallet != "" {
		name = fmt.Sprintf("journal_%s.csv", filter.Wallet)
	}
	fileName := filepath.Join(outputDir, name)
	file, err := os.Create(fileName)
	if err != nil {
		return "", fmt.Errorf("failed to create CSV file %s: %w", fileName, err)
	}
	defer file.Close()

	if err := e.ExportToCSV(file, filter); err != nil {
		return "", fmt.Errorf("failed to export to CSV: %w", err)
	}
	return fileName, nil
}
