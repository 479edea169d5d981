// Package export writes stored crawl records to JSON or CSV files.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BenjaminSRussell/shopscout/internal/types"
)

// Format selects the export file format
type Format string

const (
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
	FormatCSV   Format = "csv"
)

// ParseFormat accepts a format name, or infers it from a file extension
func ParseFormat(name, outputFile string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(filepath.Ext(outputFile), ".")
	}
	switch Format(strings.ToLower(name)) {
	case FormatJSON:
		return FormatJSON, nil
	case FormatJSONL:
		return FormatJSONL, nil
	case FormatCSV:
		return FormatCSV, nil
	}
	return "", fmt.Errorf("unsupported export format %q", name)
}

type Exporter struct {
	outputDir string
}

func NewExporter(outputDir string) (*Exporter, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	return &Exporter{
		outputDir: outputDir,
	}, nil
}

// Export writes records in the given format. Relative output paths are
// placed in the exporter's directory.
func (e *Exporter) Export(records []types.CrawlRecord, format Format, outputFile string) error {
	if !filepath.IsAbs(outputFile) {
		outputFile = filepath.Join(e.outputDir, outputFile)
	}
	switch format {
	case FormatJSON:
		return e.ExportJSON(records, outputFile)
	case FormatJSONL:
		return e.ExportJSONL(records, outputFile)
	case FormatCSV:
		return e.ExportCSV(records, outputFile)
	}
	return fmt.Errorf("unsupported export format %q", format)
}

func (e *Exporter) ExportJSON(records []types.CrawlRecord, outputFile string) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if err := os.WriteFile(outputFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write JSON file: %w", err)
	}

	return nil
}

// ExportJSONL writes only the successfully extracted products, one per line
func (e *Exporter) ExportJSONL(records []types.CrawlRecord, outputFile string) error {
	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create JSONL file: %w", err)
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetEscapeHTML(false)
	for _, rec := range records {
		if rec.Product == nil || rec.Error != "" {
			continue
		}
		if err := enc.Encode(rec.Product); err != nil {
			return fmt.Errorf("failed to write JSONL record: %w", err)
		}
	}

	return nil
}

var csvHeaders = []string{
	"CrawlID", "URL", "StoreType", "Title", "Price", "Brand", "MallName",
	"Source", "ImageCount", "FirstImage", "Error", "ElapsedMS", "CrawledAt",
}

func (e *Exporter) ExportCSV(records []types.CrawlRecord, outputFile string) error {
	file, err := os.Create(outputFile)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %w", err)
	}
	defer file.Close()

	// BOM so spreadsheet tools read the hangul as UTF-8
	if _, err := file.WriteString("\ufeff"); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, rec := range records {
		var brand, mall, firstImage string
		if rec.Product != nil {
			brand = rec.Product.Brand
			mall = rec.Product.MallName
			if len(rec.Product.Images) > 0 {
				firstImage = rec.Product.Images[0]
			}
		}
		row := []string{
			rec.CrawlID,
			rec.URL,
			string(rec.StoreType),
			rec.Title,
			rec.Price,
			brand,
			mall,
			rec.Source.String(),
			strconv.Itoa(rec.ImageCount),
			firstImage,
			rec.Error,
			strconv.FormatInt(rec.Elapsed.Milliseconds(), 10),
			rec.CrawledAt.Format(time.RFC3339),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
