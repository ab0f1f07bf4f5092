package vocabulary

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/benvon/fictag/internal/models"
)

// DefaultCSVPath is the reference data file read when no path is configured.
const DefaultCSVPath = "tagsEdited2021.csv"

// CSVSource reads the vocabulary from a file of category,name,uses rows.
// A header row is skipped when its uses column is not a number.
type CSVSource struct {
	path string
}

// NewCSVSource creates a source backed by the file at path.
func NewCSVSource(path string) *CSVSource {
	if path == "" {
		path = DefaultCSVPath
	}
	return &CSVSource{path: path}
}

// Path returns the file the source reads.
func (s *CSVSource) Path() string {
	return s.path
}

// Load reads and parses the file.
func (s *CSVSource) Load(ctx context.Context) ([]models.VocabularyEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open vocabulary file: %w", err)
	}
	defer f.Close()

	entries, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse vocabulary file %s: %w", s.path, err)
	}
	return entries, nil
}

// ParseCSV parses category,name,uses rows.
func ParseCSV(r io.Reader) ([]models.VocabularyEntry, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var entries []models.VocabularyEntry
	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 3 {
			return nil, fmt.Errorf("row %d: expected 3 columns, got %d", row, len(record))
		}
		category := strings.TrimSpace(record[0])
		name := strings.TrimSpace(record[1])
		uses, convErr := strconv.Atoi(strings.TrimSpace(record[2]))
		if convErr != nil {
			if row == 1 {
				continue
			}
			return nil, fmt.Errorf("row %d: invalid uses %q", row, record[2])
		}
		if category == "" || name == "" {
			return nil, fmt.Errorf("row %d: category and name are required", row)
		}
		entries = append(entries, models.VocabularyEntry{Category: category, Name: name, Uses: uses})
	}
	return entries, nil
}

// FormatListing serializes entries as CSV lines with a header, in the order given.
func FormatListing(entries []models.VocabularyEntry) string {
	var sb strings.Builder
	w := csv.NewWriter(&sb)
	_ = w.Write([]string{"category", "name", "uses"})
	for _, e := range entries {
		_ = w.Write([]string{e.Category, e.Name, strconv.Itoa(e.Uses)})
	}
	w.Flush()
	return sb.String()
}
