package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/ymiyake/contractintake/form"
)

// csvMapping is the on-disk layout description for the CSV export:
// the ordered column headers and the field-to-header assignment.
type csvMapping struct {
	Headers []string          `yaml:"headers"`
	Fields  map[string]string `yaml:"fields"`
}

func loadCSVMapping(path string) (*csvMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading csv mapping: %w", err)
	}
	var m csvMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing csv mapping: %w", err)
	}
	if len(m.Headers) == 0 {
		return nil, fmt.Errorf("csv mapping %s: headers が定義されていません", path)
	}
	return &m, nil
}

// WriteCSV writes the record as a single-row CSV under outDir and returns
// the output path. The file starts with a UTF-8 BOM so Excel opens it with
// the right encoding. Columns without a mapped field stay empty.
func WriteCSV(rec *form.Record, mappingPath, outDir string) (string, error) {
	if err := Gate(rec); err != nil {
		return "", err
	}
	m, err := loadCSVMapping(mappingPath)
	if err != nil {
		return "", err
	}

	row := make(map[string]string, len(m.Headers))
	for field, header := range m.Fields {
		if form.Lookup(field) == nil || rec.IsEmpty(field) {
			continue
		}
		row[header] = cellValue(rec, field)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	outPath := filepath.Join(outDir, timestampName(".csv"))

	f, err := os.Create(outPath)
	if err != nil {
		return "", fmt.Errorf("creating csv: %w", err)
	}
	defer f.Close()

	if _, err := f.Write([]byte{0xef, 0xbb, 0xbf}); err != nil {
		return "", fmt.Errorf("writing BOM: %w", err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(m.Headers); err != nil {
		return "", fmt.Errorf("writing header row: %w", err)
	}
	values := make([]string, len(m.Headers))
	for i, h := range m.Headers {
		values[i] = row[h]
	}
	if err := w.Write(values); err != nil {
		return "", fmt.Errorf("writing data row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("flushing csv: %w", err)
	}
	return outPath, nil
}
