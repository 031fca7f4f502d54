package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"github.com/ymiyake/contractintake/form"
)

// excelField describes where one field lands in the workbook. A defined
// name is preferred; Cell is the direct fallback when the template carries
// no names (e.g. "Sheet1!B4").
type excelField struct {
	NamedRange string `yaml:"named_range"`
	Cell       string `yaml:"cell"`
	Format     string `yaml:"format"` // text (default, incl. date) or currency_jpy
}

type excelMapping struct {
	Fields map[string]excelField `yaml:"fields"`
}

func loadExcelMapping(path string) (*excelMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading excel mapping: %w", err)
	}
	var m excelMapping
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing excel mapping: %w", err)
	}
	if len(m.Fields) == 0 {
		return nil, fmt.Errorf("excel mapping %s: fields が定義されていません", path)
	}
	return &m, nil
}

// FillTemplate copies the Excel template, writes mapped fields into it, and
// saves the result under outDir with a timestamped name.
func FillTemplate(rec *form.Record, mappingPath, templatePath, outDir string) (string, error) {
	if err := Gate(rec); err != nil {
		return "", err
	}
	m, err := loadExcelMapping(mappingPath)
	if err != nil {
		return "", err
	}

	wb, err := excelize.OpenFile(templatePath)
	if err != nil {
		return "", fmt.Errorf("opening template: %w", err)
	}
	defer wb.Close()

	names := definedNameTargets(wb)
	defaultSheet := wb.GetSheetName(0)

	for field, cfg := range m.Fields {
		if form.Lookup(field) == nil || rec.IsEmpty(field) {
			continue
		}

		var sheet, cell string
		var ok bool
		if t, found := names[cfg.NamedRange]; found {
			sheet, cell, ok = t[0], t[1], true
		} else {
			sheet, cell, ok = splitCellRef(cfg.Cell, defaultSheet)
		}
		if !ok {
			continue
		}

		var value any
		switch cfg.Format {
		case "currency_jpy":
			value = rec.AmountJPY
		default:
			// "date" and unset both render as text; dates are already
			// ISO-formatted by DisplayValue.
			value = cellValue(rec, field)
		}
		if err := wb.SetCellValue(sheet, cell, value); err != nil {
			return "", fmt.Errorf("writing field %s: %w", field, err)
		}
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output dir: %w", err)
	}
	outPath := filepath.Join(outDir, timestampName(".xlsx"))
	if err := wb.SaveAs(outPath); err != nil {
		return "", fmt.Errorf("saving workbook: %w", err)
	}
	return outPath, nil
}

// definedNameTargets resolves every workbook-defined name to the top-left
// cell of its destination.
func definedNameTargets(wb *excelize.File) map[string][2]string {
	out := make(map[string][2]string)
	for _, dn := range wb.GetDefinedName() {
		if sheet, cell, ok := splitCellRef(dn.RefersTo, ""); ok {
			out[dn.Name] = [2]string{sheet, cell}
		}
	}
	return out
}

// splitCellRef parses "Sheet1!$B$2" or "Sheet1!B2:C3" into sheet and
// top-left cell. A bare cell ref uses fallbackSheet.
func splitCellRef(ref, fallbackSheet string) (string, string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", "", false
	}

	sheet := fallbackSheet
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		sheet = strings.Trim(ref[:i], "'")
		ref = ref[i+1:]
	}
	if sheet == "" {
		return "", "", false
	}

	// Ranges collapse to their top-left corner.
	if i := strings.Index(ref, ":"); i >= 0 {
		ref = ref[:i]
	}
	cell := strings.ReplaceAll(ref, "$", "")
	if cell == "" {
		return "", "", false
	}
	return sheet, cell, true
}
