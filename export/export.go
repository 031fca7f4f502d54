// Package export renders a completed contract request into its delivery
// formats: a single-row CSV, a filled Excel template, and a fixed plaintext
// layout. Every writer runs the required-field gate first; an incomplete
// record is never exported.
package export

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ymiyake/contractintake/form"
)

// ErrMissingRequired is returned when a record fails the export gate. The
// wrapped message lists the missing fields by their Japanese labels.
var ErrMissingRequired = errors.New("export: required fields missing")

// Gate validates the record for export. The returned error names the missing
// fields by label, ready for direct display.
func Gate(rec *form.Record) error {
	ok, missing := form.Validate(rec)
	if ok {
		return nil
	}
	labels := form.MissingLabels(missing)
	return fmt.Errorf("%w: %s", ErrMissingRequired, strings.Join(labels, "、"))
}

// timestampName builds the conventional output filename, e.g.
// contract_20260830_153000.csv.
func timestampName(ext string) string {
	return "contract_" + time.Now().Format("20060102_150405") + ext
}

// cellValue renders one field for a spreadsheet cell. Multi-choice lists
// are joined with 、 after dropping その他, whose free text travels in its
// own column. Dates use ISO form.
func cellValue(rec *form.Record, name string) string {
	def := form.Lookup(name)
	if def == nil {
		return ""
	}
	if def.Kind == form.KindMultiChoice {
		v, _ := rec.Get(name)
		items, _ := v.([]string)
		var kept []string
		for _, item := range items {
			if s := strings.TrimSpace(item); s != "" && s != "その他" {
				kept = append(kept, s)
			}
		}
		return strings.Join(kept, "、")
	}
	return rec.DisplayValue(name)
}
