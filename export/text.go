package export

import (
	"strings"

	"github.com/ymiyake/contractintake/form"
)

// textLayout is the fixed field order of the plaintext rendering. The block
// form matches the paper form the reviewers paste into.
var textLayout = []string{
	form.FieldAffiliation,
	form.FieldTargetProduct,
	form.FieldActivityBackground,
	form.FieldCounterpartyRelationship,
	form.FieldActivityDetails,
}

// FormatText renders the record into 【label】 blocks. Empty fields keep
// their block with a blank body so the layout stays stable.
func FormatText(rec *form.Record) string {
	labels := form.Labels()
	var lines []string
	for _, field := range textLayout {
		lines = append(lines, "【"+labels[field]+"】")
		lines = append(lines, strings.TrimSpace(rec.DisplayValue(field)))
		lines = append(lines, "")
	}
	return strings.TrimRight(strings.Join(lines, "\n"), "\n") + "\n"
}
