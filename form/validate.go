package form

// Validate returns the required fields that are still empty.
// A field counts as missing when it is nil, the empty string, or zero.
func Validate(r *Record) (ok bool, missing []string) {
	for _, name := range RequiredFields() {
		if r.IsEmpty(name) {
			missing = append(missing, name)
		}
	}
	return len(missing) == 0, missing
}

// MissingLabels maps missing field names to their Japanese labels,
// preserving order. Unknown names pass through unchanged.
func MissingLabels(missing []string) []string {
	labels := Labels()
	out := make([]string, 0, len(missing))
	for _, name := range missing {
		if l, ok := labels[name]; ok {
			out = append(out, l)
			continue
		}
		out = append(out, name)
	}
	return out
}
