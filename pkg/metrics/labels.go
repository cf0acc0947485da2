package metrics

// normalizeLabel keeps empty label values from collapsing into "".
func normalizeLabel(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}
