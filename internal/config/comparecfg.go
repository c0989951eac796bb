package config

import (
	"strconv"
	"strings"
)

// ParseCompareCfg parses the flat key=value dialect used by compare.cfg
// files: one pair per line, '#' comments and blank lines ignored, keys
// case-insensitive, values taken verbatim after the first '='.
func ParseCompareCfg(content string) map[string]string {
	values := make(map[string]string)
	for _, raw := range strings.Split(content, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}
		values[strings.ToLower(strings.TrimSpace(key))] = strings.TrimSpace(value)
	}
	return values
}

func positiveInt(value, name string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, invalidValueError(name, value, "an integer")
	}
	if n <= 0 {
		return 0, invalidValueError(name, value, "> 0")
	}
	return n, nil
}

// thresholdValue parses a threshold, mapping 0 to nil (unset) so the
// environment default can never fail a run.
func thresholdValue(value, name string) (*float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return nil, invalidValueError(name, value, "numeric")
	}
	if f == 0 {
		return nil, nil
	}
	return &f, nil
}
