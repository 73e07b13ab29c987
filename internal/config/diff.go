// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"encoding/json"

	"github.com/pmezard/go-difflib/difflib"
)

// Diff renders a unified diff between the JSON forms of two configs.
// It returns an empty string when they are equal.
func Diff(from, to *Config, fromName, toName string) string {
	a, _ := json.MarshalIndent(from, "", "  ")
	b, _ := json.MarshalIndent(to, "", "  ")

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(string(a)),
		B:        difflib.SplitLines(string(b)),
		FromFile: fromName,
		ToFile:   toName,
		Context:  3,
	}
	text, _ := difflib.GetUnifiedDiffString(diff)
	return text
}
