// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"encoding/json"
	"fmt"
	"io"

	"grimm.is/shellwatch/internal/config"
)

// runValidate prints the effective config and its changes from defaults.
func runValidate(path string, w io.Writer) error {
	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s\n\n", out)

	diff := config.Diff(config.DefaultConfig(), cfg, "defaults", "effective")
	if diff == "" {
		fmt.Fprintln(w, "No changes from defaults.")
		return nil
	}
	fmt.Fprintf(w, "Changes from defaults:\n%s", diff)
	return nil
}
