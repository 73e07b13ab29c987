// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"grimm.is/shellwatch/internal/errors"
)

// LoadFile reads, decodes, defaults and validates a config file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Attr(errors.Wrap(err, errors.KindNotFound, "config file not found"), "path", path)
		}
		return nil, errors.Attr(errors.Wrap(err, errors.KindInternal, "failed to read config file"), "path", path)
	}
	return LoadBytes(path, data)
}

// LoadBytes decodes HCL (or JSON when name ends in .json), applies defaults
// and validates the result.
func LoadBytes(name string, data []byte) (*Config, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".hcl", ".json":
	default:
		name += ".hcl"
	}

	var cfg Config
	if err := hclsimple.Decode(name, data, evalContext(), &cfg); err != nil {
		return nil, errors.Wrap(err, errors.KindValidation, "failed to decode config")
	}

	cfg.ApplyDefaults()
	if errs := cfg.Validate(); errs.HasErrors() {
		return nil, errors.Attr(
			errors.Wrap(errs, errors.KindValidation, "invalid config"),
			"field", errs[0].Field)
	}
	return &cfg, nil
}
