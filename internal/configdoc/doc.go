// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package configdoc builds reference documentation for the agent's HCL
// configuration by reading the hcl-tagged structs in internal/config.
//
// Field doc comments may carry annotations:
//
//	// @default: info
//	// @enum: debug, info, warn, error
//	// @example: 168h
//	// @min: 1
//	// @max: 65535
package configdoc
