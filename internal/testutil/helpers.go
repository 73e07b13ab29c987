// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package testutil gates tests that need privileges or a prepared kernel.
package testutil

import (
	"os"
	"testing"
)

// KernelTestEnv names the compiled eBPF object used by kernel tests.
const KernelTestEnv = "SHELLWATCH_BPF_OBJECT"

// RequireRoot skips the test unless it runs as root.
func RequireRoot(t testing.TB) {
	t.Helper()
	if os.Geteuid() != 0 {
		t.Skip("Skipping test: requires root")
	}
}

// RequireKernel skips the test unless it runs as root and KernelTestEnv
// points at a compiled object. It returns the object path.
func RequireKernel(t testing.TB) string {
	t.Helper()
	RequireRoot(t)
	path := os.Getenv(KernelTestEnv)
	if path == "" {
		t.Skipf("Skipping test: requires %s", KernelTestEnv)
	}
	return path
}
