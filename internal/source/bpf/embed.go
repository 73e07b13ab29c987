// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package bpf holds the syscall tracepoint programs and their compiled object.
package bpf

//go:generate go run github.com/cilium/ebpf/cmd/bpf2go@v0.16.0 -no-strip -target bpfel -go-package bpf SyscallEvents syscall_events.c -- -O2 -g -I.

import (
	"embed"
	"io/fs"

	"grimm.is/shellwatch/internal/errors"
)

// ObjectName is the file bpf2go writes for the little-endian target.
const ObjectName = "syscallevents_bpfel.o"

// files embeds every non-hidden file in the directory so a generated object
// is picked up without naming it in a pattern that fails when it is absent.
//
//go:embed *
var files embed.FS

// Object returns the embedded eBPF object. It fails with KindNotFound when the
// package was built without running go generate.
func Object() ([]byte, error) {
	return readObject(files, ObjectName)
}

func readObject(fsys fs.FS, name string) ([]byte, error) {
	data, err := fs.ReadFile(fsys, name)
	if err != nil {
		return nil, errors.Attr(
			errors.Wrap(err, errors.KindNotFound, "eBPF object not embedded, run go generate ./internal/source/bpf"),
			"object", name)
	}
	return data, nil
}
