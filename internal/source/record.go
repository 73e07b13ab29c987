// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package source

import (
	"encoding/binary"

	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/metrics"
)

// RecordKind identifies the syscall that produced a record.
type RecordKind uint32

const (
	RecordExec    RecordKind = 1
	RecordSocket  RecordKind = 2
	RecordConnect RecordKind = 3
)

// String returns the metrics label for the kind.
func (k RecordKind) String() string {
	switch k {
	case RecordExec:
		return metrics.SyscallExec
	case RecordSocket:
		return metrics.SyscallSocket
	case RecordConnect:
		return metrics.SyscallConnect
	default:
		return metrics.SyscallUnknown
	}
}

// SyscallRecordSize is the size of struct syscall_record in syscall_events.c.
const SyscallRecordSize = 4 + 4 + classify.ProcessNameLen

// SyscallRecord is one ring buffer sample.
type SyscallRecord struct {
	Kind RecordKind
	PID  uint32
	Comm classify.ProcessName
}

// DecodeSyscallRecord decodes a ring buffer sample in host byte order.
// Trailing bytes beyond the record are ignored.
func DecodeSyscallRecord(b []byte) (SyscallRecord, error) {
	if len(b) < SyscallRecordSize {
		return SyscallRecord{}, errors.Attr(
			errors.Errorf(errors.KindMalformed, "syscall record too short: %d bytes", len(b)),
			"want", SyscallRecordSize)
	}

	var rec SyscallRecord
	rec.Kind = RecordKind(binary.NativeEndian.Uint32(b[0:4]))
	rec.PID = binary.NativeEndian.Uint32(b[4:8])
	copy(rec.Comm[:], b[8:8+classify.ProcessNameLen])
	return rec, nil
}

// Dispatch routes a decoded record to h. It reports false for unknown kinds.
func Dispatch(rec SyscallRecord, h SyscallHandler) bool {
	switch rec.Kind {
	case RecordExec:
		h.HandleExec(rec.PID, rec.Comm)
	case RecordSocket:
		h.HandleSocket(rec.PID)
	case RecordConnect:
		h.HandleConnect(rec.PID)
	default:
		return false
	}
	return true
}
