// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package source

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/shellwatch/internal/classify"
	"grimm.is/shellwatch/internal/errors"
)

func encodeRecord(kind RecordKind, pid uint32, comm string) []byte {
	b := make([]byte, SyscallRecordSize)
	binary.NativeEndian.PutUint32(b[0:4], uint32(kind))
	binary.NativeEndian.PutUint32(b[4:8], pid)
	copy(b[8:], comm)
	return b
}

type recorder struct {
	execs    []uint32
	comms    []string
	sockets  []uint32
	connects []uint32
}

func (r *recorder) HandleExec(pid uint32, comm classify.ProcessName) {
	r.execs = append(r.execs, pid)
	r.comms = append(r.comms, comm.String())
}
func (r *recorder) HandleSocket(pid uint32)  { r.sockets = append(r.sockets, pid) }
func (r *recorder) HandleConnect(pid uint32) { r.connects = append(r.connects, pid) }

func TestDecodeSyscallRecord(t *testing.T) {
	rec, err := DecodeSyscallRecord(encodeRecord(RecordExec, 4242, "nc"))
	require.NoError(t, err)
	assert.Equal(t, RecordExec, rec.Kind)
	assert.Equal(t, uint32(4242), rec.PID)
	assert.Equal(t, "nc", rec.Comm.String())
	assert.True(t, classify.IsSuspiciousProcess(rec.Comm))
}

func TestDecodeSyscallRecord_TrailingBytes(t *testing.T) {
	b := append(encodeRecord(RecordSocket, 1, ""), 0xff, 0xff, 0xff, 0xff)
	rec, err := DecodeSyscallRecord(b)
	require.NoError(t, err)
	assert.Equal(t, RecordSocket, rec.Kind)
}

func TestDecodeSyscallRecord_Short(t *testing.T) {
	full := encodeRecord(RecordConnect, 9, "curl")
	for n := 0; n < SyscallRecordSize; n++ {
		_, err := DecodeSyscallRecord(full[:n])
		require.Error(t, err, "len %d", n)
		assert.True(t, errors.IsKind(err, errors.KindMalformed))
	}
}

func TestDispatch(t *testing.T) {
	var r recorder
	kinds := []RecordKind{RecordExec, RecordSocket, RecordConnect, 99}
	for i, k := range kinds {
		rec, err := DecodeSyscallRecord(encodeRecord(k, uint32(i+1), "bash"))
		require.NoError(t, err)
		assert.Equal(t, k != 99, Dispatch(rec, &r))
	}

	assert.Equal(t, []uint32{1}, r.execs)
	assert.Equal(t, []string{"bash"}, r.comms)
	assert.Equal(t, []uint32{2}, r.sockets)
	assert.Equal(t, []uint32{3}, r.connects)
}

func TestRecordKindString(t *testing.T) {
	assert.Equal(t, "exec", RecordExec.String())
	assert.Equal(t, "socket", RecordSocket.String())
	assert.Equal(t, "connect", RecordConnect.String())
	assert.Equal(t, "unknown", RecordKind(0).String())
}
