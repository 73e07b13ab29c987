// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package classify

// ProcessNameLen matches the kernel's TASK_COMM_LEN.
const ProcessNameLen = 16

// ProcessName is a NUL-terminated or NUL-padded task name.
type ProcessName [ProcessNameLen]byte

// NewProcessName truncates s to 15 bytes and NUL-pads the rest.
func NewProcessName(s string) ProcessName {
	var n ProcessName
	copy(n[:ProcessNameLen-1], s)
	return n
}

// String returns the name up to the first NUL.
func (n ProcessName) String() string {
	for i, b := range n {
		if b == 0 {
			return string(n[:i])
		}
	}
	return string(n[:])
}

// Equal compares two names up to the first NUL or the full width.
func (n ProcessName) Equal(other ProcessName) bool {
	for i := 0; i < ProcessNameLen; i++ {
		if n[i] != other[i] {
			return false
		}
		if n[i] == 0 {
			return true
		}
	}
	return true
}

// denylist holds interpreter and network tool names commonly used to spawn or
// carry a reverse shell. Matching is exact, so "bash-wrapper" is not listed.
var denylist = [...]ProcessName{
	NewProcessName("nc"),
	NewProcessName("netcat"),
	NewProcessName("bash"),
	NewProcessName("sh"),
	NewProcessName("python"),
	NewProcessName("perl"),
	NewProcessName("ruby"),
	NewProcessName("php"),
	NewProcessName("wget"),
	NewProcessName("curl"),
	NewProcessName("ftp"),
	NewProcessName("telnet"),
	NewProcessName("ssh"),
	NewProcessName("scp"),
	NewProcessName("rsync"),
}

// IsSuspiciousProcess reports whether comm exactly matches a denylisted name.
// Case-sensitive.
func IsSuspiciousProcess(comm ProcessName) bool {
	for i := range denylist {
		if comm.Equal(denylist[i]) {
			return true
		}
	}
	return false
}

// Denylist returns a copy of the denylisted names.
func Denylist() []string {
	out := make([]string, 0, len(denylist))
	for _, n := range denylist {
		out = append(out, n.String())
	}
	return out
}
