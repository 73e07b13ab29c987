// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package clock

import "time"

// processStart carries Go's monotonic reading; time.Since uses it.
var processStart = time.Now()

func fallbackMonotonic() uint64 {
	return uint64(time.Since(processStart))
}
