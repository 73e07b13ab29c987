// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package health

import (
	"context"
	"fmt"
	"sync"

	"grimm.is/shellwatch/internal/detector"
	"grimm.is/shellwatch/internal/source"
)

// SourceStatter is implemented by the capture and syscall sources.
type SourceStatter interface {
	Stats() source.Stats
}

// EngineStatter is implemented by the detection engine.
type EngineStatter interface {
	Stats() detector.Stats
}

// SourceCheck is unhealthy while the source is not attached and degraded when
// read errors grew since the previous check.
func SourceCheck(src SourceStatter) CheckFunc {
	var (
		mu         sync.Mutex
		lastErrors uint64
	)
	return func(context.Context) Check {
		st := src.Stats()
		mu.Lock()
		newErrors := st.Errors - lastErrors
		lastErrors = st.Errors
		mu.Unlock()

		switch {
		case !st.Running:
			return Check{Status: StatusUnhealthy, Message: "not attached"}
		case newErrors > 0:
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("%d read errors since last check", newErrors)}
		default:
			return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d records read", st.Read)}
		}
	}
}

// DropCheck is degraded when the engine dropped events since the previous
// check, which means the alert pipeline is not keeping up.
func DropCheck(engine EngineStatter) CheckFunc {
	var (
		mu          sync.Mutex
		lastDropped uint64
	)
	return func(context.Context) Check {
		st := engine.Stats()
		mu.Lock()
		newDrops := st.Dropped - lastDropped
		lastDropped = st.Dropped
		mu.Unlock()

		if newDrops > 0 {
			return Check{Status: StatusDegraded, Message: fmt.Sprintf("%d events dropped since last check", newDrops)}
		}
		return Check{Status: StatusHealthy, Message: fmt.Sprintf("%d tracked of %d", st.Tracker.Entries, st.Tracker.Capacity)}
	}
}
