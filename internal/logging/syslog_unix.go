// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

//go:build !windows && !plan9
// +build !windows,!plan9

package logging

import (
	"io"
	"log/syslog"
)

// NewSyslogWriter dials the collector. Each Write is sent as one message at
// info priority.
func NewSyslogWriter(cfg SyslogConfig) (io.WriteCloser, error) {
	cfg, err := cfg.normalize()
	if err != nil {
		return nil, err
	}
	prio := syslog.Priority(cfg.Facility<<3) | syslog.LOG_INFO
	return syslog.Dial(cfg.Protocol, cfg.addr(), prio, cfg.Tag)
}
