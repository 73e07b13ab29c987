// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package logging

import (
	"fmt"
	"net"
	"strconv"
)

// SyslogConfig forwards log records to a remote syslog collector.
type SyslogConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Protocol string // udp or tcp
	Tag      string
	Facility int // syslog facility code, 1 is user
}

// DefaultSyslogConfig returns a disabled config with the standard port.
func DefaultSyslogConfig() SyslogConfig {
	return SyslogConfig{
		Port:     514,
		Protocol: "udp",
		Tag:      "shellwatch",
		Facility: 1,
	}
}

// normalize fills unset fields from DefaultSyslogConfig and checks the rest.
func (c SyslogConfig) normalize() (SyslogConfig, error) {
	def := DefaultSyslogConfig()
	if c.Host == "" {
		return c, fmt.Errorf("syslog host is required")
	}
	if c.Port == 0 {
		c.Port = def.Port
	}
	if c.Protocol == "" {
		c.Protocol = def.Protocol
	}
	if c.Tag == "" {
		c.Tag = def.Tag
	}
	if c.Port < 1 || c.Port > 65535 {
		return c, fmt.Errorf("syslog port %d out of range", c.Port)
	}
	if c.Protocol != "udp" && c.Protocol != "tcp" {
		return c, fmt.Errorf("syslog protocol must be udp or tcp, got %q", c.Protocol)
	}
	if c.Facility < 0 || c.Facility > 23 {
		return c, fmt.Errorf("syslog facility %d out of range 0-23", c.Facility)
	}
	return c, nil
}

func (c SyslogConfig) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
