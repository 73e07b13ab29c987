// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"grimm.is/shellwatch/internal/event"
	"grimm.is/shellwatch/internal/logging"
	"grimm.is/shellwatch/internal/validation"
)

// ValidationError is a single invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

func (e *ValidationErrors) add(field, format string, args ...any) {
	*e = append(*e, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
}

// Validate checks a config that has had defaults applied.
func (c *Config) Validate() ValidationErrors {
	var errs ValidationErrors

	if c.Interface != "" {
		if err := validation.ValidateInterfaceName(c.Interface); err != nil {
			errs.add("interface", "%v", err)
		}
	}

	if c.Log != nil {
		if _, err := logging.ParseLevel(c.Log.Level); err != nil {
			errs.add("log.level", "%v", err)
		}
		if err := validation.ValidateAllowlist(c.Log.Format, []string{"auto", "json", "text"}); err != nil {
			errs.add("log.format", "%v", err)
		}
		if sl := c.Log.Syslog; sl != nil {
			if sl.Host == "" {
				errs.add("log.syslog.host", "required")
			}
			if sl.Port != 0 {
				if err := validation.ValidatePortNumber(sl.Port); err != nil {
					errs.add("log.syslog.port", "%v", err)
				}
			}
			if sl.Protocol != "" {
				if err := validation.ValidateAllowlist(sl.Protocol, []string{"udp", "tcp"}); err != nil {
					errs.add("log.syslog.protocol", "%v", err)
				}
			}
			if sl.Facility != nil && (*sl.Facility < 0 || *sl.Facility > 23) {
				errs.add("log.syslog.facility", "out of range 0-23, got %d", *sl.Facility)
			}
		}
	}

	if d := c.Detector; d != nil {
		if d.OutputBuffer <= 0 {
			errs.add("detector.output_buffer", "must be positive, got %d", d.OutputBuffer)
		}
		if len(d.SuspiciousPorts) > MaxSuspiciousPorts {
			errs.add("detector.suspicious_ports", "at most %d ports allowed, got %d", MaxSuspiciousPorts, len(d.SuspiciousPorts))
		}
		seen := make(map[int]bool, len(d.SuspiciousPorts))
		for _, p := range d.SuspiciousPorts {
			if err := validation.ValidatePortNumber(p); err != nil {
				errs.add("detector.suspicious_ports", "%v", err)
				continue
			}
			if seen[p] {
				errs.add("detector.suspicious_ports", "duplicate port %d", p)
			}
			seen[p] = true
		}
	}

	if t := c.Tracker; t != nil {
		if t.Capacity <= 0 {
			errs.add("tracker.capacity", "must be positive, got %d", t.Capacity)
		}
		if t.Shards < 1 || (t.Capacity > 0 && t.Shards > t.Capacity) {
			errs.add("tracker.shards", "must be between 1 and capacity, got %d", t.Shards)
		}
	}

	if s := c.Syscalls; s != nil {
		if s.Object != "" {
			if err := validation.ValidateFilePath(s.Object); err != nil {
				errs.add("syscalls.object", "%v", err)
			}
		}
		if s.ExecHook != ExecHookExecve && s.ExecHook != ExecHookSchedExec {
			errs.add("syscalls.exec_hook", "must be %q or %q, got %q", ExecHookExecve, ExecHookSchedExec, s.ExecHook)
		}
	}

	if sc := c.Scanner; sc.IsEnabled() {
		if d, err := time.ParseDuration(sc.Interval); err != nil || d < time.Second {
			errs.add("scanner.interval", "must be a duration of at least 1s, got %q", sc.Interval)
		}
	}

	if a := c.API; a.IsEnabled() {
		if _, _, err := net.SplitHostPort(a.Listen); err != nil {
			errs.add("api.listen", "invalid address %q: %v", a.Listen, err)
		}
	}

	if al := c.Alerting; al != nil {
		if al.History <= 0 {
			errs.add("alerting.history", "must be positive, got %d", al.History)
		}
		if al.Database != "" {
			if err := validation.ValidateFilePath(al.Database); err != nil {
				errs.add("alerting.database", "%v", err)
			}
		}
		if al.Retention != "" {
			if d, err := time.ParseDuration(al.Retention); err != nil || d <= 0 {
				errs.add("alerting.retention", "invalid duration %q", al.Retention)
			} else if al.Database == "" {
				errs.add("alerting.retention", "requires alerting.database")
			}
		}
		names := make(map[string]bool, len(al.Channels))
		for _, ch := range al.Channels {
			errs = append(errs, ch.validate()...)
			if names[ch.Name] {
				errs.add(fmt.Sprintf("alerting.channel.%s", ch.Name), "duplicate channel name")
			}
			names[ch.Name] = true
		}
	}

	return errs
}

func (ch ChannelConfig) validate() ValidationErrors {
	var errs ValidationErrors
	prefix := fmt.Sprintf("alerting.channel.%s", ch.Name)

	if err := validation.ValidateIdentifier(ch.Name); err != nil {
		errs.add("alerting.channel", "invalid name: %v", err)
	}

	switch ch.Type {
	case "webhook":
		u, err := url.Parse(ch.URL)
		if ch.URL == "" || err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			errs.add(prefix+".url", "webhook requires an http or https url, got %q", ch.URL)
		}
	default:
		errs.add(prefix+".type", "unsupported channel type %q", ch.Type)
	}

	if _, err := event.ParseSeverity(ch.MinSeverity); err != nil {
		errs.add(prefix+".min_severity", "%v", err)
	}

	if ch.Cooldown != "" {
		if d, err := time.ParseDuration(ch.Cooldown); err != nil || d < 0 {
			errs.add(prefix+".cooldown", "invalid duration %q", ch.Cooldown)
		}
	}

	return errs
}
