// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package main

import (
	"encoding/json"
	"flag"
	"io"

	"grimm.is/shellwatch/internal/errors"
	"grimm.is/shellwatch/internal/event"
	"grimm.is/shellwatch/internal/store"
)

// runHistory prints persisted alerts as JSON lines, newest first.
func runHistory(path string, args []string, w io.Writer) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "Maximum number of alerts")
	typ := fs.String("type", "", "Only alerts of this type")
	if err := fs.Parse(args); err != nil {
		return errors.Wrap(err, errors.KindValidation, "invalid history flags")
	}
	if *limit <= 0 {
		return errors.Attr(errors.New(errors.KindValidation, "limit must be positive"), "field", "limit")
	}
	if *typ != "" {
		if _, err := event.ParseType(*typ); err != nil {
			return errors.Attr(errors.Wrap(err, errors.KindValidation, "invalid alert type"), "field", "type")
		}
	}

	cfg, err := loadConfig(path)
	if err != nil {
		return err
	}
	if cfg.Alerting.Database == "" {
		return errors.Attr(errors.New(errors.KindValidation, "alert persistence is not configured"), "field", "alerting.database")
	}

	s, err := store.Open(cfg.Alerting.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	alerts, err := s.Recent(*limit, *typ)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	for _, a := range alerts {
		if err := enc.Encode(a); err != nil {
			return err
		}
	}
	return nil
}
