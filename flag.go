package main

import (
	"fmt"
	"log/slog"
	"strings"
)

// logLevelFlag is a flag for setting the log level by name.
type logLevelFlag struct {
	value slog.Level
}

func (l logLevelFlag) String() string {
	return l.value.String()
}

func (l *logLevelFlag) Set(value string) error {
	m := map[string]slog.Level{"DEBUG": slog.LevelDebug, "INFO": slog.LevelInfo, "WARN": slog.LevelWarn, "ERROR": slog.LevelError}
	v, ok := m[strings.ToUpper(value)]
	if !ok {
		return fmt.Errorf("unknown log level: %s", value)
	}
	l.value = v
	return nil
}

// accountInfoFlag is a flag for selecting account data to show.
type accountInfoFlag struct {
	value string
}

var accountInfoNames = []string{"inbox", "friends", "guild", "guildlog"}

func (a accountInfoFlag) String() string {
	return a.value
}

func (a *accountInfoFlag) Set(value string) error {
	v := strings.ToLower(value)
	for _, n := range accountInfoNames {
		if n == v {
			a.value = v
			return nil
		}
	}
	return fmt.Errorf("must be one of: %s", strings.Join(accountInfoNames, ", "))
}
