package main

import "time"

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	LogLevel   string
}

// Flag structs decouple cobra from logic for testing.

type ListFlags struct {
	Output string // table, json or yaml
}

type TelemetryFlags struct {
	Count    int
	Interval time.Duration
	Top      int
	Output   string
}

type KillFlags struct {
	PID int32
}

type HistoryFlags struct {
	Limit  int
	Output string
}
