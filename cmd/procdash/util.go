package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/loykin/procdash"
	"gopkg.in/yaml.v3"
)

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func printYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

// printOutput renders v as json or yaml; ok is false for any other format.
func printOutput(w io.Writer, format string, v any) (ok bool, err error) {
	switch strings.ToLower(format) {
	case "json":
		return true, printJSON(w, v)
	case "yaml", "yml":
		return true, printYAML(w, v)
	default:
		return false, nil
	}
}

func printEntries(w io.Writer, entries []procdash.Entry) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tPID\tUPTIME\tPATH\tLAST ERROR")
	for _, e := range entries {
		pid, uptime := "-", "-"
		if e.Running() {
			pid = fmt.Sprint(e.PID)
			uptime = time.Since(e.StartedAt).Truncate(time.Second).String()
		}
		path := e.Path
		if path == "" {
			path = "(not set)"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n", e.ID, e.Name, e.Status, pid, uptime, path, dash(e.LastError))
	}
	return tw.Flush()
}

func formatEvent(ev procdash.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (%s) %s: %s", ev.At.Format("15:04:05"), ev.Name, ev.ID, ev.Status, ev.Reason)
	if ev.PID != 0 {
		fmt.Fprintf(&b, " pid=%d", ev.PID)
	}
	if ev.Err != nil {
		fmt.Fprintf(&b, " error=%q", ev.Err.Error())
	}
	return b.String()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
