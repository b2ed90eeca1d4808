package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/loykin/procdash"
	"github.com/spf13/cobra"
)

var errQuit = errors.New("quit")

// syncWriter serialises command output with the asynchronous event printer.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// console is the interactive front end: one cobra command tree per input line.
type console struct {
	mgr    *procdash.Manager
	out    io.Writer
	prompt string
}

func newConsole(mgr *procdash.Manager, out io.Writer, prompt string) *console {
	return &console{mgr: mgr, out: &syncWriter{w: out}, prompt: prompt}
}

// run reads commands from in until EOF, quit, or ctx is done. Status events
// are printed as they arrive.
func (c *console) run(ctx context.Context, in io.Reader) error {
	events, cancel := c.mgr.Subscribe(0)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			_, _ = fmt.Fprintln(c.out, formatEvent(ev))
		}
	}()
	defer func() {
		cancel()
		<-printed
	}()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		c.showPrompt()
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if err := c.execLine(line); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				_, _ = fmt.Fprintln(c.out, "error:", err)
			}
		}
	}
}

func (c *console) showPrompt() {
	if c.prompt != "" {
		_, _ = fmt.Fprint(c.out, c.prompt)
	}
}

// execLine runs one console line. Blank lines and # comments are ignored.
func (c *console) execLine(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := splitArgs(line)
	if err != nil {
		return err
	}
	root := c.newRoot()
	root.SetArgs(args)
	return root.Execute()
}

func (c *console) newRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "procdash>",
		Short:         "Interactive supervisor console",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.SetOut(c.out)
	root.SetErr(c.out)

	var lsFlags ListFlags
	ls := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List entries",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries := c.mgr.List()
			if ok, err := printOutput(c.out, lsFlags.Output, entries); ok {
				return err
			}
			return printEntries(c.out, entries)
		},
	}
	ls.Flags().StringVarP(&lsFlags.Output, "output", "o", "table", "output format: table, json or yaml")

	var startAll, stopAll bool
	start := &cobra.Command{
		Use:   "start <id|name>...",
		Short: "Start entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.each(args, startAll, c.mgr.Start)
		},
	}
	start.Flags().BoolVar(&startAll, "all", false, "start every entry")
	stop := &cobra.Command{
		Use:   "stop <id|name>...",
		Short: "Stop entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.each(args, stopAll, c.mgr.Stop)
		},
	}
	stop.Flags().BoolVar(&stopAll, "all", false, "stop every entry")

	root.AddCommand(
		&cobra.Command{
			Use:   "add [name]",
			Short: "Add an entry; a blank name becomes \"Service <id>\"",
			RunE: func(cmd *cobra.Command, args []string) error {
				id := c.mgr.Add(strings.Join(args, " "))
				e, _ := c.mgr.Get(id)
				_, err := fmt.Fprintf(c.out, "added %s (%s)\n", e.Name, id)
				return err
			},
		},
		&cobra.Command{
			Use:     "rm <id|name>",
			Aliases: []string{"remove"},
			Short:   "Stop and remove an entry",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := c.mgr.Resolve(args[0])
				if err != nil {
					return err
				}
				return c.mgr.Remove(id)
			},
		},
		&cobra.Command{
			Use:   "rename <id|name> <new name>",
			Short: "Rename an entry",
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := c.mgr.Resolve(args[0])
				if err != nil {
					return err
				}
				return c.mgr.Rename(id, strings.Join(args[1:], " "))
			},
		},
		&cobra.Command{
			Use:   "path <id|name> <executable>",
			Short: "Set the executable path of an entry",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := c.mgr.Resolve(args[0])
				if err != nil {
					return err
				}
				return c.mgr.SetPath(id, args[1])
			},
		},
		start,
		stop,
		ls,
		&cobra.Command{
			Use:     "quit",
			Aliases: []string{"exit"},
			Short:   "Leave the console",
			RunE: func(cmd *cobra.Command, args []string) error {
				return errQuit
			},
		},
	)
	return root
}

// each applies fn to every referenced entry (or all entries) and joins the failures.
func (c *console) each(refs []string, all bool, fn func(procdash.ID) error) error {
	var ids []procdash.ID
	if all {
		for _, e := range c.mgr.List() {
			ids = append(ids, e.ID)
		}
	} else {
		if len(refs) == 0 {
			return errors.New("name an entry or use --all")
		}
		for _, r := range refs {
			id, err := c.mgr.Resolve(r)
			if err != nil {
				return err
			}
			ids = append(ids, id)
		}
	}
	var errs []error
	for _, id := range ids {
		if err := fn(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// splitArgs splits a console line into words. Single and double quotes group
// words; a backslash escapes the next character outside single quotes.
func splitArgs(line string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inWord = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inWord = true
		case r == ' ' || r == '\t':
			if inWord {
				args = append(args, cur.String())
				cur.Reset()
				inWord = false
			}
		default:
			cur.WriteRune(r)
			inWord = true
		}
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, errors.New("trailing backslash")
	}
	if inWord {
		args = append(args, cur.String())
	}
	return args, nil
}
