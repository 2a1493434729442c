// Package admin provides an interactive console for a stopped or running
// emulator. Commands reset and clear devices, feed command records to a
// drive, run its execution phase, toggle bus tracing and start or stop bus
// processing.
//
// The console reads lines through a [term.Terminal], so it works over any
// io.ReadWriter. [OpenConsole] puts the process terminal into raw mode for
// interactive use.
package admin

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/term"

	"github.com/ardnew/softgpib/emulator"
	"github.com/ardnew/softgpib/pkg"
)

// Prompt is the console prompt.
const Prompt = "gpib> "

// errQuit ends the console loop.
var errQuit = errors.New("quit")

type command struct {
	usage string
	help  string
	run   func(s *Shell, ctx context.Context, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"help":    {"help", "list commands", (*Shell).help},
		"status":  {"status", "show bus and device state", (*Shell).status},
		"devices": {"devices", "list configured devices", (*Shell).devices},
		"reset":   {"reset [name]", "power-on reset the bus or one device", (*Shell).reset},
		"clear":   {"clear", "device clear every device", (*Shell).clear},
		"command": {"command <name> [sec=XX] <hex>", "apply a command record", (*Shell).command},
		"execute": {"execute <name>", "run the pending execution phase", (*Shell).execute},
		"trace":   {"trace <file>|off", "mirror bus bytes to a file", (*Shell).traceCmd},
		"ppr":     {"ppr", "show the parallel poll response", (*Shell).ppr},
		"metrics": {"metrics", "show bus counters", (*Shell).metrics},
		"run":     {"run", "start bus processing", (*Shell).run},
		"stop":    {"stop", "stop bus processing", (*Shell).stop},
		"quit":    {"quit", "stop the bus and leave the console", (*Shell).quit},
	}
}

// Shell is an administration console bound to one emulator.
type Shell struct {
	emu   *emulator.Emulator
	term  *term.Terminal
	trace *os.File

	cancel context.CancelFunc
	done   chan error
}

// New returns a console for e that reads commands from and writes output
// to rw.
func New(e *emulator.Emulator, rw io.ReadWriter) *Shell {
	s := &Shell{emu: e, term: term.NewTerminal(rw, Prompt)}
	s.term.AutoCompleteCallback = complete
	return s
}

// complete expands a unique command prefix on tab.
func complete(line string, pos int, key rune) (string, int, bool) {
	if key != '\t' || strings.ContainsRune(line, ' ') {
		return "", 0, false
	}
	var match string
	for name := range commands {
		if strings.HasPrefix(name, line) {
			if match != "" {
				return "", 0, false
			}
			match = name
		}
	}
	if match == "" {
		return "", 0, false
	}
	return match + " ", len(match) + 1, true
}

// Run reads and executes commands until quit, end of input or ctx is
// cancelled. Bus processing started with run is stopped before Run
// returns.
func (s *Shell) Run(ctx context.Context) error {
	defer s.shutdown()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line, err := s.term.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		switch err := s.Exec(ctx, line); {
		case errors.Is(err, errQuit):
			return nil
		case err != nil:
			fmt.Fprintf(s.term, "error: %v\n", err)
		}
	}
}

// Exec runs one command line.
func (s *Shell) Exec(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	cmd, ok := commands[strings.ToLower(fields[0])]
	if !ok {
		return fmt.Errorf("unknown command %q: %w", fields[0], pkg.ErrInvalidParameter)
	}
	pkg.LogDebug(pkg.ComponentAdmin, "command", "line", line)
	return cmd.run(s, ctx, fields[1:])
}

func (s *Shell) help(_ context.Context, _ []string) error {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		c := commands[name]
		fmt.Fprintf(s.term, "  %-32s %s\n", c.usage, c.help)
	}
	return nil
}

func (s *Shell) status(_ context.Context, _ []string) error {
	return s.emu.WriteStatus(s.term)
}

func (s *Shell) devices(_ context.Context, _ []string) error {
	for _, d := range s.emu.Config().Devices {
		switch {
		case d.Kind.IsDrive():
			image := d.Image
			if image == "" {
				image = "(memory)"
			}
			fmt.Fprintf(s.term, "  %-8s %-7s addr=%-2d ppr=%d model=%s image=%s ro=%t\n",
				d.Name, d.Kind, d.Address, d.PPR, d.Model, image, d.ReadOnly)
		default:
			fmt.Fprintf(s.term, "  %-8s %-7s addr=%-2d dir=%s\n", d.Name, d.Kind, d.Address, d.Dir)
		}
	}
	return nil
}

func (s *Shell) reset(_ context.Context, args []string) error {
	name := ""
	if len(args) > 0 {
		name = args[0]
	}
	if err := s.emu.Reset(name); err != nil {
		return err
	}
	if name == "" {
		name = "bus"
	}
	fmt.Fprintf(s.term, "%s reset\n", name)
	return nil
}

func (s *Shell) clear(_ context.Context, _ []string) error {
	s.emu.Clear()
	fmt.Fprintln(s.term, "devices cleared")
	return nil
}

func (s *Shell) command(_ context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: %s: %w", commands["command"].usage, pkg.ErrInvalidParameter)
	}
	name, args := args[0], args[1:]
	var secondary uint8
	if v, ok := strings.CutPrefix(strings.ToLower(args[0]), "sec="); ok {
		n, err := strconv.ParseUint(v, 16, 8)
		if err != nil {
			return fmt.Errorf("secondary %q: %w", v, pkg.ErrInvalidParameter)
		}
		secondary = uint8(n)
		args = args[1:]
	}
	rec, err := hex.DecodeString(strings.Join(args, ""))
	if err != nil || len(rec) == 0 {
		return fmt.Errorf("record %q: %w", strings.Join(args, " "), pkg.ErrInvalidParameter)
	}
	desc, err := s.emu.Decode(name, secondary, rec)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.term, "%s: %s\n", name, desc)
	return nil
}

func (s *Shell) execute(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s: %w", commands["execute"].usage, pkg.ErrInvalidParameter)
	}
	st, err := s.emu.Execute(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.term, "%s: execute status %s\n", args[0], st)
	return nil
}

func (s *Shell) traceCmd(_ context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: %s: %w", commands["trace"].usage, pkg.ErrInvalidParameter)
	}
	if err := s.closeTrace(); err != nil {
		return err
	}
	if args[0] == "off" {
		fmt.Fprintln(s.term, "trace off")
		return nil
	}
	f, err := os.Create(args[0])
	if err != nil {
		return err
	}
	s.trace = f
	s.emu.SetTrace(f)
	fmt.Fprintf(s.term, "tracing to %s\n", f.Name())
	return nil
}

func (s *Shell) closeTrace() error {
	if s.trace == nil {
		return nil
	}
	s.emu.SetTrace(nil)
	err := s.trace.Close()
	s.trace = nil
	return err
}

func (s *Shell) ppr(_ context.Context, _ []string) error {
	v := s.emu.PollResponse()
	fmt.Fprintf(s.term, "ppr %02X (%08b)\n", v, v)
	return nil
}

func (s *Shell) metrics(_ context.Context, _ []string) error {
	return s.emu.Metrics().WriteSummary(s.term)
}

func (s *Shell) run(ctx context.Context, _ []string) error {
	if s.done != nil {
		return pkg.ErrAlreadyRunning
	}
	rctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan error, 1)
	go func() { s.done <- s.emu.Run(rctx) }()
	fmt.Fprintln(s.term, "bus running")
	return nil
}

func (s *Shell) stop(_ context.Context, _ []string) error {
	if s.done == nil {
		return pkg.ErrNotRunning
	}
	err := s.halt()
	fmt.Fprintln(s.term, "bus stopped")
	return err
}

// halt cancels bus processing and waits for it to end.
func (s *Shell) halt() error {
	s.cancel()
	err := <-s.done
	s.cancel, s.done = nil, nil
	return err
}

func (s *Shell) quit(_ context.Context, _ []string) error {
	return errQuit
}

func (s *Shell) shutdown() {
	if s.done != nil {
		if err := s.halt(); err != nil {
			pkg.LogWarn(pkg.ComponentAdmin, "bus stopped with error", "error", err)
		}
	}
	if err := s.closeTrace(); err != nil {
		pkg.LogWarn(pkg.ComponentAdmin, "close trace", "error", err)
	}
}

// OpenConsole puts standard input into raw mode and returns a ReadWriter
// over standard input and output. Call restore to return the terminal to
// its previous mode.
func OpenConsole() (rw io.ReadWriter, restore func() error, err error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, nil, fmt.Errorf("stdin is not a terminal: %w", pkg.ErrInvalidState)
	}
	old, err := term.MakeRaw(fd)
	if err != nil {
		return nil, nil, err
	}
	rw = struct {
		io.Reader
		io.Writer
	}{os.Stdin, os.Stdout}
	return rw, func() error { return term.Restore(fd, old) }, nil
}
