// Package sh provides the interactive transmitter shell.
package sh

import (
	"bytes"
	"flag"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/rxlink.go/pkg/channels"
	"github.com/robotalks/rxlink.go/pkg/radio"
)

// Shell provides ishell backed interactive shell driving a Transmitter.
type Shell struct {
	Interactive bool

	Shell *ishell.Shell
	Tx    *radio.Transmitter
}

const shellKey = "$shell"

var (
	evalOnly bool

	commands = []*ishell.Cmd{
		&SetCmd,
		&CenterCmd,
		&ModelCmd,
		&RateCmd,
		&StopCmd,
		&StartCmd,
		&ModeCmd,
		&ShowCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
}

// New creates a new shell.
func New(tx *radio.Transmitter) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		Shell:       ishell.New(),
		Tx:          tx,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt("tx > ")
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// ParseValue parses a channel value, either raw (992) or as a pulse
// width in microseconds (1500us).
func ParseValue(s string) (uint16, error) {
	if us := strings.TrimSuffix(s, "us"); us != s {
		n, err := strconv.Atoi(us)
		if err != nil {
			return 0, fmt.Errorf("invalid pulse width %q", s)
		}
		return channels.FromMicroseconds(n), nil
	}
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid value %q", s)
	}
	return uint16(n), nil
}

// Set sets channels from args: CH VALUE [CH VALUE ...].
func (s *Shell) Set(args []string) error {
	if len(args) == 0 || len(args)%2 != 0 {
		return fmt.Errorf("expect CH VALUE pairs")
	}
	for i := 0; i < len(args); i += 2 {
		ch, err := strconv.Atoi(args[i])
		if err != nil {
			return fmt.Errorf("invalid channel %q", args[i])
		}
		v, err := ParseValue(args[i+1])
		if err != nil {
			return err
		}
		if err := s.Tx.Set(ch, v); err != nil {
			return err
		}
	}
	return nil
}

// Format prints the channel values.
func (s *Shell) Format() string {
	var w bytes.Buffer
	if !s.Tx.Running() {
		w.WriteString("(stopped) ")
	}
	for n, v := range s.Tx.Values() {
		if n > 0 {
			w.WriteByte(' ')
		}
		fmt.Fprintf(&w, "%d:%d", n, channels.ToMicroseconds(v))
	}
	return w.String()
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

func argsCmd(fn func(s *Shell, args []string) error) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if err := fn(ShellFrom(c), c.Args); err != nil {
			c.Err(err)
		}
	}
}

var (
	// SetCmd sets channel values.
	SetCmd = ishell.Cmd{
		Name:    "set",
		Aliases: []string{"s"},
		Help:    "CH VALUE [CH VALUE ...], VALUE is raw or in us (1500us)",
		Func: argsCmd(func(s *Shell, args []string) error {
			return s.Set(args)
		}),
	}

	// CenterCmd centers all channels.
	CenterCmd = ishell.Cmd{
		Name: "center",
		Help: "center all channels",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Tx.Center()
		},
	}

	// ModelCmd changes the model id.
	ModelCmd = ishell.Cmd{
		Name: "model",
		Help: "ID",
		Func: argsCmd(func(s *Shell, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expect ID")
			}
			id, err := strconv.ParseUint(args[0], 0, 8)
			if err != nil {
				return fmt.Errorf("invalid model id %q", args[0])
			}
			s.Tx.SetModel(uint8(id))
			return nil
		}),
	}

	// RateCmd changes the frame rate.
	RateCmd = ishell.Cmd{
		Name: "rate",
		Help: "HZ",
		Func: argsCmd(func(s *Shell, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expect HZ")
			}
			hz, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid rate %q", args[0])
			}
			return s.Tx.SetRate(hz)
		}),
	}

	// StopCmd stops sending frames.
	StopCmd = ishell.Cmd{
		Name: "stop",
		Help: "stop sending, the receiver loses the link",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Tx.SetRunning(false)
		},
	}

	// StartCmd resumes sending frames.
	StartCmd = ishell.Cmd{
		Name: "start",
		Help: "resume sending",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Tx.SetRunning(true)
		},
	}

	// ModeCmd switches the receiver into an update mode or back.
	ModeCmd = ishell.Cmd{
		Name: "mode",
		Help: "normal|wifi-update|serial-update",
		Func: argsCmd(func(s *Shell, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expect MODE")
			}
			return s.Tx.SendControl(args[0])
		}),
	}

	// ShowCmd prints the channel values.
	ShowCmd = ishell.Cmd{
		Name:    "show",
		Aliases: []string{"p"},
		Help:    "print channels in us",
		Func: func(c *ishell.Context) {
			c.Println(ShellFrom(c).Format())
		},
	}
)
