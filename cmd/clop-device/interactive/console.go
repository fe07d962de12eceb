// Package interactive provides the operator console of clop-device.
package interactive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"

	"github.com/clopstate/clop-go/pkg/apppipe"
	"github.com/clopstate/clop-go/pkg/clopstate"
)

// Device is what the console inspects and drives. *closure.Device
// implements it.
type Device interface {
	Snapshot() clopstate.Snapshot
	Features() clopstate.FeatureSet
	Inject(msg apppipe.Message) error
}

// Console handles interactive mode for clop-device.
type Console struct {
	dev Device
	rl  *readline.Instance
	out io.Writer
}

// New creates a console reading from the terminal. Attach the device before
// calling Run.
func New() (*Console, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "closure> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		AutoComplete: readline.NewPrefixCompleter(
			readline.PcItem("state"),
			readline.PcItem("overall"),
			readline.PcItem("inject"),
			readline.PcItem("features"),
			readline.PcItem("help"),
			readline.PcItem("quit"),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}
	return &Console{rl: rl, out: rl.Stdout()}, nil
}

// Attach sets the device the console drives.
func (c *Console) Attach(dev Device) {
	c.dev = dev
}

// NewWithWriter creates a console without a terminal. Only Execute may be
// used on it.
func NewWithWriter(dev Device, out io.Writer) *Console {
	return &Console{dev: dev, out: out}
}

// Stdout returns a writer that coordinates with the prompt. Use it for log
// output so lines do not interleave with typed input.
func (c *Console) Stdout() io.Writer {
	return c.out
}

// errQuit ends the command loop.
var errQuit = errors.New("quit")

// Run reads commands until EOF, "quit" or ctx ends, then calls cancel.
func (c *Console) Run(ctx context.Context, cancel context.CancelFunc) {
	defer c.rl.Close()
	c.printHelp()

	for ctx.Err() == nil {
		line, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				continue
			}
			fmt.Fprintln(c.out, "Exiting...")
			cancel()
			return
		}
		if err := c.Execute(line); err != nil {
			if errors.Is(err, errQuit) {
				cancel()
				return
			}
			fmt.Fprintf(c.out, "Error: %v\n", err)
		}
	}
}

// Execute runs one console command.
func (c *Console) Execute(line string) error {
	input := strings.TrimSpace(line)
	if input == "" {
		return nil
	}
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(cmd) {
	case "help", "?":
		c.printHelp()
	case "state", "s":
		c.cmdState()
	case "overall", "o":
		c.cmdOverall()
	case "inject", "i":
		return c.cmdInject(rest)
	case "features", "f":
		fmt.Fprintf(c.out, "FeatureMap: 0x%04x (%s)\n", uint32(c.dev.Features().Map), c.dev.Features())
	case "quit", "exit", "q":
		return errQuit
	default:
		return fmt.Errorf("unknown command %q (try help)", cmd)
	}
	return nil
}

func (c *Console) cmdState() {
	s := c.dev.Snapshot()
	fmt.Fprintf(c.out, "OperationalState: %s\n", s.State)
	fmt.Fprintf(c.out, "OperationalError: %s\n", s.Error)
	if s.NotOperational {
		fmt.Fprintln(c.out, "Not operational (setup required)")
	}
	if s.Moving {
		fmt.Fprintf(c.out, "Moving to %s: %.0f%% open\n", s.Target, s.Fraction*100)
	}
	if s.Fallback.Configured {
		fmt.Fprintf(c.out, "Fallback: %s on %s at %s after %ds\n",
			s.Fallback.RestingProcedure, s.Fallback.TriggerCondition,
			s.Fallback.TriggerPosition, s.Fallback.WaitingDelay)
	}
}

func (c *Console) cmdOverall() {
	o := c.dev.Snapshot().Overall
	fmt.Fprintf(c.out, "Positioning: %s\n", o.Positioning)
	fmt.Fprintf(c.out, "Latching:    %s\n", o.Latching)
	fmt.Fprintf(c.out, "Speed:       %s\n", o.Speed)
}

// cmdInject accepts an app pipe JSON line, or a bare message name.
func (c *Console) cmdInject(arg string) error {
	if arg == "" {
		return errors.New("usage: inject <json> | inject <Name>")
	}
	var msg apppipe.Message
	if strings.HasPrefix(arg, "{") {
		var err error
		if msg, err = apppipe.Decode([]byte(arg)); err != nil {
			return err
		}
	} else {
		msg = apppipe.Message{Name: arg}
		if msg.Name == apppipe.NameSetSetupRequired {
			msg = apppipe.SetupRequired(true)
		}
	}
	if err := c.dev.Inject(msg); err != nil {
		return fmt.Errorf("inject %s: %w", msg, err)
	}
	fmt.Fprintf(c.out, "Injected %s\n", msg)
	return nil
}

func (c *Console) printHelp() {
	fmt.Fprint(c.out, `
Commands:
  state, s            Show operational state and error
  overall, o          Show the overall closure state
  inject, i <json>    Inject an app pipe message, e.g.
                        inject {"Name":"ErrorEvent","Error":"Blocked"}
                        inject Reset
  features, f         Show the advertised feature map
  help, ?             Show this help
  quit, q             Stop the device
`)
}
