package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/calvinmclean/endolight"
)

// ExitKey ends the operator menu
const ExitKey = "x"

type cliCommand struct {
	Key         string
	Description string
	// Run returns true to end the menu
	Run func(r *Runner, out io.Writer) bool
}

func cliCommands() []cliCommand {
	var cmds []cliCommand
	for i, mode := range endolight.Modes {
		cmds = append(cmds, cliCommand{
			Key:         strconv.Itoa(i),
			Description: "Switch to " + mode.String(),
			Run: func(r *Runner, out io.Writer) bool {
				r.RequestMode(mode)
				fmt.Fprintln(out, r.Status())
				return false
			},
		})
	}

	return append(cmds,
		cliCommand{
			Key:         "s",
			Description: "Show status",
			Run: func(r *Runner, out io.Writer) bool {
				fmt.Fprintln(out, r.Status())
				return false
			},
		},
		cliCommand{
			Key:         "h",
			Description: "Show this menu",
			Run: func(r *Runner, out io.Writer) bool {
				printMenu(out)
				return false
			},
		},
		cliCommand{
			Key:         ExitKey,
			Description: "Switch off and exit",
			Run: func(r *Runner, out io.Writer) bool {
				return true
			},
		},
	)
}

func printMenu(out io.Writer) {
	fmt.Fprintln(out, "Illumination modes and commands:")
	for _, cmd := range cliCommands() {
		fmt.Fprintf(out, "  %s: %s\n", cmd.Key, cmd.Description)
	}
}

// RunCLI reads operator commands, one per line, from in until the exit command is entered or ctx
// is cancelled. Mode changes take effect on the next frame. If in is exhausted the menu stays
// idle until ctx is cancelled.
func (r *Runner) RunCLI(ctx context.Context, in io.Reader, out io.Writer) error {
	cmdMap := map[string]cliCommand{}
	for _, cmd := range cliCommands() {
		cmdMap[cmd.Key] = cmd
	}

	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	printMenu(out)

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				lines = nil
				select {
				case err := <-readErr:
					if err != nil {
						return fmt.Errorf("error reading commands: %w", err)
					}
				default:
				}
				continue
			}

			key := strings.ToLower(strings.TrimSpace(line))
			if key == "" {
				continue
			}

			cmd, ok := cmdMap[key]
			if !ok {
				fmt.Fprintf(out, "unknown command %q, enter h for help\n", key)
				continue
			}

			if cmd.Run(r, out) {
				return nil
			}
		}
	}
}
