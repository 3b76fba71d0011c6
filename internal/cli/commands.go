// Package cli implements the operator console: line commands typed on
// stdin that inspect and steer the running bot.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/lfbot-project/lfbot/internal/events"
	"github.com/lfbot-project/lfbot/internal/protocol"
	"github.com/lfbot-project/lfbot/internal/ribbon"
)

// Bot is the part of ribbon.Client the console drives.
type Bot interface {
	Snapshot() ribbon.Snapshot
	Reconnect() error
	Chat(ctx context.Context, content string) error
	JoinRoom(ctx context.Context, code string) error
	LeaveRoom(ctx context.Context) error
	SwitchBracket(ctx context.Context, bracket string) error
}

// CLI provides an interactive command-line interface.
type CLI struct {
	bot      Bot
	eventBus *events.EventBus
	in       io.Reader
	out      io.Writer
}

// NewCLI creates a new CLI reading commands from in and writing to out.
func NewCLI(bot Bot, eventBus *events.EventBus, in io.Reader, out io.Writer) *CLI {
	return &CLI{
		bot:      bot,
		eventBus: eventBus,
		in:       in,
		out:      out,
	}
}

// Start reads commands until ctx is done or input ends.
func (c *CLI) Start(ctx context.Context) {
	fmt.Fprintln(c.out, "\nlfbot console ready. Type 'help' for available commands.")
	fmt.Fprintln(c.out, "─────────────────────────────────────────────────────")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(c.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scanner.Err(); err != nil {
			log.Warn().Err(err).Msg("CLI: input error, console disabled")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}

			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}

			parts := strings.Fields(line)
			cmd := strings.ToLower(parts[0])
			args := parts[1:]

			if err := c.execute(ctx, cmd, args); err != nil {
				fmt.Fprintf(c.out, "Error: %v\n", err)
			}
		}
	}
}

// execute processes a single CLI command.
func (c *CLI) execute(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "help", "h", "?":
		c.printHelp()
	case "status", "s":
		c.printStatus()
	case "room", "r":
		c.printRoom()
	case "say":
		return c.cmdSay(ctx, args)
	case "join":
		return c.cmdJoin(ctx, args)
	case "leave":
		if err := c.bot.LeaveRoom(ctx); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Leaving room")
	case "spectate":
		return c.cmdBracket(ctx, protocol.BracketSpectator)
	case "play":
		return c.cmdBracket(ctx, protocol.BracketPlayer)
	case "reconnect":
		if err := c.bot.Reconnect(); err != nil {
			return err
		}
		fmt.Fprintln(c.out, "Reconnection initiated")
	case "quit", "exit", "q":
		fmt.Fprintln(c.out, "Shutting down lfbot...")
		c.eventBus.Emit(ctx, events.Event{
			Type:   events.EventShutdown,
			Source: "cli",
		})
	default:
		fmt.Fprintf(c.out, "Unknown command: '%s'. Type 'help' for available commands.\n", cmd)
	}
	return nil
}

// printHelp displays available commands.
func (c *CLI) printHelp() {
	fmt.Fprintln(c.out, "\n╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(c.out, "║                     lfbot Console Commands                   ║")
	fmt.Fprintln(c.out, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintln(c.out, "║  status             Show the ribbon connection state         ║")
	fmt.Fprintln(c.out, "║  room               Show the current room settings           ║")
	fmt.Fprintln(c.out, "║  say <text>         Chat in the current room                 ║")
	fmt.Fprintln(c.out, "║  join <code>        Join a room by code                      ║")
	fmt.Fprintln(c.out, "║  leave              Leave the current room                   ║")
	fmt.Fprintln(c.out, "║  spectate           Move to the spectator bracket            ║")
	fmt.Fprintln(c.out, "║  play               Move to the player bracket               ║")
	fmt.Fprintln(c.out, "║  reconnect          Drop the socket and resume the session   ║")
	fmt.Fprintln(c.out, "║  quit               Shutdown lfbot                           ║")
	fmt.Fprintln(c.out, "║  help               Show this help message                   ║")
	fmt.Fprintln(c.out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(c.out)
}

// printStatus displays the connection snapshot in a table.
func (c *CLI) printStatus() {
	snap := c.bot.Snapshot()

	session := "-"
	if snap.Session != nil {
		session = snap.Session.RibbonID
	}
	epoch := snap.Epoch
	if epoch == "" {
		epoch = "-"
	}

	fmt.Fprintln(c.out)

	tw := newTable(c.out, []string{"Field", "Value"})
	tw.Append([]string{"Connection", snap.Conn.String()})
	tw.Append([]string{"Phase", snap.Phase.String()})
	tw.Append([]string{"Epoch", epoch})
	tw.Append([]string{"Endpoint", snap.Endpoint})
	tw.Append([]string{"Session", session})
	tw.Append([]string{"User", formatUser(snap.User)})
	tw.Append([]string{"Cursor", fmt.Sprintf("%d", snap.RecvCursor)})
	tw.Append([]string{"Heartbeat", onOff(snap.HeartbeatRunning)})
	tw.Append([]string{"Migrating", fmt.Sprintf("%v", snap.Migrating)})
	tw.Append([]string{"Server version", orDash(snap.SignatureVersion)})
	tw.Render()

	fmt.Fprintln(c.out)
}

// printRoom displays the cached room settings.
func (c *CLI) printRoom() {
	room := c.bot.Snapshot().Room
	if room == nil {
		fmt.Fprintln(c.out, "Not in a room")
		return
	}

	playable := "yes"
	if v := room.Violation(); v != "" {
		playable = "no (" + v + ")"
	}

	fmt.Fprintln(c.out)

	tw := newTable(c.out, []string{"Room", "Name", "Board Width", "Gravity", "Gravity Increase", "Playable"})
	tw.Append([]string{
		room.ID,
		orDash(room.Name),
		fmt.Sprintf("%d", room.BoardWidth),
		fmt.Sprintf("%g", room.Gravity),
		fmt.Sprintf("%g", room.GravityIncrease),
		playable,
	})
	tw.Render()

	fmt.Fprintln(c.out)
}

func (c *CLI) cmdSay(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: say <text>")
	}
	if err := c.bot.Chat(ctx, strings.Join(args, " ")); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Message sent")
	return nil
}

func (c *CLI) cmdJoin(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: join <code>")
	}
	if err := c.bot.JoinRoom(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Joining room %s\n", strings.ToUpper(args[0]))
	return nil
}

func (c *CLI) cmdBracket(ctx context.Context, bracket string) error {
	if err := c.bot.SwitchBracket(ctx, bracket); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Switched to %s\n", bracket)
	return nil
}

func newTable(out io.Writer, header []string) *tablewriter.Table {
	tw := tablewriter.NewWriter(out)
	tw.SetHeader(header)
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)
	return tw
}

func formatUser(u protocol.User) string {
	if u.ID == "" {
		return "-"
	}
	return fmt.Sprintf("%s (%s)", u.Username, u.ID)
}

func onOff(b bool) string {
	if b {
		return "running"
	}
	return "stopped"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
