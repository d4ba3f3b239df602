// Command quakeclient is the client process: it joins a quaked server over
// WebSocket, mirrors the Session Protocol's client state machine, and runs
// the Console VM as an interactive REPL when stdin/stdout are a real
// terminal.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/ernie/quakecore/internal/catalog"
	"github.com/ernie/quakecore/internal/config"
	"github.com/ernie/quakecore/internal/console"
	"github.com/ernie/quakecore/internal/cvars"
	"github.com/ernie/quakecore/internal/input"
	"github.com/ernie/quakecore/internal/logging"
	"github.com/ernie/quakecore/internal/protocol"
	"github.com/ernie/quakecore/internal/transport"
	"github.com/ernie/quakecore/internal/world"
)

// session bundles the dialed transport connection and the protocol state
// mirror so the "join"/"leave" console commands can reach both.
type session struct {
	conn   *transport.Conn
	client *protocol.Client
	log    *slog.Logger
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "quakeclient:", err)
		os.Exit(1)
	}
}

func run() error {
	bootstrapConfig := pflag.String("config", "", "client.yaml bootstrap path; flags explicitly set on the command line take precedence")
	resourcesPath := pflag.String("resources_path", "./resources", "asset catalog root directory")
	certsPath := pflag.String("certs_path", "", "TLS certificate directory (not read; the client dials plain ws://)")
	connectAddr := pflag.String("connect_addr", "127.0.0.1:26000", "quaked server address")
	configPath := pflag.String("config_path", "./config", "directory containing bindings.yaml/mappings.yaml")
	cvarDB := pflag.String("cvar_db", "./quakeclient.db", "sqlite path for archived console variables")
	pflag.Parse()
	_ = certsPath

	if *bootstrapConfig != "" {
		cfg, err := config.LoadClient(*bootstrapConfig)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if !pflag.CommandLine.Changed("connect_addr") && cfg.ConnectAddr != "" {
			*connectAddr = cfg.ConnectAddr
		}
		if !pflag.CommandLine.Changed("config_path") && cfg.ConfigPath != "" {
			*configPath = cfg.ConfigPath
		}
	}

	log := logging.New(os.Stdout)

	cat, err := catalog.Open(*resourcesPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	log.Info("catalog opened", "path", *resourcesPath, "summary", cat.Summary())

	store, err := cvars.Open(*cvarDB)
	if err != nil {
		return fmt.Errorf("open cvar store: %w", err)
	}
	defer store.Close()

	cons := console.New(cat, store)
	binder := input.New(cons)

	if bindings, err := input.LoadBindings(*configPath + "/bindings.yaml"); err == nil {
		binder.SetBindings(bindings)
	} else {
		log.Warn("no bindings loaded", "err", err)
	}
	if mappings, err := input.LoadMappings(*configPath + "/mappings.yaml"); err == nil {
		for from, to := range mappings {
			binder.SetAlias(from, to)
		}
	}

	client := protocol.NewClient()
	u := url.URL{Scheme: "ws", Host: *connectAddr, Path: "/connect"}

	conn, err := transport.Dial(u.String())
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.String(), err)
	}
	defer conn.Close()
	log.Info("connected", "url", u.String(), "connection_id", conn.ID)

	sess := &session{conn: conn, client: client, log: log}
	go sess.readLoop()

	cons.RegisterCommand("join", sess.join)
	cons.RegisterCommand("leave", sess.leave)

	if isatty.IsTerminal(os.Stdin.Fd()) && isatty.IsTerminal(os.Stdout.Fd()) {
		return runInteractive(cons, client)
	}
	return runScripted(cons, client)
}

// join sends a Join command for the world named by the command's first
// argument (defaulting to world id 0), carrying no credential: minting one
// is the out-of-scope login service's job, not this console's.
func (s *session) join(c *console.Console, args []string) {
	var worldID world.WorldID
	if len(args) > 0 {
		var n uint64
		fmt.Sscanf(args[0], "%d", &n)
		worldID = world.WorldID(n)
	}
	err := s.conn.Send(protocol.Message{
		Kind: protocol.KindCommand,
		Command: &protocol.Command{
			Name:    protocol.CmdJoin,
			WorldID: worldID,
		},
	})
	if err != nil {
		s.log.Error("join failed", "err", err)
	}
}

// leave sends a Leave command for the world this client last joined.
func (s *session) leave(c *console.Console, args []string) {
	worldID, _, joined := s.client.Joined()
	if !joined {
		s.log.Warn("leave: not joined to any world")
		return
	}
	err := s.conn.Send(protocol.Message{
		Kind:    protocol.KindCommand,
		Command: &protocol.Command{Name: protocol.CmdLeave, WorldID: worldID},
	})
	if err != nil {
		s.log.Error("leave failed", "err", err)
	}
}

// readLoop applies inbound Notifications to the protocol state mirror and
// logs Snapshot arrivals; it runs for the lifetime of the connection.
func (s *session) readLoop() {
	for {
		msg, err := s.conn.Receive()
		if err != nil {
			s.log.Warn("connection closed", "err", err)
			return
		}
		switch msg.Kind {
		case protocol.KindNotification:
			n := msg.Notification
			switch n.Name {
			case protocol.NotifyJoined:
				s.client.OnJoined(*n)
			case protocol.NotifyLeft:
				s.client.OnLeft()
			}
		case protocol.KindSnapshot:
			s.log.Info("snapshot", "world_id", msg.Snapshot.WorldID, "entities", len(msg.Snapshot.Snapshot.Entities))
		}
	}
}

// runInteractive puts the terminal into raw mode and drives the Console VM
// from a line-editing REPL; Ctrl-D or the "quit" command ends the session.
func runInteractive(cons *console.Console, client *protocol.Client) error {
	fd := int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return fmt.Errorf("enter raw mode: %w", err)
	}
	defer term.Restore(fd, oldState)

	t := term.NewTerminal(readWriter{os.Stdin, os.Stdout}, "] ")

	for {
		line, err := t.ReadLine()
		if err != nil {
			break
		}
		cons.AppendScript(line)
		cons.Execute()
		if cons.Quit() {
			break
		}
		_ = client.State()
	}
	return nil
}

// readWriter pairs stdin and stdout into the io.ReadWriter term.NewTerminal
// requires.
type readWriter struct {
	io.Reader
	io.Writer
}

// runScripted drives the Console VM from stdin line by line without raw
// mode, for non-interactive invocations (piped input, CI, automation).
func runScripted(cons *console.Console, client *protocol.Client) error {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		cons.AppendScript(scanner.Text())
		cons.Execute()
		if cons.Quit() {
			break
		}
		_ = client.State()
	}
	return scanner.Err()
}
