// Command quaked is the server process: it opens the asset catalog and
// archived-cvar store, wires the console VM, and runs the Shard Router
// behind a WebSocket listener until interrupted.
package main

import (
	"crypto/rand"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/ernie/quakecore/internal/authtoken"
	"github.com/ernie/quakecore/internal/catalog"
	"github.com/ernie/quakecore/internal/config"
	"github.com/ernie/quakecore/internal/console"
	"github.com/ernie/quakecore/internal/cvars"
	"github.com/ernie/quakecore/internal/logging"
	"github.com/ernie/quakecore/internal/protocol"
	"github.com/ernie/quakecore/internal/shard"
	"github.com/ernie/quakecore/internal/transport"
	"github.com/ernie/quakecore/internal/world"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "quaked:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := pflag.String("config", "", "server.yaml path; flags explicitly set on the command line take precedence")
	resourcesPath := pflag.String("resources_path", "./resources", "asset catalog root directory")
	certsPath := pflag.String("certs_path", "", "TLS certificate directory (logged at startup; the listener serves plain HTTP/WebSocket, not TLS)")
	listenAddr := pflag.String("listen_addr", ":26000", "WebSocket listen address")
	shards := pflag.Int("shards", runtime.GOMAXPROCS(0), "number of world shards")
	cvarDB := pflag.String("cvar_db", "./quaked.db", "sqlite path for archived console variables")
	pflag.Parse()

	if *configPath != "" {
		cfg, err := config.LoadServer(*configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyServerConfig(cfg, resourcesPath, certsPath, listenAddr, cvarDB, shards)
	}

	log := logging.New(os.Stdout)

	cat, err := catalog.Open(*resourcesPath)
	if err != nil {
		return fmt.Errorf("open catalog: %w", err)
	}
	log.Info("catalog opened", "path", *resourcesPath, "fingerprint", cat.Fingerprint(), "summary", cat.Summary())

	store, err := cvars.Open(*cvarDB)
	if err != nil {
		return fmt.Errorf("open cvar store: %w", err)
	}
	defer store.Close()

	cons := console.New(cat, store)
	cons.AppendScript(`seta sv_shards "` + fmt.Sprint(*shards) + `"`)
	cons.Execute()

	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return fmt.Errorf("generate credential seed: %w", err)
	}
	issuer := authtoken.NewIssuer(seed, 24*time.Hour)
	verifier := authtoken.NewVerifier(seed)
	_ = issuer // credentials are minted by the (out-of-scope) login service; the server only verifies them

	router := shard.New(*shards, cat, log)
	log.Info("router started", "shards", router.ShardCount(), "certs_path", *certsPath)

	stop := make(chan struct{})
	go router.Run(stop, handleInbound)

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", func(w http.ResponseWriter, r *http.Request) {
		serveConn(w, r, router, verifier, log)
	})
	srv := &http.Server{Addr: *listenAddr, Handler: mux}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.ListenAndServe() }()

	select {
	case <-sig:
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			close(stop)
			return fmt.Errorf("listen: %w", err)
		}
	}

	close(stop)
	return srv.Close()
}

// applyServerConfig fills in any flag that was not explicitly set on the
// command line from cfg, so "flags win over file" holds regardless of flag
// declaration order.
func applyServerConfig(cfg *config.Server, resourcesPath, certsPath, listenAddr, cvarDB *string, shards *int) {
	if !pflag.CommandLine.Changed("resources_path") && cfg.ResourcesPath != "" {
		*resourcesPath = cfg.ResourcesPath
	}
	if !pflag.CommandLine.Changed("certs_path") && cfg.CertsPath != "" {
		*certsPath = cfg.CertsPath
	}
	if !pflag.CommandLine.Changed("listen_addr") && cfg.ListenAddr != "" {
		*listenAddr = cfg.ListenAddr
	}
	if !pflag.CommandLine.Changed("shards") && cfg.Shards > 0 {
		*shards = cfg.Shards
	}
	if !pflag.CommandLine.Changed("cvar_db") && cfg.CvarDB != "" {
		*cvarDB = cfg.CvarDB
	}
}

func serveConn(w http.ResponseWriter, r *http.Request, router *shard.Router, verifier *authtoken.Verifier, log *slog.Logger) {
	conn, err := transport.Accept(w, r, verifier)
	if err != nil {
		log.Error("accept failed", "err", err)
		return
	}
	defer conn.Close()
	log.Info("connection accepted", "conn_id", conn.ID)

	for {
		msg, err := conn.Receive()
		if err != nil {
			log.Warn("connection closed", "conn_id", conn.ID, "err", err)
			return
		}
		if msg.Kind != protocol.KindCommand || msg.Command == nil {
			continue
		}
		router.SpawnIfAbsent(msg.Command.WorldID)
		router.Route(shard.InboundMessage{
			WorldID:      msg.Command.WorldID,
			ConnectionID: conn.ID,
			Payload:      msg,
		})
	}
}

// handleInbound is the Shard Router's per-message callback: it applies a
// routed Command to its owning World, answers a Join with a Joined
// Notification, and, when the World's Step yields a tick, emits that
// Snapshot to the shard's outbound queue.
func handleInbound(w *world.World, msg shard.InboundMessage, out chan<- shard.OutboundMessage) {
	m, ok := msg.Payload.(protocol.Message)
	if !ok || m.Command == nil {
		return
	}
	cmd := m.Command

	switch cmd.Name {
	case protocol.CmdJoin:
		player := w.OnJoin(msg.ConnectionID)
		out <- shard.OutboundMessage{
			ConnectionID: msg.ConnectionID,
			Payload: protocol.Message{
				Kind: protocol.KindNotification,
				Notification: &protocol.Notification{
					Name:     protocol.NotifyJoined,
					WorldID:  msg.WorldID,
					MapName:  w.MapName(),
					PlayerID: player,
				},
			},
		}
	case protocol.CmdLeave:
		w.OnLeave(msg.ConnectionID, cmd.PlayerID)
	case protocol.CmdPlay:
		w.OnPlay(msg.ConnectionID)
	case protocol.CmdPause:
		w.OnPause(msg.ConnectionID)
	case protocol.CmdResume:
		w.OnResume(msg.ConnectionID)
	case protocol.CmdStop:
		w.OnStop(msg.ConnectionID)
	case protocol.CmdSpawn:
		_ = w.Load(cmd.Mode)
	}

	if snap, ok := w.Step(); ok {
		out <- shard.OutboundMessage{
			ConnectionID: msg.ConnectionID,
			Payload: protocol.Message{
				Kind:     protocol.KindSnapshot,
				Snapshot: &protocol.SnapshotMessage{WorldID: msg.WorldID, Snapshot: snap},
			},
		}
	}
}
