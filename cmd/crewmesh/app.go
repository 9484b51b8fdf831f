package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crewmesh/crewmesh/config"
	"github.com/crewmesh/crewmesh/engine"
	"github.com/crewmesh/crewmesh/outbound"
	"github.com/crewmesh/crewmesh/roster"
	"github.com/crewmesh/crewmesh/signal"
	"github.com/crewmesh/crewmesh/store"
	"github.com/crewmesh/crewmesh/verify"
)

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	userID string
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream

	mesh      *store.KV
	engine    *engine.Engine
	publisher *outbound.Publisher

	verifyQueue *verify.Queue

	sources       []signal.Source
	rosterWatcher *roster.Watcher

	metricsServer *http.Server
	watcherCancel context.CancelFunc
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, userID string, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{cfg: cfg, userID: userID, logger: logger}
}

// Start initializes and starts all components.
func (a *App) Start(ctx context.Context) error {
	// Start NATS (embedded or connect to external)
	if err := a.startNATS(ctx); err != nil {
		return fmt.Errorf("start NATS: %w", err)
	}

	mesh, err := store.NewKV(ctx, a.js, a.logger)
	if err != nil {
		return fmt.Errorf("bind mesh bucket: %w", err)
	}
	a.mesh = mesh

	a.engine = engine.New(engine.Config{
		Zone:           a.cfg.Zone(),
		FlushInterval:  a.cfg.Engine.FlushInterval,
		HistoryCap:     a.cfg.Engine.HistoryCap,
		LivenessWindow: a.cfg.Presence.LivenessWindow,
	}, mesh, a.logger)

	// Seed the roster before the watch feed starts; events for unknown
	// people are dropped, so the seed has to land first.
	var seed *roster.Seed
	if a.cfg.Roster.Path != "" {
		seed, err = roster.Load(a.cfg.Roster.Path)
		if err != nil {
			return fmt.Errorf("load roster: %w", err)
		}
		a.engine.SeedPersons(seed.People)
		a.engine.SeedEquipment(seed.Equipment)
		a.logger.Info("roster seeded", "people", len(seed.People), "equipment", len(seed.Equipment))
	}

	if err := a.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	a.publisher = outbound.NewPublisher(mesh, a.engine, a.logger)

	if a.cfg.Verification.Endpoint != "" {
		apiKey := os.Getenv(a.cfg.Verification.APIKeyEnv)
		if apiKey == "" {
			a.logger.Warn("verification credential not set; verification calls will fail",
				"env", a.cfg.Verification.APIKeyEnv)
		}
		client := verify.NewHTTPClient(a.cfg.Verification.Endpoint, apiKey, a.cfg.Verification.Timeout)
		a.verifyQueue = verify.NewQueue(client, a.cfg.Verification.Throttle, a.logger)
	}

	if err := a.startSignals(ctx, seed); err != nil {
		return err
	}

	if a.cfg.Roster.Path != "" && a.cfg.Roster.Watch {
		if err := a.startRosterWatcher(ctx); err != nil {
			return err
		}
	}

	if a.cfg.Metrics.Addr != "" {
		a.startMetrics()
	}

	a.logger.Info("crewmesh ready", "user_id", a.userID, "zone", a.cfg.Geofence.Name)
	return nil
}

func (a *App) startNATS(ctx context.Context) error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		// Connect to external NATS
		a.logger.Info("connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL,
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			return fmt.Errorf("connect to NATS: %w", err)
		}
		a.natsConn = conn
	} else {
		// Start embedded NATS server
		a.logger.Info("starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		// Wait for server to be ready
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns

		// Connect to embedded server
		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	// Get JetStream context
	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	return nil
}

func (a *App) startSignals(ctx context.Context, seed *roster.Seed) error {
	if a.userID != "" {
		hb := signal.NewHeartbeater(a.publisher, a.userID,
			a.cfg.Tracking.HeartbeatInterval, a.logger)
		a.sources = append(a.sources, hb)
	}

	if a.cfg.Tracking.Simulate {
		zone := a.cfg.Zone()

		// The local device reports a jittered fix near the zone center; a
		// real positioning source would replace this sampler.
		if a.userID != "" {
			rng := rand.New(rand.NewSource(time.Now().UnixNano()))
			sampler := func() (float64, float64, bool) {
				return zone.Center.Lat + (rng.Float64()-0.5)*0.004,
					zone.Center.Lng + (rng.Float64()-0.5)*0.004,
					true
			}
			loc := signal.NewLocationSampler(a.publisher, a.userID, sampler,
				a.cfg.Tracking.LocationInterval, a.logger)
			a.sources = append(a.sources, loc)
		}

		// Every other roster member gets simulated telemetry.
		var members []string
		if seed != nil {
			for _, p := range seed.People {
				if p.ID != a.userID {
					members = append(members, p.ID)
				}
			}
		}
		if len(members) > 0 {
			sim := signal.NewSimulator(a.publisher, zone, members,
				a.cfg.Tracking.SimulateInterval, a.logger)
			a.sources = append(a.sources, sim)
		}
	}

	for _, src := range a.sources {
		if err := src.Start(ctx); err != nil {
			return fmt.Errorf("start signal source: %w", err)
		}
	}
	return nil
}

func (a *App) startRosterWatcher(ctx context.Context) error {
	w, err := roster.NewWatcher(a.cfg.Roster.Path, a.logger)
	if err != nil {
		return fmt.Errorf("create roster watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("start roster watcher: %w", err)
	}
	a.rosterWatcher = w

	watchCtx, cancel := context.WithCancel(ctx)
	a.watcherCancel = cancel
	go func() {
		for {
			select {
			case <-watchCtx.Done():
				return
			case seed, ok := <-w.Events():
				if !ok {
					return
				}
				a.engine.SeedPersons(seed.People)
				a.engine.SeedEquipment(seed.Equipment)
			}
		}
	}()
	return nil
}

func (a *App) startMetrics() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	a.metricsServer = &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux}
	go func() {
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server failed", "error", err)
		}
	}()
	a.logger.Info("metrics listening", "addr", a.cfg.Metrics.Addr)
}

// SubmitVerification runs one photo through the throttled verification
// queue; an authentic verdict marks the user present for the session.
func (a *App) SubmitVerification(ctx context.Context, userID, session string, image []byte) (*verify.Result, error) {
	if a.verifyQueue == nil {
		return nil, fmt.Errorf("verification not configured")
	}

	if wait := a.verifyQueue.EstimatedWait(); wait > 0 {
		a.logger.Info("verification queued", "user_id", userID, "estimated_wait", wait)
	}

	var outcome verify.Outcome
	select {
	case outcome = <-a.verifyQueue.Submit(ctx, image):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if outcome.Err != nil {
		return nil, outcome.Err
	}

	if outcome.Result.IsAuthentic {
		if err := a.publisher.PublishAttendance(ctx, userID, session); err != nil {
			return outcome.Result, fmt.Errorf("record attendance: %w", err)
		}
	}
	return outcome.Result, nil
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown(timeout time.Duration) {
	a.logger.Info("shutting down")

	for _, src := range a.sources {
		src.Stop()
	}
	if a.watcherCancel != nil {
		a.watcherCancel()
	}
	if a.rosterWatcher != nil {
		a.rosterWatcher.Stop()
	}

	if a.engine != nil {
		if err := a.engine.Stop(timeout); err != nil {
			a.logger.Warn("engine stop", "error", err)
		}
	}

	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown", "error", err)
		}
		cancel()
	}

	// Close NATS connection
	if a.natsConn != nil {
		if err := a.natsConn.Drain(); err != nil {
			a.logger.Debug("drain NATS", "error", err)
		}
		a.natsConn.Close()
	}

	// Shutdown embedded server
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}

	a.logger.Info("shutdown complete")
}

// RunConsole runs the interactive console loop.
func (a *App) RunConsole(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("crewmesh> ")

		if !scanner.Scan() {
			// EOF (Ctrl+D)
			return nil
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if input == "quit" || input == "exit" {
			return nil
		}

		a.handleCommand(ctx, input)
	}
}

func (a *App) handleCommand(ctx context.Context, input string) {
	parts := strings.Fields(input)
	cmd := parts[0]

	switch cmd {
	case "/help":
		fmt.Println("Available commands:")
		fmt.Println("  /help                    - Show this help")
		fmt.Println("  /status                  - Show live roster status")
		fmt.Println("  /mark <session>          - Mark attendance for a session (e.g. D1S1)")
		fmt.Println("  /msg <user> <text>       - Send a message")
		fmt.Println("  /log <text>              - Record a work-log entry")
		fmt.Println("  /messages                - Show recent messages")
		fmt.Println("  /equipment               - Show equipment records")
		fmt.Println("  quit/exit                - Exit")

	case "/status":
		snap := a.engine.Snapshot()
		fmt.Printf("Snapshot at %s\n", snap.TakenAt.Format(time.TimeOnly))
		for _, p := range snap.Persons {
			inside := "outside zone"
			if p.InsideGeofence {
				inside = "inside zone"
			}
			fmt.Printf("  %-12s %-8s %-8s %s (%d sessions attended)\n",
				p.ID, p.Role, p.Status, inside, len(p.Attendance))
		}

	case "/mark":
		if len(parts) != 2 {
			fmt.Println("usage: /mark <session>")
			return
		}
		if err := a.publisher.PublishAttendance(ctx, a.userID, parts[1]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("Marked %s present for %s\n", a.userID, parts[1])

	case "/msg":
		if len(parts) < 3 {
			fmt.Println("usage: /msg <user> <text>")
			return
		}
		id, err := a.publisher.PublishMessage(ctx, a.userID, parts[1], strings.Join(parts[2:], " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("Sent %s\n", id)

	case "/log":
		if len(parts) < 2 {
			fmt.Println("usage: /log <text>")
			return
		}
		id, err := a.publisher.PublishWorkLog(ctx, a.userID, strings.Join(parts[1:], " "))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return
		}
		fmt.Printf("Logged %s\n", id)

	case "/messages":
		snap := a.engine.Snapshot()
		for _, m := range snap.Messages {
			fmt.Printf("  [%s] %s -> %s: %s\n",
				m.CreatedAt.Format(time.TimeOnly), m.SenderID, m.ReceiverID, m.Text)
		}

	case "/equipment":
		snap := a.engine.Snapshot()
		for _, r := range snap.Equipment {
			fmt.Printf("  %-10s %-20s sn=%s assigned=%s condition=%s\n",
				r.ID, r.Name, r.SerialNumber, r.AssignedToID, r.Condition)
		}

	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		fmt.Println("Type /help for available commands.")
	}
}
