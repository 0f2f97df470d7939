// Command lifeline-host is a sample session host: it embeds the heartbeat
// agent the way a real game server would, wires up the journal, telemetry,
// and operator API, and simulates a short game session so the full lifecycle
// can be observed against a live orchestrator.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/rs/zerolog/log"

	"github.com/lifeline-project/lifeline"
	"github.com/lifeline-project/lifeline/config"
	"github.com/lifeline-project/lifeline/events"
	"github.com/lifeline-project/lifeline/internal/health"
	"github.com/lifeline-project/lifeline/internal/journal"
	"github.com/lifeline-project/lifeline/internal/logging"
	"github.com/lifeline-project/lifeline/internal/ops"
	"github.com/lifeline-project/lifeline/internal/telemetry"
)

func main() {
	var (
		logLevel   = flag.String("log-level", "info", "minimum log level")
		opsAddr    = flag.String("ops-addr", "127.0.0.1:8085", "operator API listen address, empty disables")
		mqttBroker = flag.String("mqtt-broker", os.Getenv("LIFELINE_MQTT_BROKER"), "telemetry broker host, empty disables")
		mqttPort   = flag.Int("mqtt-port", envInt("LIFELINE_MQTT_PORT", 1883), "telemetry broker port")
		mqttTLS    = flag.Bool("mqtt-tls", os.Getenv("LIFELINE_MQTT_TLS") == "true", "connect to the broker over TLS")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: *logLevel, Console: true})
	defer logging.Close()

	src, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	bus := events.NewBus()
	defer bus.Stop()

	engine, err := lifeline.NewEngine(src, bus)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct agent")
	}

	printStartupSummary(engine)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j, err := journal.Open(filepath.Join(engine.LogsDirectory(), "lifeline.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open journal")
	}
	defer j.Close()
	j.Subscribe(bus)

	monitor := health.NewMonitor(health.DefaultThresholds(), engine.LogsDirectory())
	go monitor.Run(ctx)
	engine.RegisterHealthCallback(monitor.Healthy)

	if *mqttBroker != "" {
		publisher := telemetry.NewPublisher(telemetry.Config{
			BrokerURL: *mqttBroker,
			Port:      *mqttPort,
			UseTLS:    *mqttTLS,
		}, bus, engine.ServerID())
		go func() {
			if err := publisher.Start(ctx); err != nil {
				log.Warn().Err(err).Msg("telemetry disabled")
			}
		}()
	}

	if *opsAddr != "" {
		server := ops.New(engine, j, monitor, *opsAddr)
		go func() {
			if err := server.Run(ctx); err != nil {
				log.Error().Err(err).Msg("operator API exited")
			}
		}()
	}

	// sessionDone is closed by the shutdown callback when the orchestrator
	// terminates the session.
	sessionDone := make(chan struct{})
	engine.RegisterShutdownCallback(func() {
		log.Info().Msg("orchestrator requested termination")
		close(sessionDone)
	})
	engine.RegisterMaintenanceCallback(func(next time.Time) {
		log.Warn().Time("next_maintenance", next).Msg("maintenance scheduled")
	})

	if err := engine.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start agent")
	}

	go runSession(engine)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case <-sessionDone:
	}

	cancel()
	engine.Stop()
}

// runSession drives the lifecycle the way a hosted game would: finish
// loading, stand by for allocation, then serve players until termination.
func runSession(engine *lifeline.Engine) {
	// Simulated asset loading.
	time.Sleep(2 * time.Second)

	if !engine.ReadyForPlayers() {
		log.Info().Msg("session terminated before activation")
		return
	}

	log.Info().
		Strs("initial_players", engine.InitialPlayers()).
		Msg("session activated")

	roster := make([]lifeline.ConnectedPlayer, 0, len(engine.InitialPlayers()))
	for _, id := range engine.InitialPlayers() {
		roster = append(roster, lifeline.ConnectedPlayer{PlayerID: id})
	}
	engine.UpdateConnectedPlayers(roster)
}

// printStartupSummary renders the merged configuration and the assigned
// connection info as a table on stdout.
func printStartupSummary(engine *lifeline.Engine) {
	settings := engine.ConfigSettings()
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Setting", "Value"})
	table.SetBorder(false)
	for _, k := range keys {
		table.Append([]string{k, settings[k]})
	}

	info := engine.GameServerConnectionInfo()
	table.Append([]string{"publicIpV4Address", info.PublicIPv4Address})
	for _, port := range info.GamePorts {
		table.Append([]string{
			"port:" + port.Name,
			strconv.Itoa(port.ServerListeningPort) + " -> " + strconv.Itoa(port.ClientConnectionPort),
		})
	}
	table.Render()
}

func envInt(name string, fallback int) int {
	if raw := os.Getenv(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			return v
		}
	}
	return fallback
}
