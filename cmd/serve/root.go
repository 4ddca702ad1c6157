package serve

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/lib/dirty"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/invoke"
	"github.com/ValentinKolb/dSync/rpc/mirror"
	"github.com/ValentinKolb/dSync/rpc/serializer"
	"github.com/ValentinKolb/dSync/rpc/session"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("serve")

var (
	serveCmdConfig = &common.ServerConfig{}
	advanceEvery   = time.Second
	boardPlayers   []string

	ServeCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Start a dSync server",
		Long:    `Start a dSync server that hosts the demo methods (add, echo, move, log) and publishes a demo board object that changes over time. The configuration can be set via command line flags or environment variables. The format of the environment variables is DSYNC_<flag> (e.g. DSYNC_TICK_MS=50)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// add flags
	util.SetupTransportFlags(ServeCmd, "0.0.0.0:7070")

	key := "tick-ms"
	ServeCmd.PersistentFlags().Int(key, 100, util.WrapString("Interval of the delta sync tick in milliseconds"))

	key = "advance-ms"
	ServeCmd.PersistentFlags().Int(key, 1000, util.WrapString("Interval in milliseconds at which the demo board advances to its next phase"))

	key = "players"
	ServeCmd.PersistentFlags().String(key, "alice,bob", util.WrapString("Comma-separated names of the players on the demo board"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", util.WrapString("Address of the prometheus /metrics endpoint (e.g. localhost:9090, empty = disabled)"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int(key, 5, util.WrapString("Timeout of the handshake with new peers in seconds"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	serveCmdConfig.Transport = util.GetTransportConfig()
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.TickMillis = viper.GetInt("tick-ms")
	serveCmdConfig.TimeoutSecond = viper.GetInt("timeout")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	if serveCmdConfig.TickMillis <= 0 {
		return fmt.Errorf("tick-ms must be positive, got %d", serveCmdConfig.TickMillis)
	}
	advanceEvery = time.Duration(max(1, viper.GetInt("advance-ms"))) * time.Millisecond

	boardPlayers = boardPlayers[:0]
	for _, name := range strings.Split(viper.GetString("players"), ",") {
		if name = strings.TrimSpace(name); name != "" {
			boardPlayers = append(boardPlayers, name)
		}
	}
	if len(boardPlayers) == 0 {
		return fmt.Errorf("at least one player is required")
	}

	return common.InitLoggers(serveCmdConfig.LogLevel)
}

// run starts the dSync server and blocks until it receives SIGINT or SIGTERM
func run(_ *cobra.Command, _ []string) error {
	Logger.Infof("starting dSync server with configuration:\n%s", serveCmdConfig)

	ser, err := serializer.New(serveCmdConfig.Serializer)
	if err != nil {
		return err
	}
	codec, err := util.DemoCodec()
	if err != nil {
		return err
	}

	// remote methods
	calc := &demo.Calculator{OnLog: func(line string) {
		Logger.Infof("log: %s", line)
	}}
	dispatcher := invoke.NewDispatcher(codec)
	dispatcher.MustRegister(calc.Methods()...)

	hub := session.NewHub(ser, session.Options{
		ID:               "dsync-server",
		Props:            map[string]string{"role": "server"},
		Handler:          dispatcher,
		HandshakeTimeout: serveCmdConfig.Timeout(),
	})

	// published objects
	publisher := mirror.NewPublisher(dirty.NewTracker(codec), hub)
	board := demo.NewBoard(boardPlayers...)
	if err := publisher.Publish("board", board); err != nil {
		return err
	}

	// peers that join later start from a full snapshot
	hub.OnJoin(func(s *session.Session) {
		if err := publisher.SnapshotTo(s); err != nil {
			Logger.Warningf("failed to send snapshot to %s: %v", s.Remote(), err)
		}
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := util.NewListener(serveCmdConfig.Transport)
	if err != nil {
		return err
	}

	var metricsServer *http.Server
	if serveCmdConfig.MetricsEndpoint != "" {
		metricsServer = startMetrics(serveCmdConfig.MetricsEndpoint)
	}

	go publisher.Run(ctx, serveCmdConfig.Tick())
	go advance(ctx, publisher, board)

	serveErr := make(chan error, 1)
	go func() { serveErr <- hub.Serve(ctx, listener) }()

	select {
	case <-ctx.Done():
		Logger.Infof("shutting down")
	case err = <-serveErr:
		if err != nil {
			Logger.Errorf("hub stopped: %v", err)
		}
	}

	_ = hub.Close()
	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = metricsServer.Shutdown(shutdownCtx)
		cancel()
	}
	logStats(publisher)
	return err
}

// advance moves the demo board to its next phase every advanceEvery
func advance(ctx context.Context, publisher *mirror.Publisher, board *demo.Board) {
	ticker := time.NewTicker(advanceEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			publisher.Mutate(board.Advance)
		}
	}
}

// startMetrics serves the prometheus metrics of all packages on /metrics
func startMetrics(endpoint string) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})
	srv := &http.Server{Addr: endpoint, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			Logger.Errorf("metrics endpoint on %s stopped: %v", endpoint, err)
		}
	}()
	Logger.Infof("serving metrics on http://%s/metrics", endpoint)
	return srv
}

// logStats writes the call latencies and the update sizes of this run
func logStats(publisher *mirror.Publisher) {
	for _, s := range invoke.Stats() {
		Logger.Infof("%s", s)
	}
	sizes := publisher.UpdateSizes()
	if sizes.GetCount() == 0 {
		return
	}
	Logger.Infof("updates: count=%d avg=%dB median=%dB p99=%dB max=%dB",
		sizes.GetCount(), sizes.AverageSize(), sizes.MedianEstimate(), sizes.GetPercentileEstimate(99), sizes.Max())
}
