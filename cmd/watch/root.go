package watch

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/dirty"
	"github.com/ValentinKolb/dSync/lib/schema"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/mirror"
	"github.com/ValentinKolb/dSync/rpc/session"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

// WatchCmd mirrors the objects published by a server and prints every change
var WatchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Mirror the objects published by a dSync server",
	Long:    `Connect to a dSync server, mirror the objects it publishes and print the state of an object every time it changes.`,
	PreRunE: processConfig,
	RunE:    run,
}

func init() {
	cobra.OnInitialize(util.InitClientConfig)

	util.SetupRPCClientFlags(WatchCmd)

	key := "count"
	WatchCmd.Flags().Int(key, 0, util.WrapString("Exit after this many changes (0 = run until interrupted)"))

	key = "diff"
	WatchCmd.Flags().Bool(key, false, util.WrapString("Print the received update stream instead of the full object"))

	key = "log-level"
	WatchCmd.Flags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

func processConfig(cmd *cobra.Command, _ []string) error {
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"))
}

func run(cmd *cobra.Command, _ []string) error {
	config, err := util.GetClientConfig()
	if err != nil {
		return err
	}
	codec, err := util.DemoCodec()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limit := viper.GetInt("count")
	diff := viper.GetBool("diff")
	reached := make(chan struct{})
	seen := 0

	replica := mirror.NewReplica(dirty.NewTracker(codec))
	replica.OnChange(func(id string, kind common.EnvelopeType, o schema.Object) {
		fmt.Printf("--- %s %s\n", kind, id)
		if o != nil {
			// o is only valid inside the callback
			data, err := codec.Marshal(o)
			if err != nil {
				Logger.Warningf("cannot render %s: %v", id, err)
			} else {
				fmt.Println(string(structured.Indent(data, "  ")))
			}
		}
		// callbacks run on the reader of the session, one at a time
		seen++
		if seen == limit {
			close(reached)
		}
	})

	var onSync session.SyncHandler = replica.Handle
	if diff {
		onSync = func(env *common.Envelope) {
			if env.EnvType == common.EnvUpdate {
				fmt.Printf("--- raw %s %s (%d bytes)\n%s\n", env.EnvType, env.Object, len(env.Payload), env.Payload)
			}
			replica.Handle(env)
		}
	}

	s, err := util.Connect(ctx, config, session.Options{OnSync: onSync})
	if err != nil {
		return err
	}
	defer s.Close()
	Logger.Infof("watching %s", s.Remote())

	select {
	case <-ctx.Done():
		return nil
	case <-s.Done():
		return s.Err()
	case <-reached:
		return nil
	}
}
