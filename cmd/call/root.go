package call

import (
	"context"

	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/lib/codec/structured"
	"github.com/ValentinKolb/dSync/lib/demo"
	"github.com/ValentinKolb/dSync/rpc/common"
	"github.com/ValentinKolb/dSync/rpc/invoke"
	"github.com/ValentinKolb/dSync/rpc/session"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

var (
	codec      *structured.Codec
	invoker    *invoke.Invoker
	rpcSession *session.Session
	config     *common.ClientConfig

	// CallCommands represents the call command group
	CallCommands = &cobra.Command{
		Use:                "call",
		Short:              "Invoke the demo methods of a dSync server",
		Long:               `Invoke the demo methods of a dSync server. Arguments are written in the structured text format, e.g. 'Point{x:1;y:2;}' for objects. Strings may be given without quotes.`,
		PersistentPreRunE:  setupInvoker,
		PersistentPostRunE: closeSession,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common RPC flags to the call command
	util.SetupRPCClientFlags(CallCommands)

	key := "local"
	CallCommands.PersistentFlags().Bool(key, false, util.WrapString("Execute the methods in this process instead of calling the server"))

	key = "log-level"
	CallCommands.PersistentFlags().String(key, "warn", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	// Add subcommands
	for _, m := range demo.Signatures() {
		CallCommands.AddCommand(methodCommand(m))
	}
	CallCommands.AddCommand(perfTestCmd)
}

// setupInvoker connects to the server, or registers the local handlers if
// --local is set
func setupInvoker(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}
	if err := common.InitLoggers(viper.GetString("log-level")); err != nil {
		return err
	}

	var err error
	if config, err = util.GetClientConfig(); err != nil {
		return err
	}
	if codec, err = util.DemoCodec(); err != nil {
		return err
	}

	dispatcher := invoke.NewDispatcher(codec)
	invoker = invoke.NewInvoker(dispatcher)

	if viper.GetBool("local") {
		calc := &demo.Calculator{OnLog: func(line string) {
			Logger.Infof("log: %s", line)
		}}
		dispatcher.MustRegister(calc.Methods()...)
		return nil
	}

	dispatcher.MustRegister(demo.Signatures()...)
	rpcSession, err = util.Connect(context.Background(), config, session.Options{})
	if err != nil {
		return err
	}
	invoker.Attach(rpcSession)
	Logger.Debugf("connected to %s", rpcSession.Remote())
	return nil
}

// closeSession flushes pending notifications and closes the connection
func closeSession(_ *cobra.Command, _ []string) error {
	if rpcSession == nil {
		return nil
	}
	invoker.Detach()
	return rpcSession.Close()
}
