package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dSync/cmd/call"
	"github.com/ValentinKolb/dSync/cmd/codec"
	"github.com/ValentinKolb/dSync/cmd/serve"
	"github.com/ValentinKolb/dSync/cmd/util"
	"github.com/ValentinKolb/dSync/cmd/watch"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dsync",
		Short: "schema-driven object sync and remote calls",
		Long: fmt.Sprintf(`dSync (v%s)

Keeps typed objects in sync between peers by sending only the fields that
changed, and lets peers call each other's methods with typed arguments.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dSync",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dSync v%s\n", Version)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(call.CallCommands)
	RootCmd.AddCommand(watch.WatchCmd)
	RootCmd.AddCommand(codec.CodecCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "binary", util.WrapString("serializer to use (binary, json, gob)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix, ws)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
