package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/sandclock/cmd/perf"
	"github.com/ValentinKolb/sandclock/cmd/simulate"
	"github.com/ValentinKolb/sandclock/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "sandclock",
		Short: "inactivity clock for keyed entities",
		Long: fmt.Sprintf(`sandclock (v%s)

A time-aware map that tracks the last activity of keys and notifies once
a key went silent for longer than a timeout. This binary contains tools to
simulate and benchmark the in-process clock.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of sandclock",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("sandclock v%s\n", Version)
		},
	}
)

func init() {
	cobra.OnInitialize(util.InitConfig)

	RootCmd.AddCommand(simulate.SimulateCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
