// Command netfleetctl is the operator CLI for fleetnet, analogous to
// the teacher's lxc: a thin cobra front-end over the same packages the
// RPC surface dispatches to, for operators who want a direct look at
// network/floating-IP state or a scheduler dry run without going
// through compute.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/hostfleet/fleetnet/internal/db"
)

type cmdGlobal struct {
	cmd    *cobra.Command
	flagDB string
}

func (c *cmdGlobal) openDB() (*db.DB, error) {
	return db.Open(c.flagDB)
}

func main() {
	app := &cobra.Command{
		Use:           "netfleetctl",
		Short:         "Operator CLI for the fleetnet network control plane",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	global := &cmdGlobal{cmd: app}
	app.PersistentFlags().StringVar(&global.flagDB, "db", "fleetnet.db", "Path to the fleetnet sqlite database")

	app.AddCommand((&cmdListNetworks{global: global}).Command())
	app.AddCommand((&cmdListFloatingIPs{global: global}).Command())
	app.AddCommand((&cmdScheduleDryRun{global: global}).Command())
	app.AddCommand((&cmdServe{global: global}).Command())

	if err := app.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
