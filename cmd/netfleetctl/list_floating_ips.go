package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type cmdListFloatingIPs struct {
	global *cmdGlobal
}

func (c *cmdListFloatingIPs) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-floating-ips",
		Short: "List every floating IP known to this fleetnet database",
		RunE:  c.Run,
	}

	return cmd
}

func (c *cmdListFloatingIPs) Run(cmd *cobra.Command, args []string) error {
	d, err := c.global.openDB()
	if err != nil {
		return fmt.Errorf("Failed to open database: %w", err)
	}
	defer d.Close()

	fips, err := d.FloatingIPsAll(context.Background())
	if err != nil {
		return fmt.Errorf("Failed to list floating ips: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Address", "Pool", "Project", "Fixed IP", "Host", "Auto-Assigned"})

	for _, f := range fips {
		project, fixed, host := "", "", ""
		if f.ProjectID != nil {
			project = *f.ProjectID
		}
		if f.FixedIPAddr != nil {
			fixed = *f.FixedIPAddr
		}
		if f.Host != nil {
			host = *f.Host
		}

		table.Append([]string{f.Address, f.Pool, project, fixed, host, fmt.Sprintf("%t", f.AutoAssigned)})
	}

	table.Render()

	return nil
}
