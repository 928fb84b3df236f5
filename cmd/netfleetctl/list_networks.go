package main

import (
	"context"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

type cmdListNetworks struct {
	global *cmdGlobal
}

func (c *cmdListNetworks) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list-networks",
		Short: "List every network known to this fleetnet database",
		RunE:  c.Run,
	}

	return cmd
}

func (c *cmdListNetworks) Run(cmd *cobra.Command, args []string) error {
	d, err := c.global.openDB()
	if err != nil {
		return fmt.Errorf("Failed to open database: %w", err)
	}
	defer d.Close()

	ctx := context.Background()

	ids, err := d.AllNetworkIDs(ctx)
	if err != nil {
		return fmt.Errorf("Failed to list networks: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"ID", "Label", "CIDR", "Bridge", "Host", "Multi-Host", "VLAN"})

	for _, id := range ids {
		n, err := d.NetworkGet(ctx, id)
		if err != nil {
			return fmt.Errorf("Failed to load network %s: %w", id, err)
		}

		vlan := ""
		if n.VlanTag != nil {
			vlan = fmt.Sprintf("%d", *n.VlanTag)
		}

		table.Append([]string{
			n.ID.String(), n.Label, n.CIDR, n.Bridge, n.Host, fmt.Sprintf("%t", n.MultiHost), vlan,
		})
	}

	table.Render()

	return nil
}
