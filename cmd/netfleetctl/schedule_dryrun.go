package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/scheduler"
)

type cmdScheduleDryRun struct {
	global *cmdGlobal

	flagHosts       string
	flagInstances   int
	flagMemoryMB    int64
	flagMaxAttempts int64
}

func (c *cmdScheduleDryRun) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule-dry-run",
		Short: "Run the Filter Scheduler against a synthetic host set and print the placement",
		Long: `Exercises the same filter/weigh/consume loop spec.md §4.6 describes
(internal/scheduler) without touching the database: hosts are a flat
"name:free_memory_mb" list rather than real HostState rows.`,
		RunE: c.Run,
	}

	cmd.Flags().StringVar(&c.flagHosts, "hosts", "a:4096,b:4096,c:4096,d:4096,e:4096", "Comma-separated name:free_memory_mb pairs")
	cmd.Flags().IntVar(&c.flagInstances, "instances", 3, "Number of instances to place")
	cmd.Flags().Int64Var(&c.flagMemoryMB, "memory-mb", 1024, "Memory each instance consumes")
	cmd.Flags().Int64Var(&c.flagMaxAttempts, "max-attempts", 0, "Override scheduler_max_attempts (0 uses the config default)")

	return cmd
}

func (c *cmdScheduleDryRun) Run(cmd *cobra.Command, args []string) error {
	hosts, err := parseHosts(c.flagHosts)
	if err != nil {
		return err
	}

	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("Failed to load config defaults: %w", err)
	}

	maxAttempts := c.flagMaxAttempts
	if maxAttempts == 0 {
		maxAttempts = cfg.SchedulerMaxAttempts()
	}

	hm := &scheduler.HostManager{
		Provider: func(ctx context.Context) ([]*scheduler.HostState, error) { return hosts, nil },
		Filters:  []scheduler.Filter{scheduler.ResourceFilter},
		Weighers: []scheduler.Weigher{scheduler.RAMWeigher},
	}

	fs := &scheduler.FilterScheduler{Hosts: hm, MaxAttempts: maxAttempts}

	spec := scheduler.RequestSpec{
		InstanceType: scheduler.InstanceType{Name: "dry-run", Resources: map[string]int64{"memory_mb": c.flagMemoryMB}},
		NumInstances: c.flagInstances,
	}

	instanceUUIDs := make([]uuid.UUID, c.flagInstances)
	for i := range instanceUUIDs {
		instanceUUIDs[i] = uuid.New()
	}

	selected, err := fs.Schedule(context.Background(), spec, &scheduler.FilterProperties{}, instanceUUIDs)
	if err != nil {
		return fmt.Errorf("scheduling failed: %w", err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeader([]string{"Instance", "Host"})

	for i, host := range selected {
		table.Append([]string{instanceUUIDs[i].String(), host.Host})
	}

	table.Render()

	if len(selected) < len(instanceUUIDs) {
		fmt.Fprintf(os.Stderr, "warning: only %d of %d instances could be placed\n", len(selected), len(instanceUUIDs))
	}

	return nil
}

func parseHosts(spec string) ([]*scheduler.HostState, error) {
	var hosts []*scheduler.HostState

	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}

		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid host entry %q, want name:free_memory_mb", entry)
		}

		memMB, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid memory value in %q: %w", entry, err)
		}

		hosts = append(hosts, &scheduler.HostState{
			Host:      parts[0],
			Resources: map[string]int64{"memory_mb": memMB},
		})
	}

	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts supplied")
	}

	return hosts, nil
}
