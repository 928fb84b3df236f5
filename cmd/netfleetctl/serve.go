package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hostfleet/fleetnet/internal/cluster"
	"github.com/hostfleet/fleetnet/internal/config"
	"github.com/hostfleet/fleetnet/internal/logger"
	"github.com/hostfleet/fleetnet/internal/netmanager"
	"github.com/hostfleet/fleetnet/internal/reaper"
	"github.com/hostfleet/fleetnet/internal/rpcapi"
	"github.com/hostfleet/fleetnet/internal/rpcclient"
	"github.com/hostfleet/fleetnet/internal/task"
	"github.com/hostfleet/fleetnet/internal/topology"
	"github.com/hostfleet/fleetnet/internal/worker"
)

type cmdServe struct {
	global *cmdGlobal

	flagListen string
	flagHost   string
	flagKind   string
	flagWorker int
}

func (c *cmdServe) Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a Network Manager process: RPC surface, metrics, and the periodic reaper",
		RunE:  c.Run,
	}

	cmd.Flags().StringVar(&c.flagListen, "listen", ":8443", "Address to serve the RPC surface and /metrics on")
	cmd.Flags().StringVar(&c.flagHost, "host", "localhost", "This process's host identity in the Network Ownership Router")
	cmd.Flags().StringVar(&c.flagKind, "variant", string(topology.KindFlatDHCP), "Topology variant: flat, flat_dhcp, or vlan")
	cmd.Flags().IntVar(&c.flagWorker, "workers", 8, "Worker pool size for allocate_for_instance fan-out")

	return cmd
}

func (c *cmdServe) Run(cmd *cobra.Command, args []string) error {
	d, err := c.global.openDB()
	if err != nil {
		return fmt.Errorf("Failed to open database: %w", err)
	}
	defer d.Close()

	cfg, err := config.Load(nil)
	if err != nil {
		return fmt.Errorf("Failed to load config: %w", err)
	}

	variant, err := topology.NewVariant(topology.Kind(c.flagKind), cfg)
	if err != nil {
		return fmt.Errorf("Failed to construct topology variant: %w", err)
	}

	nodes := cluster.NewMemStore()
	if err := nodes.Heartbeat(context.Background(), c.flagHost, c.flagListen); err != nil {
		return fmt.Errorf("Failed to register local heartbeat: %w", err)
	}

	caller := rpcclient.New(nodes)
	router := netmanager.NewRouter(c.flagHost, nodes, cfg.FixedIPDisassociateTimeout(), caller)

	manager := netmanager.New(netmanager.Options{
		DB:         d,
		Config:     cfg,
		Variant:    variant,
		Router:     router,
		LocalHost:  c.flagHost,
		WorkerPool: worker.New(c.flagWorker),
	})

	group := task.NewGroup()
	reaper.New(d, cfg, variant).Start(group)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	group.Start(ctx)
	defer func() {
		if err := group.Stop(cfg.FixedIPDisassociateTimeout()); err != nil {
			logger.Warn("periodic tasks did not stop cleanly", logger.Ctx{"err": err})
		}
	}()

	server := &http.Server{Addr: c.flagListen, Handler: rpcapi.NewServer(manager)}

	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()

	logger.Info("netfleetctl serving", logger.Ctx{"listen": c.flagListen, "host": c.flagHost, "variant": c.flagKind})

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("rpc server failed: %w", err)
	}

	return nil
}
