package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"

	"github.com/backkem/matter-core/pkg/config"
	"github.com/backkem/matter-core/pkg/im"
	"github.com/backkem/matter-core/pkg/matter"
	"github.com/backkem/matter-core/pkg/session"
)

type deviceOptions struct {
	configPath     string
	passcode       uint32
	info           deviceInfo
	rampInterval   time.Duration
	reportInterval time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &deviceOptions{}
	cmd := &cobra.Command{
		Use:          "matter-light-device",
		Short:        "Serve a dimmable Matter light over UDP.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runDevice(ctx, opts, nil)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML stack configuration")
	f.Uint32Var(&opts.passcode, "passcode", 20202021, "setup passcode")
	f.StringVar(&opts.info.VendorName, "vendor-name", "Backkem", "BasicInformation VendorName")
	f.Uint16Var(&opts.info.VendorID, "vendor", 0xFFF1, "vendor id")
	f.StringVar(&opts.info.ProductName, "name", "Matter Light", "BasicInformation ProductName")
	f.Uint16Var(&opts.info.ProductID, "product", 0x8001, "product id")
	f.StringVar(&opts.info.SerialNumber, "serial", "0001", "serial number")
	f.DurationVar(&opts.rampInterval, "ramp-interval", time.Second, "time between level steps")
	f.DurationVar(&opts.reportInterval, "report-interval", 5*time.Second, "minimum time between published level changes")
	return cmd
}

// runDevice serves until ctx is done. ready, when set, receives the
// started node.
func runDevice(ctx context.Context, opts *deviceOptions, ready func(*matter.Node)) error {
	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	lf := cfg.LoggerFactory()
	log := lf.NewLogger("light")
	clk := clock.New()

	table := im.NewAttributeTable()
	l, err := newLight(table, opts.info, opts.reportInterval, clk)
	if err != nil {
		return err
	}

	node, err := matter.NewNode(matter.NodeConfig{
		Config: cfg,
		Source: table,
		Clock:  clk,
		OnSessionEstablished: func(s *session.Session) {
			log.Infof("controller paired, session %d", s.LocalSessionID())
		},
		LoggerFactory: lf,
	})
	if err != nil {
		return err
	}
	defer node.Close()
	if err := node.Start(); err != nil {
		return err
	}
	if err := node.OpenPairingWindow(opts.passcode, nil, 0); err != nil {
		return err
	}
	log.Infof("%s listening on %s", opts.info.ProductName, node.LocalAddr())
	if ready != nil {
		ready(node)
	}

	l.ramp(ctx, clk, opts.rampInterval, func(err error) {
		log.Warnf("level update: %v", err)
	})
	return nil
}
