package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/backkem/matter-core/pkg/config"
	"github.com/backkem/matter-core/pkg/discovery"
	imsg "github.com/backkem/matter-core/pkg/im/message"
	"github.com/backkem/matter-core/pkg/matter"
	"github.com/backkem/matter-core/pkg/tlv"
	"github.com/backkem/matter-core/pkg/transport"
)

type readOptions struct {
	configPath string
	addr       string
	iface      string
	passcode   uint32
	endpoint   uint16
	cluster    uint32
	attribute  uint32
	timeout    time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &readOptions{}
	cmd := &cobra.Command{
		Use:   "matter-read",
		Short: "Pair with a Matter device over PASE and read attributes.",
		Long: "matter-read runs a PASE handshake with the device at --addr using " +
			"its setup passcode, sends one Read Request and prints every " +
			"reported attribute as TLV.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var attribute *imsg.AttributeID
			if cmd.Flags().Changed("attribute") {
				a := imsg.AttributeID(opts.attribute)
				attribute = &a
			}
			return runRead(cmd.Context(), cmd.OutOrStdout(), opts, attribute)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "YAML stack configuration")
	f.StringVar(&opts.addr, "addr", "", "device address (host:port) or operational instance name")
	f.StringVar(&opts.iface, "interface", "", "interface for link-local destinations")
	f.Uint32Var(&opts.passcode, "passcode", 20202021, "setup passcode")
	f.Uint16Var(&opts.endpoint, "endpoint", 0, "endpoint id")
	f.Uint32Var(&opts.cluster, "cluster", 0x0028, "cluster id")
	f.Uint32Var(&opts.attribute, "attribute", 0, "attribute id; all attributes when omitted")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall deadline")
	_ = cmd.MarkFlagRequired("addr")
	return cmd
}

func runRead(ctx context.Context, out io.Writer, opts *readOptions, attribute *imsg.AttributeID) error {
	cfg := config.Default()
	// A reader does not serve, so it binds an ephemeral port by default.
	cfg.ListenAddress = "[::]:0"
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			return err
		}
	}
	lf := cfg.LoggerFactory()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	peer, err := resolvePeer(ctx, opts.addr, opts.iface, lf)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", opts.addr, err)
	}

	node, err := matter.NewNode(matter.NodeConfig{Config: cfg, LoggerFactory: lf})
	if err != nil {
		return err
	}
	if err := node.Start(); err != nil {
		return err
	}
	defer node.Close()

	s, err := node.PairPASE(ctx, peer, opts.passcode)
	if err != nil {
		return fmt.Errorf("pair with %s: %w", peer, err)
	}
	values, err := node.Read(ctx, s, matter.AttributePath{
		Endpoint:  imsg.EndpointID(opts.endpoint),
		Cluster:   imsg.ClusterID(opts.cluster),
		Attribute: attribute,
	})
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	return printValues(out, values)
}

// resolvePeer accepts host[:port] or an operational instance name.
func resolvePeer(ctx context.Context, addr, iface string, lf logging.LoggerFactory) (transport.PeerAddress, error) {
	if _, _, err := discovery.ParseOperationalInstanceName(addr); err == nil {
		r := discovery.NewResolver(discovery.ResolverConfig{Interface: iface, LoggerFactory: lf})
		return r.Resolve(ctx, addr)
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		addr = net.JoinHostPort(addr, strconv.Itoa(int(transport.DefaultPort)))
	}
	udp, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return transport.PeerAddress{}, err
	}
	if udp.Zone == "" && udp.IP.IsLinkLocalUnicast() {
		udp.Zone = iface
	}
	return transport.FromNetAddr(udp)
}

func printValues(w io.Writer, values []matter.AttributeValue) error {
	for _, v := range values {
		if v.Status != imsg.StatusSuccess {
			if _, err := fmt.Fprintf(w, "%s: %s\n", &v.Path, v.Status.String()); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintf(w, "%s = ", &v.Path); err != nil {
			return err
		}
		r, err := v.Reader()
		if err != nil {
			return err
		}
		if err := tlv.Dump(w, r); err != nil {
			return err
		}
	}
	return nil
}
