// Command unit runs a committee of N signing units wired through an
// in-memory or NATS-backed hub, per the configuration in internal/config.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gonka-ai/committee-signer/internal/commit"
	"github.com/gonka-ai/committee-signer/internal/config"
	"github.com/gonka-ai/committee-signer/internal/hub"
	"github.com/gonka-ai/committee-signer/internal/logging"
	"github.com/gonka-ai/committee-signer/internal/unit"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML configuration file")
	pretty := flag.Bool("pretty", false, "use a human-readable console log writer instead of JSON")
	flag.Parse()

	logging.SetDefault(logging.New(*pretty))

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.Error("failed to load configuration", logging.Unit, "error", err.Error())
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logging.Error("invalid configuration", logging.Unit, "error", err.Error())
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logging.Error("committee exited with error", logging.Unit, "error", err.Error())
		os.Exit(1)
	}
}

// run builds a committee of cfg.Committee.NumUnits units behind a hub
// and supervises them under an errgroup, so a fatal error in any one
// actor brings the whole committee down together.
func run(ctx context.Context, cfg config.Config) error {
	h, err := newHub(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = h.Close() }()

	outbound := make(chan taggedCommit, cfg.Channels.OutboundCapacity)
	group, gctx := errgroup.WithContext(ctx)

	controls := make([]chan unit.Command, 0, cfg.Committee.NumUnits)

	for i := 0; i < cfg.Committee.NumUnits; i++ {
		id := uuid.New().String()
		inbound, err := h.Register(id)
		if err != nil {
			return err
		}

		unitOutbound := make(chan commit.Commit, cfg.Channels.OutboundCapacity)
		control := make(chan unit.Command, cfg.Channels.ControlCapacity)
		controls = append(controls, control)

		u, err := unit.New(cfg, inbound, unitOutbound, control)
		if err != nil {
			return err
		}

		group.Go(func() error { return u.Run(gctx) })
		group.Go(func() error { return relay(gctx, id, unitOutbound, outbound) })
	}

	group.Go(func() error { return fanOut(gctx, h, outbound) })

	<-gctx.Done()
	for _, control := range controls {
		select {
		case control <- unit.Terminate:
		default:
		}
	}

	return group.Wait()
}

// taggedCommit carries the id of the unit that produced a commit, so
// fanOut knows which recipient to exclude when it re-broadcasts.
type taggedCommit struct {
	unitID string
	commit commit.Commit
}

func relay(ctx context.Context, unitID string, from <-chan commit.Commit, to chan<- taggedCommit) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c, ok := <-from:
			if !ok {
				return nil
			}
			select {
			case to <- taggedCommit{unitID: unitID, commit: c}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

func fanOut(ctx context.Context, h hub.Hub, outbound <-chan taggedCommit) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case tc := <-outbound:
			if err := h.Publish(tc.unitID, tc.commit); err != nil {
				return err
			}
		}
	}
}

func newHub(cfg config.Config) (hub.Hub, error) {
	switch cfg.Hub.Transport {
	case "nats":
		return hub.NewNatsHub(cfg.Hub.Nats, cfg.Channels.InboundCapacity)
	default:
		return hub.NewMemoryHub(cfg.Channels.InboundCapacity), nil
	}
}
