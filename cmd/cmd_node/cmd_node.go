// file: meshd/cmd/cmd_node/cmd_node.go
package cmd_node

import (
	"encoding/json"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rskv-p/meshd/bus"
	"github.com/rskv-p/meshd/config"
	"github.com/rskv-p/meshd/pkg/x_log"
	"github.com/rskv-p/meshd/pkt"
	"github.com/rskv-p/meshd/pubsub"
	"github.com/rskv-p/meshd/regclient"
)

var (
	registryAddr string
	listenAddr   string
	service      string
	version      string
	nodeID       string
	embeddedNATS bool
	localBroker  bool
)

var Cmd = &cobra.Command{
	Use:   "node",
	Short: "Run a mesh service node (registers, serves the peer bus, joins pubsub)",
	RunE:  run,
}

func init() {
	Cmd.Flags().StringVar(&registryAddr, "registry-addr", "", "Registry address (overrides MESH_REGISTRY_ADDR)")
	Cmd.Flags().StringVar(&listenAddr, "listen-addr", "", "peer bus listen address (overrides MESH_LISTEN_ADDR)")
	Cmd.Flags().StringVar(&service, "service", "", "declared service name (overrides MESH_SERVICE_NAME)")
	Cmd.Flags().StringVar(&version, "version", "", "declared service version (overrides MESH_VERSION)")
	Cmd.Flags().StringVar(&nodeID, "node-id", "", "node_id to register as (random if empty)")
	Cmd.Flags().BoolVar(&embeddedNATS, "embedded-nats", false, "start an in-process nats-server instead of dialing MESH_NATS_URL")
	Cmd.Flags().BoolVar(&localBroker, "local-broker", false, "use the in-process LocalBroker instead of NATS (single isolated process, no broker dependency)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg := config.LoadWithFallback()
	if registryAddr != "" {
		cfg.RegistryAddr = registryAddr
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if service != "" {
		cfg.ServiceName = service
	}
	if version != "" {
		cfg.Version = version
	}
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("node: listen %s: %w", cfg.ListenAddr, err)
	}
	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	if err != nil {
		return err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return err
	}
	_ = ln.Close() // bus.Serve re-binds the same address below; narrow race if the port is taken in between

	reg, err := regclient.Dial(cfg.RegistryAddr, nodeID)
	if err != nil {
		return fmt.Errorf("node: dial registry: %w", err)
	}
	defer reg.Close()

	if err := reg.Register(host, port, cfg.ServiceName, cfg.Version, cfg.Dependencies, pkt.TCP); err != nil {
		return fmt.Errorf("node: register: %w", err)
	}
	x_log.RootLogger().Structured().Info("registered with mesh",
		x_log.FString("service", cfg.ServiceName), x_log.FString("version", cfg.Version), x_log.FString("node_id", nodeID))

	broker, err := connectBroker(cfg)
	if err != nil {
		return err
	}
	defer broker.Close()

	peerBus := bus.New(reg)
	psBus := pubsub.NewBus(broker, reg)

	go func() {
		if err := peerBus.Serve(ctx, net.JoinHostPort(host, portStr)); err != nil {
			x_log.RootLogger().Structured().Error("node: peer bus stopped", x_log.FError(err))
		}
	}()

	if len(cfg.Subscriptions) > 0 {
		if err := subscribeAll(reg, psBus, host, port, cfg.Subscriptions); err != nil {
			return fmt.Errorf("node: subscribe: %w", err)
		}
	}

	<-ctx.Done()
	x_log.RootLogger().Structured().Info("shutting down node")
	return nil
}

// subscribeAll declares this node's xsubscribe intent to the Registry (so
// directed xpublish retries can find it) and installs a broker-side handler
// for each configured subscription, logging what arrives. A real service
// built on top of this entrypoint replaces the handler with its own
// endpoint logic via psBus.Subscribe.
func subscribeAll(reg *regclient.Client, psBus *pubsub.Bus, host string, port int, subs []pkt.SubscribeEvent) error {
	if err := reg.XSubscribe(host, port, subs); err != nil {
		return err
	}
	for _, sub := range subs {
		sub := sub
		err := psBus.Subscribe(sub.Service, sub.Version, sub.Endpoint, func(service, version, endpoint string, payload json.RawMessage) {
			x_log.RootLogger().Structured().Info("node: received subscribed event",
				x_log.FString("service", service), x_log.FString("version", version), x_log.FString("endpoint", endpoint))
		})
		if err != nil {
			return fmt.Errorf("subscribe %s/%s/%s: %w", sub.Service, sub.Version, sub.Endpoint, err)
		}
	}
	return nil
}

func connectBroker(cfg *config.Config) (pubsub.Broker, error) {
	if localBroker {
		broker := pubsub.NewLocalBroker()
		if err := broker.Connect(); err != nil {
			return nil, fmt.Errorf("node: connect to local broker: %w", err)
		}
		return broker, nil
	}
	if embeddedNATS {
		embedded, err := pubsub.StartEmbeddedNATS("127.0.0.1", -1)
		if err != nil {
			return nil, fmt.Errorf("node: start embedded nats: %w", err)
		}
		broker := pubsub.NewNATSBroker(embedded.ClientURL())
		if err := broker.Connect(); err != nil {
			embedded.Shutdown()
			return nil, fmt.Errorf("node: connect to embedded nats: %w", err)
		}
		return broker, nil
	}

	broker := pubsub.NewNATSBroker(cfg.NATS.URL)
	if err := broker.Connect(); err != nil {
		return nil, fmt.Errorf("node: connect to nats at %s: %w", cfg.NATS.URL, err)
	}
	return broker, nil
}
