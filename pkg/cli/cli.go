// Package cli wires the Raft server into a cobra root command: run/status/
// propose subcommands, grounded on the teacher's pkg/cli/cli.go +
// cmd/clusterctl/main.go (flag-per-Config-field style, SilenceUsage root
// command, signal-driven context). status and propose are HTTP clients
// against a running node's control address (pkg/bootstrap/control.go) —
// separate process invocations never share in-process state.
package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amirimatin/graphraft/pkg/bootstrap"
	"github.com/amirimatin/graphraft/pkg/observability/tracing"
)

// AddAll attaches the raft subcommands (run/status/propose) to root.
func AddAll(root *cobra.Command) {
	root.AddCommand(NewRunCmd())
	root.AddCommand(NewStatusCmd())
	root.AddCommand(NewProposeCmd())
}

// NewRunCmd returns the "run" command used to start a Raft server node.
func NewRunCmd() *cobra.Command {
	var (
		id                                uint16
		bindAddr, peersCSV, dataDir       string
		controlAddr                       string
		clusterSize                       uint16
		electionMin, electionMax          time.Duration
		heartbeat, rpcTimeout, rpcBackoff time.Duration
		tlsEnable, tlsSkip, traceEnable   bool
		tlsCA, tlsCert, tlsKey, tlsName   string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a Raft server node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == 0 {
				return fmt.Errorf("missing --id (must be >= 1)")
			}
			ctx, cancel := signalContext()
			defer cancel()

			if traceEnable {
				shutdown, err := tracing.Setup(true)
				if err != nil {
					log.Printf("tracing setup error: %v", err)
				} else {
					defer func() { _ = shutdown(context.Background()) }()
				}
			}

			cfg := bootstrap.Config{
				ServerID:           id,
				BindAddr:           bindAddr,
				PeersCSV:           peersCSV,
				ClusterSize:        clusterSize,
				DurabilityDir:      dataDir,
				ControlAddr:        controlAddr,
				ElectionTimeoutMin: electionMin,
				ElectionTimeoutMax: electionMax,
				HeartbeatInterval:  heartbeat,
				RPCTimeout:         rpcTimeout,
				RPCBackoff:         rpcBackoff,
				TLSEnable:          tlsEnable,
				TLSCA:              tlsCA,
				TLSCert:            tlsCert,
				TLSKey:             tlsKey,
				TLSServerName:      tlsName,
				TLSSkipVerify:      tlsSkip,
				Logger:             log.Default(),
			}
			node, err := bootstrap.Run(ctx, cfg)
			if err != nil {
				return err
			}
			defer node.Close()

			fmt.Printf("raft node %d listening on %s. Press Ctrl+C to exit.\n", id, bindAddr)
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().Uint16Var(&id, "id", 0, "this server's id, in [1, cluster-size] (required)")
	cmd.Flags().StringVar(&bindAddr, "bind-addr", ":9521", "coordination rpc bind address")
	cmd.Flags().StringVar(&peersCSV, "peers", "", "comma-separated peer address book: id=host:port,id=host:port")
	cmd.Flags().StringVar(&controlAddr, "control-addr", "", "local status/propose http bind address (empty disables it)")
	cmd.Flags().Uint16Var(&clusterSize, "cluster-size", 0, "total peers (0 infers from --peers and --id)")
	cmd.Flags().StringVar(&dataDir, "data", "", "durable store directory (empty uses an in-memory store)")
	cmd.Flags().DurationVar(&electionMin, "election-timeout-min", 0, "election timeout lower bound (0 uses the default)")
	cmd.Flags().DurationVar(&electionMax, "election-timeout-max", 0, "election timeout upper bound (0 uses the default)")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat-interval", 0, "leader heartbeat interval (0 uses the default)")
	cmd.Flags().DurationVar(&rpcTimeout, "rpc-timeout", 0, "per-rpc deadline (0 uses the default)")
	cmd.Flags().DurationVar(&rpcBackoff, "rpc-backoff", 0, "peer retry backoff after rpc failure (0 uses the default)")
	cmd.Flags().BoolVar(&tlsEnable, "tls-enable", false, "enable mTLS for the coordination transport")
	cmd.Flags().StringVar(&tlsCA, "tls-ca", "", "path to CA cert (PEM)")
	cmd.Flags().StringVar(&tlsCert, "tls-cert", "", "path to node certificate (PEM)")
	cmd.Flags().StringVar(&tlsKey, "tls-key", "", "path to node private key (PEM)")
	cmd.Flags().BoolVar(&tlsSkip, "tls-skip-verify", false, "skip server cert verification (DEV ONLY)")
	cmd.Flags().StringVar(&tlsName, "tls-server-name", "", "expected server name (for TLS validation)")
	cmd.Flags().BoolVar(&traceEnable, "trace", false, "enable OpenTelemetry stdout tracing (dev)")
	return cmd
}

// NewStatusCmd returns the "status" command: an HTTP client against a
// running node's control address (--addr), printing its /status response.
func NewStatusCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running node's Raft status over its control address",
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := controlGet(addr, "/status")
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(append(body, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "node control address")
	return cmd
}

// NewProposeCmd returns the "propose" command: an HTTP client that posts a
// key/value pair to a running node's /propose endpoint. It exists to
// exercise the Log Entry Buffer end-to-end from the CLI; a real deployment
// proposes through the graph database's own write path instead.
func NewProposeCmd() *cobra.Command {
	var addr, key, value string
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a NODE_SET transaction against a running node",
		RunE: func(cmd *cobra.Command, args []string) error {
			if key == "" {
				return fmt.Errorf("missing --key")
			}
			reqBody, err := json.Marshal(struct {
				Key   string `json:"key"`
				Value string `json:"value"`
			}{Key: key, Value: value})
			if err != nil {
				return err
			}
			body, err := controlPost(addr, "/propose", reqBody)
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(append(body, '\n'))
			return err
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "http://localhost:8080", "node control address")
	cmd.Flags().StringVar(&key, "key", "", "node key to set (required)")
	cmd.Flags().StringVar(&value, "value", "", "payload value")
	return cmd
}

var controlClient = &http.Client{Timeout: 5 * time.Second}

func controlGet(addr, path string) ([]byte, error) {
	resp, err := controlClient.Get(addr + path)
	if err != nil {
		return nil, fmt.Errorf("cli: control request failed: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func controlPost(addr, path string, body []byte) ([]byte, error) {
	resp, err := controlClient.Post(addr+path, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("cli: control request failed: %w", err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("cli: control server returned %s: %s", resp.Status, out)
	}
	return out, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		<-ch
		cancel()
	}()
	return ctx, cancel
}
