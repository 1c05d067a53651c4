// Command iauth-probe connects to an iauth authority as a single
// simulated client and prints the DoneAuth verdict it receives. A BadAuth
// rejection is only logged by adapter.LogRegistration; the probe then
// prints that it timed out once its deadline passes.
// It exists to exercise pkg/iauth/core and pkg/iauth/adapter end to end
// against a real authority without needing a full chat server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"

	"github.com/brookline/iauth/pkg/iauth/adapter"
	"github.com/brookline/iauth/pkg/iauth/core"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	opts, err := parseFlags()
	if err != nil {
		logger.Error("failed to parse flags", "error", err)
		os.Exit(1)
	}

	regCfg := core.RegistryConfig{ServerName: opts.serverName}
	connCfg := core.ConnConfig{
		Host:           opts.authHost,
		Port:           opts.authPort,
		Password:       opts.authPassword,
		ReconnectDelay: opts.reconnectDelay,
		RequestTimeout: opts.requestTimeout,
	}

	rt := adapter.NewRuntime(logger)
	reg, err := core.NewRegistry(regCfg, core.Collaborators{
		EventLoop:      rt,
		Resolver:       adapter.NewResolver(rt),
		Transport:      adapter.NewTransport(rt),
		Registration:   &adapter.LogRegistration{Logger: logger},
		OperatorNotify: &adapter.LogOperatorNotify{Logger: logger},
		Logger:         logger,
	})
	if err != nil {
		logger.Error("failed to build registry", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	go func() {
		if err := rt.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("runtime stopped", "error", err)
		}
	}()

	if _, err := adapter.SubmitWait(rt, func() (*core.Connection, error) {
		return reg.ConnectOrUpdate(connCfg)
	}); err != nil {
		logger.Error("connect failed", "error", err)
		os.Exit(1)
	}

	cl := adapter.NewDemoClient(opts.nick, opts.user, opts.sourceIP, opts.password, opts.gecos)
	_, err = adapter.SubmitWait(rt, func() (core.RequestHandle, error) {
		return reg.StartClient(cl)
	})
	if err != nil {
		logger.Error("start client failed", "error", err)
		os.Exit(1)
	}

	logger.Info("probe sent, waiting for verdict", "nick", opts.nick, "timeout", opts.requestTimeout)

	deadline := time.After(opts.requestTimeout + 2*time.Second)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-deadline:
			fmt.Println("timed out waiting for a verdict")
			return
		case <-ticker.C:
			if cl.Authorized() {
				fmt.Printf("authorized: username=%s host=%s account=%q\n",
					cl.ResolvedUsername(), cl.ResolvedHost(), cl.Account())
				return
			}
		}
	}
}

type cliOptions struct {
	serverName     string
	authHost       string
	authPort       uint16
	authPassword   string
	reconnectDelay time.Duration
	requestTimeout time.Duration

	nick     string
	user     string
	sourceIP string
	password string
	gecos    string
}

func parseFlags() (*cliOptions, error) {
	var (
		authPort       int
		reconnectDelay time.Duration
		requestTimeout time.Duration
		opts           cliOptions
	)

	pflag.StringVar(&opts.serverName, "server-name", "", "this server's own name, sent in the greeting (required)")
	pflag.StringVar(&opts.authHost, "auth-host", "", "iauth authority host or IP (required)")
	pflag.IntVar(&authPort, "auth-port", 0, "iauth authority port (required)")
	pflag.StringVar(&opts.authPassword, "auth-password", "", "password to send in the greeting, if any")
	pflag.DurationVar(&reconnectDelay, "reconnect-delay", 5*time.Second, "delay before retrying a dropped connection")
	pflag.DurationVar(&requestTimeout, "request-timeout", 10*time.Second, "how long to wait for a verdict before reconnecting")

	pflag.StringVar(&opts.nick, "nick", "guest", "simulated client's nickname")
	pflag.StringVar(&opts.user, "user", "guest", "simulated client's provisional username")
	pflag.StringVar(&opts.sourceIP, "source-ip", "127.0.0.1", "simulated client's source IP")
	pflag.StringVar(&opts.password, "password", "", "simulated client's connect password")
	pflag.StringVar(&opts.gecos, "gecos", "Probe Client", "simulated client's realname field")

	pflag.Parse()

	if opts.serverName == "" {
		return nil, fmt.Errorf("--server-name is required")
	}
	if opts.authHost == "" {
		return nil, fmt.Errorf("--auth-host is required")
	}
	if authPort <= 0 || authPort > 65535 {
		return nil, fmt.Errorf("--auth-port is required and must be a valid port")
	}

	opts.authPort = uint16(authPort)
	opts.reconnectDelay = reconnectDelay
	opts.requestTimeout = requestTimeout
	return &opts, nil
}
