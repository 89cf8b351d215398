package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	sessionguard "github.com/MrEthical07/sessionguard"
	"github.com/MrEthical07/sessionguard/auth"
	"github.com/MrEthical07/sessionguard/gate"
	promexport "github.com/MrEthical07/sessionguard/metrics/export/prometheus"
	"github.com/alicebob/miniredis/v2"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const usage = `usage: sessionguard [-env file] <command> [flags]

commands:
  status         bootstrap the persisted session and print the resulting state and route
  signin         sign in with email and password and persist the session
  signout        sign out (scope local, global or others)
  serve-metrics  keep a guard running and serve /metrics
`

func main() {
	envFile := flag.String("env", ".env", "dotenv file to load if present")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load %s: %v\n", *envFile, err)
		os.Exit(2)
	}

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "status":
		err = runStatus(ctx, args[1:])
	case "signin":
		err = runSignIn(ctx, args[1:])
	case "signout":
		err = runSignOut(ctx, args[1:])
	case "serve-metrics":
		err = runServeMetrics(ctx, args[1:])
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", args[0], err)
		os.Exit(1)
	}
}

// app bundles what every command needs.
type app struct {
	cfg    sessionguard.Config
	log    *logrus.Logger
	client *auth.Client
	close  func()
}

func setup(ctx context.Context) (*app, error) {
	cfg := sessionguard.ConfigFromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log, err := sessionguard.NewLogger(cfg.Log, os.Stderr)
	if err != nil {
		return nil, err
	}

	cleanup := func() {}
	if cfg.Storage.Kind == sessionguard.StorageRedis && cfg.Storage.RedisAddr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			return nil, fmt.Errorf("start miniredis: %w", err)
		}
		cfg.Storage.RedisAddr = mr.Addr()
		cleanup = mr.Close
		log.WithField("addr", mr.Addr()).Warn("REDIS_ADDR not set, using in-process miniredis; sessions will not survive exit")
	}

	store, closeStore, err := sessionguard.OpenStore(ctx, cfg.Storage)
	if err != nil {
		cleanup()
		return nil, err
	}
	client, err := sessionguard.NewAuthClient(cfg, store, log)
	if err != nil {
		_ = closeStore()
		cleanup()
		return nil, err
	}
	if !client.Configured() {
		log.Warnf("%s or %s not set, running without a backend", sessionguard.EnvBackendURL, sessionguard.EnvAnonKey)
	}

	return &app{
		cfg:    cfg,
		log:    log,
		client: client,
		close: func() {
			_ = closeStore()
			cleanup()
		},
	}, nil
}

func (a *app) buildGuard() (*sessionguard.Guard, error) {
	return sessionguard.New().
		WithConfig(a.cfg).
		WithAuthClient(a.client).
		WithLogger(a.log).
		Build()
}

func (a *app) gate() *gate.Gate {
	if !a.client.Configured() {
		return gate.New(nil, a.log)
	}
	profiles, err := gate.NewRESTProfiles(a.cfg.Backend.URL, a.cfg.Backend.AnonKey, nil)
	if err != nil {
		a.log.WithError(err).Warn("profile lookups disabled")
		return gate.New(nil, a.log)
	}
	return gate.New(profiles, a.log)
}

func runStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	timeout := fs.Duration("timeout", 15*time.Second, "maximum time to wait for the bootstrap")
	showMetrics := fs.Bool("metrics", false, "print guard metrics after the bootstrap")
	_ = fs.Parse(args)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	g, err := a.buildGuard()
	if err != nil {
		return err
	}
	defer g.Close()

	if err := g.Start(ctx); err != nil {
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	st, err := g.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("bootstrap did not finish: %w", err)
	}

	report, _ := g.LastBootstrap()
	fmt.Printf("outcome:   %s\n", report.Outcome)
	fmt.Printf("attempts:  %d\n", report.Attempts)
	fmt.Printf("duration:  %s\n", report.Duration.Round(time.Millisecond))
	if st.Session != nil {
		fmt.Printf("user:      %s\n", st.Session.UserID())
		fmt.Printf("expires:   %s\n", time.Unix(st.Session.ExpiresAt, 0).Format(time.RFC3339))
	} else {
		fmt.Println("user:      (signed out)")
	}

	route, err := a.gate().Resolve(ctx, a.client.Configured(), st)
	if err != nil {
		a.log.WithError(err).Warn("route resolved without profile")
	}
	fmt.Printf("route:     %s\n", route)

	if *showMetrics {
		fmt.Print(promexport.NewPrometheusExporter(g).Render())
	}
	return nil
}

func runSignIn(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("SESSIONGUARD_PASSWORD"), "account password (defaults to $SESSIONGUARD_PASSWORD)")
	_ = fs.Parse(args)

	if *email == "" || *password == "" {
		return errors.New("-email and -password are required")
	}

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	sess, err := a.client.SignInWithPassword(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("signed in as %s (expires %s)\n", sess.UserID(), time.Unix(sess.ExpiresAt, 0).Format(time.RFC3339))
	return nil
}

func runSignOut(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("signout", flag.ExitOnError)
	scope := fs.String("scope", string(auth.ScopeLocal), "local, global or others")
	_ = fs.Parse(args)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.client.SignOut(ctx, auth.SignOutScope(*scope)); err != nil {
		return err
	}
	fmt.Printf("signed out (%s)\n", *scope)
	return nil
}

func runServeMetrics(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve-metrics", flag.ExitOnError)
	addr := fs.String("addr", ":9464", "listen address")
	_ = fs.Parse(args)

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	g, err := a.buildGuard()
	if err != nil {
		return err
	}
	defer g.Close()

	unwatch := g.Watch(func(st sessionguard.State) {
		a.log.WithFields(logrus.Fields{
			"loading":   st.IsLoading,
			"signed_in": st.SignedIn(),
		}).Info("session state changed")
	})
	defer unwatch()

	if err := g.Start(ctx); err != nil {
		return err
	}
	if a.cfg.Backend.AutoRefresh && a.client.Configured() {
		stopRefresh := a.client.StartAutoRefresh(ctx)
		defer stopRefresh()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promexport.NewPrometheusExporter(g).Handler())
	srv := &http.Server{Addr: *addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	a.log.WithField("addr", *addr).Info("serving metrics")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
