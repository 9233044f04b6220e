package commands

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/opensundae/opensundae/pkg/content"
	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/opensundae/opensundae/pkg/pipeline"
	"github.com/opensundae/opensundae/pkg/policy"
	"github.com/opensundae/opensundae/pkg/providers/local"
	"github.com/opensundae/opensundae/pkg/recon"
	"github.com/opensundae/opensundae/pkg/stores"
	"github.com/opensundae/opensundae/pkg/telemetry"
	"github.com/opensundae/opensundae/pkg/transports/sftp"
)

// app holds everything one command invocation needs: the state store,
// the environment registry, the resolved target environment, and (for
// pipeline commands) the assembled pipeline. Close releases resources
// in reverse construction order.
type app struct {
	store    stores.Store
	registry *environ.Registry
	tel      *telemetry.Telemetry
	cfg      environ.EnvironmentConfig
	infra    *local.Provisioner
	pipeline *pipeline.Pipeline

	closers []func()
}

// Close releases the app's resources. Safe on a partially built app.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// runContext carries the operator identity and gate flags into the run.
func (a *app) runContext() pipeline.RunContext {
	return pipeline.RunContext{
		NonInteractive: nonInteractive,
		AutoApprove:    autoApprove,
		User:           currentUser(),
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}

// loadRegistry reads and validates the environment registry.
func loadRegistry() (*environ.Registry, error) {
	return environ.Load(configPath)
}

// openStore opens the state store under --state, creating and migrating
// it when needed.
func openStore(ctx context.Context) (stores.Store, error) {
	if err := os.MkdirAll(statePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory %s: %w", statePath, err)
	}

	store, err := stores.NewSQLiteStore(stores.Config{
		Path: filepath.Join(statePath, "state.db"),
	})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		store.Close()
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

// buildTelemetry assembles logging, tracing, and metrics for one
// invocation. Non-interactive runs get the CI profile (JSON logs).
func buildTelemetry(environment string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if nonInteractive {
		cfg = telemetry.CIConfig()
	}
	cfg.ServiceVersion = buildVersion
	cfg.Environment = environment
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if jsonOutput {
		// Keep stdout clean for the JSON result.
		cfg.Logging.Format = "json"
	}
	return telemetry.NewTelemetry(cfg)
}

// newStoreApp wires the store, registry, telemetry, and the local
// provisioning backend. Commands that only read or edit recorded state
// use this; pipeline commands build on it via newApp.
func newStoreApp(ctx context.Context) (*app, error) {
	registry, err := loadRegistry()
	if err != nil {
		return nil, err
	}

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	a := &app{store: store, registry: registry}
	a.closers = append(a.closers, func() { store.Close() })

	if envName != "" {
		a.cfg, err = registry.Get(envName)
	} else {
		a.cfg, err = registry.Current(ctx, store)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	a.tel, err = buildTelemetry(a.cfg.Name)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		a.tel.Shutdown(shutdownCtx)
	})

	a.infra, err = local.NewProvisioner(filepath.Join(statePath, "objects.json"), a.tel.Logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// newApp assembles the full deployment pipeline on top of newStoreApp.
// contentRoot may be empty for runs that do not read the content tree.
func newApp(ctx context.Context, contentRoot string) (*app, error) {
	a, err := newStoreApp(ctx)
	if err != nil {
		return nil, err
	}
	logger := a.tel.Logger

	var storage content.StorageBackend
	switch providerName {
	case "local":
		storage = local.NewStorage(filepath.Join(statePath, "deployed", a.cfg.Name), logger)
	case "sftp":
		sftpCfg, err := sftpConfigFromEnv()
		if err != nil {
			a.Close()
			return nil, err
		}
		backend, err := sftp.NewBackend(sftpCfg, logger)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, func() { backend.Close() })
		storage = backend
	default:
		a.Close()
		return nil, fmt.Errorf("unknown provider %q (known: local, sftp)", providerName)
	}

	archive, err := content.NewBlobArchive(filepath.Join(statePath, "archive"))
	if err != nil {
		a.Close()
		return nil, err
	}

	policies, err := policy.NewEngine(logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	if len(policyDirs) > 0 {
		if err := policies.LoadPolicies(ctx, policyDirs); err != nil {
			a.Close()
			return nil, err
		}
	}

	a.pipeline, err = pipeline.New(pipeline.Deps{
		Store:    a.store,
		Infra:    a.infra,
		Storage:  storage,
		CDN:      local.NewCDN(2, logger),
		Archive:  archive,
		Policies: policies,
		Logger:   logger,
		Metrics:  a.tel.Metrics,
		Tracer:   a.tel.Tracer,
	}, pipeline.Options{
		ContentRoot:  contentRoot,
		RegistryPath: a.registry.Path(),
		Apply:        recon.DefaultApplyOptions(),
		Confirm:      confirmPlan,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

// sftpConfigFromEnv builds the SFTP push target from SUNDAE_SFTP_*
// variables. Secrets stay out of flags and process listings; a missing
// password or key passphrase falls back to the OS keyring inside the
// transport.
func sftpConfigFromEnv() (*sftp.Config, error) {
	host := os.Getenv("SUNDAE_SFTP_HOST")
	deployUser := os.Getenv("SUNDAE_SFTP_USER")
	remoteRoot := os.Getenv("SUNDAE_SFTP_ROOT")
	if host == "" || deployUser == "" || remoteRoot == "" {
		return nil, fmt.Errorf("the sftp provider needs SUNDAE_SFTP_HOST, SUNDAE_SFTP_USER, and SUNDAE_SFTP_ROOT")
	}

	cfg := sftp.DefaultConfig(host, deployUser, remoteRoot)
	if port := os.Getenv("SUNDAE_SFTP_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid SUNDAE_SFTP_PORT %q: %w", port, err)
		}
		cfg.Port = p
	}
	if key := os.Getenv("SUNDAE_SFTP_KEY"); key != "" {
		cfg.PrivateKeyPath = key
	}
	if password := os.Getenv("SUNDAE_SFTP_PASSWORD"); password != "" {
		cfg.AuthMethod = sftp.AuthMethodPassword
		cfg.Password = password
	}
	if knownHosts := os.Getenv("SUNDAE_SFTP_KNOWN_HOSTS"); knownHosts != "" {
		cfg.KnownHostsPath = knownHosts
	}
	if os.Getenv("SUNDAE_SFTP_INSECURE") == "1" {
		cfg.StrictHostKeyChecking = false
	}
	return cfg, nil
}

// confirmPlan is the interactive gate between plan and apply. It shows
// the full plan; only an exact "yes" confirms it.
func confirmPlan(ctx context.Context, plan *recon.Plan) (bool, error) {
	fmt.Println()
	renderPlan(plan)
	fmt.Print("\nApply these changes? Only 'yes' will be accepted: ")

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}
	return strings.TrimSpace(line) == "yes", nil
}

// renderPlan prints the mutating steps of a plan, one line each.
func renderPlan(plan *recon.Plan) {
	for _, step := range plan.Steps {
		switch step.Op {
		case recon.OpCreate:
			fmt.Printf("  + %s\n", step.Address)
		case recon.OpUpdate:
			fmt.Printf("  ~ %s (%s)\n", step.Address, step.Reason)
		case recon.OpDestroy:
			fmt.Printf("  - %s (%s)\n", step.Address, step.Reason)
		}
	}
	fmt.Printf("\nPlan: %s\n", plan.Summary().String())
}

// renderPolicy prints policy findings under a plan.
func renderPolicy(result *policy.Result) {
	for _, v := range result.Violations {
		fmt.Printf("  ✗ %s: %s\n", v.Policy, v.Message)
	}
	for _, w := range result.Warnings {
		fmt.Printf("  ! %s: %s\n", w.Policy, w.Message)
	}
}

// printJSON writes v to stdout as indented JSON.
func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}
