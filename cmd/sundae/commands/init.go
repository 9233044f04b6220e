package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/opensundae/opensundae/pkg/environ"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// starterRegistry is the environments.yaml scaffold. Both environments
// validate as written so `sundae plan` works immediately after editing
// the domains.
const starterRegistry = `# Environment registry for sundae.
# Each key is one deployable environment; the key is the environment name.
environments:
  staging:
    domain: staging.example.com
    storageBucketName: staging-example-site
    region: eu-central-1
    tags:
      team: web
  production:
    domain: example.com
    storageBucketName: example-site
    region: eu-central-1
    flags:
      enableHealthCheck: true
    tags:
      team: web
`

const starterIndex = `<!DOCTYPE html>
<html>
  <head><title>It works</title></head>
  <body><h1>Deployed with sundae</h1></body>
</html>
`

func newInitCommand() *cobra.Command {
	var contentRoot string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a sundae workspace",
		Long: `Initialize a workspace: the state store, the environment registry, and
a starter content tree.

Existing files are left alone, so init is safe to re-run.`,
		Example: `  # Initialize in the current directory
  sundae init

  # Initialize with a custom state directory and registry path
  sundae init --state /var/lib/sundae --config /etc/sundae/environments.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			log.Info().
				Str("state", statePath).
				Str("config", configPath).
				Msg("Initializing workspace")

			ctx := cmd.Context()

			fmt.Printf("Initializing sundae workspace\n\n")

			// Step 1: Create the state directory structure
			dirs := []string{
				statePath,
				filepath.Join(statePath, "archive"),
				filepath.Join(statePath, "deployed"),
			}
			for _, dir := range dirs {
				if err := os.MkdirAll(dir, 0o755); err != nil {
					return fmt.Errorf("failed to create directory %s: %w", dir, err)
				}
				fmt.Printf("✓ Created directory: %s\n", dir)
			}

			// Step 2: Initialize the state store
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			fmt.Printf("✓ Initialized state store: %s\n", filepath.Join(statePath, "state.db"))

			// Step 3: Write the starter environment registry
			if _, err := os.Stat(configPath); os.IsNotExist(err) {
				if err := os.WriteFile(configPath, []byte(starterRegistry), 0o644); err != nil {
					return fmt.Errorf("failed to write registry: %w", err)
				}
				fmt.Printf("✓ Created environment registry: %s\n", configPath)
			} else {
				fmt.Printf("✓ Environment registry already exists: %s\n", configPath)
			}

			// Step 4: Write a starter content tree
			indexPath := filepath.Join(contentRoot, "index.html")
			if _, err := os.Stat(indexPath); os.IsNotExist(err) {
				if err := os.MkdirAll(contentRoot, 0o755); err != nil {
					return fmt.Errorf("failed to create content directory %s: %w", contentRoot, err)
				}
				if err := os.WriteFile(indexPath, []byte(starterIndex), 0o644); err != nil {
					return fmt.Errorf("failed to write starter page: %w", err)
				}
				fmt.Printf("✓ Created starter content: %s\n", indexPath)
			} else {
				fmt.Printf("✓ Content already exists: %s\n", indexPath)
			}

			// Step 5: Render the registry and select a default environment
			registry, err := loadRegistry()
			if err != nil {
				return err
			}
			renderDir := filepath.Join(statePath, "rendered")
			rendered, err := renderEnvironments(registry, renderDir)
			if err != nil {
				return err
			}
			fmt.Printf("✓ Rendered %d environment(s): %s\n", len(rendered), renderDir)

			if current, err := store.GetCurrentEnvironment(ctx); err == nil && current == "" {
				names := registry.Names()
				if _, err := registry.Select(ctx, store, names[0]); err != nil {
					return err
				}
				fmt.Printf("✓ Selected environment: %s\n", names[0])
			}

			fmt.Printf("\nWorkspace initialized.\n\n")
			fmt.Printf("Next steps:\n")
			fmt.Printf("  1. Edit %s with your domains and buckets\n", configPath)
			fmt.Printf("  2. Preview the changes:\n")
			fmt.Printf("     sundae plan\n\n")
			fmt.Printf("  3. Deploy:\n")
			fmt.Printf("     sundae deploy\n\n")

			return nil
		},
	}

	cmd.Flags().StringVar(&contentRoot, "content", "public", "site content directory")

	return cmd
}

// renderEnvironments writes the deterministic JSON render of every
// environment, for diffing in CI.
func renderEnvironments(registry *environ.Registry, dir string) ([]string, error) {
	paths := make([]string, 0, len(registry.Names()))
	for _, cfg := range registry.List() {
		p, err := environ.WriteRendered(dir, cfg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}
