package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/reqx/packages/core/config"
	"github.com/abdul-hamid-achik/reqx/packages/core/env"
)

var (
	forceInit      bool
	initFormatFlag string
)

var initCmd = &cobra.Command{
	Use:   "init [directory]",
	Short: "Initialize a new reqx project",
	Long: `Initialize a new reqx project in the current (or given) directory.

This creates:
  - .reqx/config.toml            - Project configuration
  - .reqx/environments/dev.toml  - The "dev" environment
  - health.reqx                  - Example request

Examples:
  reqx init
  reqx init --format yaml
  reqx init ./api-tests --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: initCommand,
}

func init() {
	initCmd.Flags().BoolVarP(&forceInit, "force", "f", false, "Overwrite existing files")
	initCmd.Flags().StringVar(&initFormatFlag, "format", "toml", "Config and environment file format: toml, yaml")
}

const exampleRequest = `# Checks that the API is up. Run it with:
#   reqx run health.reqx --env dev

[request]
name = "health"
method = "GET"
url = "{{base_url}}/health"
timeout = "5s"

[headers]
Accept = "application/json"
X-Request-Id = "{{$uuid}}"

[assert]
status = 200
"headers.content-type" = "~application/json"
"body.status" = "ok"

[post-response]
version = "res.body.version"
`

func initCommand(cmd *cobra.Command, args []string) error {
	root := "."
	if len(args) == 1 {
		root = args[0]
	}

	var ext string
	switch initFormatFlag {
	case "toml":
		ext = ".toml"
	case "yaml", "yml":
		ext = ".yaml"
	default:
		return config.Errorf("", "unknown init format %q (want toml or yaml)", initFormatFlag)
	}

	projectDir := filepath.Join(root, config.DirName)
	configFile := filepath.Join(projectDir, "config"+ext)
	envFile := filepath.Join(projectDir, env.EnvironmentsDir, "dev"+ext)
	exampleFile := filepath.Join(root, "health.reqx")

	if !forceInit {
		for _, f := range []string{configFile, envFile, exampleFile} {
			if _, err := os.Stat(f); err == nil {
				return fmt.Errorf("file already exists: %s (use --force to overwrite)", f)
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(envFile), 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", projectDir, err)
	}

	cfg := config.DefaultConfig()
	cfg.HTTP.Headers = map[string]string{"User-Agent": "reqx/" + version}
	cfg.Variables = map[string]any{"api_version": "v1"}

	devEnv := map[string]any{
		"variables": map[string]any{
			"base_url": "http://localhost:3000",
			"token":    "${API_TOKEN:-dev-token}",
		},
	}

	files := []struct {
		path  string
		value any
	}{
		{configFile, cfg},
		{envFile, devEnv},
	}
	for _, f := range files {
		data, err := encodeProjectFile(f.path, f.value)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", f.path, err)
		}
		if err := os.WriteFile(f.path, data, 0o644); err != nil {
			return fmt.Errorf("failed to create %s: %w", f.path, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", f.path)
	}

	if err := os.WriteFile(exampleFile, []byte(exampleRequest), 0o644); err != nil {
		return fmt.Errorf("failed to create example file: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created: %s\n", exampleFile)

	fmt.Fprintf(cmd.OutOrStdout(), "\nNext: reqx run %s --env dev\n", exampleFile)
	return nil
}

func encodeProjectFile(path string, v any) ([]byte, error) {
	if filepath.Ext(path) == ".yaml" {
		return yaml.Marshal(v)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
