package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/integrity-verifier/internal/config"
)

// GlobalConfig is the per-user configuration (~/.integrity-verifier/config.yaml)
type GlobalConfig struct {
	// RPC maps chain names to RPC URLs that replace the ones in suites
	RPC         map[string]string `yaml:"rpc,omitempty"`
	Concurrency int               `yaml:"concurrency,omitempty"`
}

func configDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".integrity-verifier"
	}
	return filepath.Join(home, ".integrity-verifier")
}

func globalConfigFile() string {
	if globalConfigPath != "" {
		return globalConfigPath
	}
	return filepath.Join(configDir(), "config.yaml")
}

// loadGlobalConfig reads path. A missing file is an empty config.
func loadGlobalConfig(path string) (*GlobalConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &GlobalConfig{}, nil
		}
		return nil, err
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func saveGlobalConfig(path string, cfg *GlobalConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// rpcSettings combines the environment (RPC_URL_<CHAIN>, RPC_REQUESTS_PER_SECOND,
// ...) with the global config. Environment overrides win.
func rpcSettings(global *GlobalConfig) (config.RPCConfig, error) {
	env, err := config.Load()
	if err != nil {
		return config.RPCConfig{}, err
	}
	rpc := env.RPC
	urls := make(map[string]string, len(global.RPC)+len(rpc.URLs))
	for chain, url := range global.RPC {
		urls[strings.ToLower(chain)] = url
	}
	for chain, url := range rpc.URLs {
		urls[chain] = url
	}
	rpc.URLs = urls
	return rpc, nil
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigShowCmd())
	cmd.AddCommand(createConfigSetRPCCmd())

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display the effective RPC configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd.OutOrStdout())
		},
	}
}

func createConfigSetRPCCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-rpc <chain> <url>",
		Short: "Store a default RPC URL for a chain",
		Long: `Store a default RPC URL for a chain in the global config.

URLs set here replace the rpcUrl of matching chains in every suite.
RPC_URL_<CHAIN> environment variables take precedence.

EXAMPLES:
  integrity-verifier config set-rpc linea-mainnet https://linea-mainnet.example.com
`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigSetRPC(cmd.OutOrStdout(), args[0], args[1])
		},
	}
}

func runConfigSetRPC(out io.Writer, chain, url string) error {
	path := globalConfigFile()
	cfg, err := loadGlobalConfig(path)
	if err != nil {
		return configError(err)
	}
	if cfg.RPC == nil {
		cfg.RPC = make(map[string]string)
	}
	cfg.RPC[strings.ToLower(chain)] = url
	if err := saveGlobalConfig(path, cfg); err != nil {
		return err
	}
	fmt.Fprintf(out, "Set %s RPC URL in %s\n", strings.ToLower(chain), path)
	return nil
}

func runConfigShow(out io.Writer) error {
	path := globalConfigFile()
	global, err := loadGlobalConfig(path)
	if err != nil {
		return configError(err)
	}
	rpc, err := rpcSettings(global)
	if err != nil {
		return configError(err)
	}

	fmt.Fprintf(out, "Global config: %s\n", path)
	if global.Concurrency > 0 {
		fmt.Fprintf(out, "  concurrency: %d\n", global.Concurrency)
	}
	fmt.Fprintln(out)

	fmt.Fprintln(out, "RPC overrides (environment wins over global config):")
	if len(rpc.URLs) == 0 {
		fmt.Fprintln(out, "  (none)")
	}
	names := make([]string, 0, len(rpc.URLs))
	for name := range rpc.URLs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %s: %s\n", name, rpc.URLs[name])
	}
	fmt.Fprintf(out, "\nRPC rate: %.1f req/s (burst %d), timeout %s\n", rpc.RequestsPerSecond, rpc.Burst, rpc.Timeout)
	return nil
}
