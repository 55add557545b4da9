package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/rpc"
	"github.com/pendergraft/integrity-verifier/internal/chains/evm/state"
	"github.com/pendergraft/integrity-verifier/internal/schemagen"
)

func createSlotCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slot",
		Short: "Storage slot calculators",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "erc7201 <namespace-id>",
		Short: "Print the ERC-7201 base slot of a namespace",
		Long: `Print the ERC-7201 base slot of a namespace:
keccak256(abi.encode(uint256(keccak256(id)) - 1)) & ~0xff

EXAMPLES:
  integrity-verifier slot erc7201 openzeppelin.storage.Initializable
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), state.Erc7201BaseSlot(rpc.NewCrypto(), args[0]).Hex())
			return nil
		},
	})

	return cmd
}

func createGenerateSchemaCmd() *cobra.Command {
	var output string
	var opts schemagen.Options

	cmd := &cobra.Command{
		Use:   "generate-schema <file.sol>...",
		Short: "Generate a storage schema from Solidity sources",
		Long: `Generate a storage schema from the ERC-7201 namespaced structs of Solidity
sources. Structs and enums may be declared in any of the given files.

The schema resolves storagePath checks such as "TokenStorage:totalSupply".

EXAMPLES:
  integrity-verifier generate-schema src/Token.sol src/TokenStorage.sol -o schemas/token.json
`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateSchema(cmd.OutOrStdout(), cmd.ErrOrStderr(), args, output, opts)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema to a file instead of stdout")
	cmd.Flags().StringVar(&opts.Comment, "comment", "", "$comment to embed in the schema")
	cmd.Flags().BoolVar(&opts.SkipConstantCheck, "skip-constant-check", false, "do not compare base slots with *StorageLocation constants")
	cmd.Flags().BoolVar(&opts.OmitZeroOffset, "omit-zero-offset", false, "omit byteOffset for the first field of a packed slot")

	return cmd
}

func runGenerateSchema(out, errOut io.Writer, files []string, output string, opts schemagen.Options) error {
	sources := make([]schemagen.Source, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return configError(fmt.Errorf("reading %s: %w", f, err))
		}
		sources = append(sources, schemagen.Source{Name: filepath.Base(f), Code: string(data)})
	}

	res := schemagen.New(rpc.NewCrypto(), opts).Generate(sources)
	for _, w := range res.Warnings {
		fmt.Fprintf(errOut, "⚠️  %s\n", w)
	}
	if len(res.Schema.Structs) == 0 {
		return fmt.Errorf("no ERC-7201 namespaced structs found")
	}

	// The generated schema must load the same way suites will load it
	if _, err := res.Schema.Parse(); err != nil {
		return fmt.Errorf("generated schema is invalid: %w", err)
	}

	data, err := res.Schema.JSON()
	if err != nil {
		return err
	}

	if output == "" {
		_, err := fmt.Fprintln(out, string(data))
		return err
	}
	if dir := filepath.Dir(output); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory: %w", err)
		}
	}
	if err := os.WriteFile(output, append(data, '\n'), 0644); err != nil {
		return fmt.Errorf("writing schema: %w", err)
	}
	fmt.Fprintf(out, "✅ Wrote %d struct(s) to %s\n", len(res.Schema.Structs), output)
	return nil
}

func createSelectorsCmd() *cobra.Command {
	var check bool

	cmd := &cobra.Command{
		Use:   "selectors <artifact.json>",
		Short: "List the function selectors of an artifact",
		Long: `List the function selectors of a Hardhat or Foundry artifact.

With --check, the selectors are also compared with the PUSH4 immediates of
the artifact's deployed bytecode.

EXAMPLES:
  integrity-verifier selectors out/Token.sol/Token.json
  integrity-verifier selectors artifacts/contracts/Token.sol/Token.json --check
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelectors(cmd.OutOrStdout(), args[0], check)
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "compare with the selectors in the deployed bytecode")

	return cmd
}

func runSelectors(out io.Writer, path string, check bool) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return configError(fmt.Errorf("reading artifact: %w", err))
	}
	artifact, err := evm.ParseArtifact(raw)
	if err != nil {
		return configError(err)
	}

	selectors := evm.SelectorsFromArtifact(rpc.NewCrypto(), artifact)
	keys := make([]string, 0, len(selectors))
	for sel := range selectors {
		keys = append(keys, sel)
	}
	sort.Strings(keys)
	for _, sel := range keys {
		fmt.Fprintf(out, "0x%s  %s\n", sel, selectors[sel])
	}

	if !check {
		return nil
	}
	code, err := artifact.DeployedCode()
	if err != nil {
		return err
	}
	res := evm.CompareSelectors(selectors, evm.SelectorsFromBytecode(code))
	fmt.Fprintf(out, "\n%s %s\n", res.Status.Icon(), res.Message)
	if res.Status == evm.StatusFail {
		return &exitError{code: ExitFailed, err: fmt.Errorf("selector check failed")}
	}
	return nil
}
