package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		path    string
		want    Format
		wantErr bool
	}{
		{path: "suite.json", want: FormatJSON},
		{path: "suite.YAML", want: FormatYAML},
		{path: "suite.yml", want: FormatYAML},
		{path: "suite.toml", want: FormatTOML},
		{path: "README.md", want: FormatMarkdown},
		{path: "suite.ini", wantErr: true},
		{path: "suite", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := DetectFormat(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrUnsupportedFormat)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

const jsonSuite = `{
  "name": "mainnet",
  "chains": {
    "local": {"chainId": 31337, "rpcUrl": "${LOADER_TEST_RPC}"}
  },
  "contracts": [
    {
      "name": "Token",
      "chain": "linea-mainnet",
      "address": "0x00000000000000000000000000000000000000aa",
      "artifactFile": "out/Token.sol/Token.json",
      "constructorArgs": [1000000000000000000000000, "Token"],
      "stateVerification": {
        "viewCalls": [{"function": "totalSupply", "expected": 42}]
      }
    },
    {
      "name": "Vault",
      "chain": "local",
      "address": "0x00000000000000000000000000000000000000bb",
      "artifactFile": "Vault.json"
    }
  ]
}`

func TestParse_JSON(t *testing.T) {
	t.Setenv("LOADER_TEST_RPC", "http://127.0.0.1:8545")

	suite, err := Parse([]byte(jsonSuite), FormatJSON)
	require.NoError(t, err)

	assert.Equal(t, "mainnet", suite.Name)
	require.Len(t, suite.Contracts, 2)

	local := suite.Chains["local"]
	assert.Equal(t, "local", local.Name)
	assert.Equal(t, uint64(31337), local.ChainID)
	assert.Equal(t, "http://127.0.0.1:8545", local.RPCURL)

	linea, ok := suite.Chains["linea-mainnet"]
	require.True(t, ok, "default chain should be added")
	assert.Equal(t, uint64(59144), linea.ChainID)

	token := suite.Contracts[0]
	assert.Equal(t, []any{"1000000000000000000000000", "Token"}, token.ConstructorArgs)
	require.NotNil(t, token.State)
	assert.Equal(t, "42", token.State.ViewCalls[0].Expected)
}

func TestParse_YAML(t *testing.T) {
	data := `
contracts:
  - name: Token
    chain: ethereum-sepolia
    address: "0x00000000000000000000000000000000000000aa"
    artifactFile: Token.json
    isProxy: true
    stateVerification:
      ozVersion: "5"
      initializedVersion: 1
      slots:
        - slot: "0x0"
          type: address
          name: owner
          expected: "0x00000000000000000000000000000000000000cc"
      storagePaths:
        - path: "TokenStorage:totalSupply"
          expected: "100"
          comparison: gte
`
	suite, err := Parse([]byte(data), FormatYAML)
	require.NoError(t, err)

	require.Len(t, suite.Contracts, 1)
	c := suite.Contracts[0]
	assert.True(t, c.IsProxy)
	require.NotNil(t, c.State)
	require.NotNil(t, c.State.InitializedVersion)
	assert.Equal(t, uint64(1), *c.State.InitializedVersion)
	assert.Equal(t, "address", c.State.Slots[0].Type)
	assert.Equal(t, "gte", string(c.State.StoragePaths[0].Comparison))
	assert.Equal(t, uint64(11155111), suite.Chains["ethereum-sepolia"].ChainID)
}

func TestParse_TOML(t *testing.T) {
	data := `
name = "staging"

[chains.devnet]
chainId = 1337
rpcUrl = "http://localhost:8545"

[[contracts]]
name = "Token"
chain = "devnet"
address = "0x00000000000000000000000000000000000000aa"
artifactFile = "Token.json"

[contracts.libraries]
MathLib = "0x00000000000000000000000000000000000000dd"
`
	suite, err := Parse([]byte(data), FormatTOML)
	require.NoError(t, err)

	assert.Equal(t, "staging", suite.Name)
	require.Len(t, suite.Contracts, 1)
	assert.Equal(t, "0x00000000000000000000000000000000000000dd", suite.Contracts[0].Libraries["MathLib"])
	assert.Equal(t, chains.Config{Name: "devnet", ChainID: 1337, RPCURL: "http://localhost:8545"}, suite.Chains["devnet"])
}

func TestParse_Errors(t *testing.T) {
	t.Run("missing env var", func(t *testing.T) {
		_, err := Parse([]byte(`{"chains":{"a":{"rpcUrl":"${LOADER_TEST_UNSET_B}/${LOADER_TEST_UNSET_A}"}}}`), FormatJSON)
		assert.ErrorIs(t, err, ErrMissingEnv)
		assert.Contains(t, err.Error(), "LOADER_TEST_UNSET_A, LOADER_TEST_UNSET_B")
	})

	t.Run("bad JSON", func(t *testing.T) {
		_, err := Parse([]byte(`{`), FormatJSON)
		assert.Error(t, err)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := Parse([]byte(`{}`), Format("xml"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)
	})
}

func TestExpandEnv(t *testing.T) {
	env := map[string]string{"HOST": "rpc.example.com", "EMPTY": ""}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	out, err := ExpandEnv([]byte(`https://${HOST}/x${EMPTY} $HOST __$abc$__`), lookup)
	require.NoError(t, err)
	assert.Equal(t, `https://rpc.example.com/x $HOST __$abc$__`, string(out))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "linea-prod.json", `{"contracts":[{"name":"Token","chain":"linea-mainnet","address":"0x00000000000000000000000000000000000000aa","artifactFile":"Token.json"}]}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "linea-prod", cfg.Suite.Name)
	assert.Equal(t, FormatJSON, cfg.Format)
	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, dir, cfg.Source().Dir)

	_, err = Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestFileSource_Errors(t *testing.T) {
	src := NewFileSource(t.TempDir())

	_, err := src.Artifact(domain.Contract{ArtifactFile: "missing.json"})
	assert.True(t, errors.Is(err, chains.ErrArtifactNotFound))

	_, err = src.Artifact(domain.Contract{})
	assert.ErrorIs(t, err, chains.ErrArtifactNotFound)

	_, err = src.Artifact(domain.Contract{ArtifactFile: "Token"})
	assert.Error(t, err, "bare names need a Foundry or Hardhat project")
}
