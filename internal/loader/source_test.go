package loader

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/chains/evm"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

const (
	hardhatToken = `{"contractName":"Token","abi":[],"bytecode":"0x6000","deployedBytecode":"0x6001"}`
	foundryVault = `{"abi":[],"bytecode":{"object":"0x6002"},"deployedBytecode":{"object":"0x6003"}}`
	tokenSchema  = `{"structs":{"TokenStorage":{"namespace":"example.token","fields":[{"name":"totalSupply","type":"uint256"}]}}}`
)

func TestFileSource_Artifact(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "artifacts/Token.json", hardhatToken)

	src := NewFileSource(dir)
	a, err := src.Artifact(domain.Contract{ArtifactFile: "artifacts/Token.json"})
	require.NoError(t, err)
	assert.Equal(t, evm.FormatHardhat, a.Format)
	assert.Equal(t, "6001", a.DeployedBytecode)

	again, err := src.Artifact(domain.Contract{ArtifactFile: "artifacts/Token.json"})
	require.NoError(t, err)
	assert.Same(t, a, again)
}

func TestFileSource_ResolvesContractNames(t *testing.T) {
	t.Run("foundry", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "foundry.toml", "[profile.default]\n")
		writeFile(t, dir, "out/Vault.sol/Vault.json", foundryVault)

		a, err := NewFileSource(dir).Artifact(domain.Contract{ArtifactFile: "Vault"})
		require.NoError(t, err)
		assert.Equal(t, evm.FormatFoundry, a.Format)
		assert.Equal(t, "6003", a.DeployedBytecode)
	})

	t.Run("hardhat", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "hardhat.config.ts", "export default {}\n")
		writeFile(t, dir, "artifacts/contracts/Token.sol/Token.json", hardhatToken)

		a, err := NewFileSource(dir).Artifact(domain.Contract{ArtifactFile: "Token"})
		require.NoError(t, err)
		assert.Equal(t, "Token", a.ContractName)
	})
}

func TestFileSource_Schema(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "schemas/token.json", tokenSchema)
	src := NewFileSource(dir)

	sc, err := src.Schema(domain.Contract{})
	require.NoError(t, err)
	assert.Nil(t, sc)

	sc, err = src.Schema(domain.Contract{State: &domain.StateConfig{SchemaFile: "schemas/token.json"}})
	require.NoError(t, err)
	require.Contains(t, sc.Structs, "TokenStorage")

	_, err = src.Schema(domain.Contract{State: &domain.StateConfig{SchemaFile: "schemas/missing.json"}})
	assert.Error(t, err)
}

func TestFileSource_Concurrent(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Token.json", hardhatToken)
	src := NewFileSource(dir)

	var wg sync.WaitGroup
	results := make([]*evm.Artifact, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a, err := src.Artifact(domain.Contract{ArtifactFile: "Token.json"})
			if err == nil {
				results[i] = a
			}
		}(i)
	}
	wg.Wait()

	for _, a := range results {
		assert.Same(t, results[0], a)
	}
}
