//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/integrity-verifier/internal/storage"
	"github.com/pendergraft/integrity-verifier/pkg/client"
)

func TestHealth(t *testing.T) {
	require.NoError(t, newClient().Ready(context.Background()))
}

func TestVerify_PassingContractIsStored(t *testing.T) {
	c := newClient()
	ctx := context.Background()

	resp, err := c.Verify(ctx, tokenRequest(t, "e2e-pass", tokenAddress))
	require.NoError(t, err)

	assert.Equal(t, 1, resp.Summary.Total)
	assert.Zero(t, resp.Summary.Failed)
	require.Len(t, resp.Summary.Results, 1)
	r := resp.Summary.Results[0]
	require.NotNil(t, r.Bytecode)
	assert.NotEqual(t, "fail", r.Bytecode.Status)
	require.NotNil(t, r.ABI)
	assert.Equal(t, "pass", r.ABI.Status)
	require.NotNil(t, r.State)
	assert.Equal(t, "pass", r.State.Status)

	require.NotEmpty(t, resp.RunID)
	run, err := c.GetRun(ctx, resp.RunID)
	require.NoError(t, err)
	assert.Equal(t, "e2e-pass", run.ConfigName)
	assert.Equal(t, storage.OutcomePassed, run.Outcome)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 1, run.Summary.Total)
}

func TestVerify_MissingCodeFails(t *testing.T) {
	c := newClient()

	resp, err := c.Verify(context.Background(), tokenRequest(t, "e2e-fail", emptyAddress))
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Summary.Failed)

	runs, err := c.ListRuns(context.Background(), client.ListRunsOptions{Config: "e2e-fail", Outcome: storage.OutcomeFailed})
	require.NoError(t, err)
	require.NotEmpty(t, runs.Data)
	assert.Equal(t, resp.RunID, runs.Data[0].ID)
}

func TestVerify_InvalidSuite(t *testing.T) {
	req := tokenRequest(t, "e2e-invalid", tokenAddress)
	req.Suite.Contracts[0].Address = ""

	_, err := newClient().Verify(context.Background(), req)
	assertAPIError(t, err, "INVALID_REQUEST")
}

func TestVerify_InvalidArtifact(t *testing.T) {
	req := tokenRequest(t, "e2e-artifact", tokenAddress)
	req.Artifacts["Token.json"] = []byte(`{"abi":[]}`)

	_, err := newClient().Verify(context.Background(), req)
	assertAPIError(t, err, "INVALID_ARTIFACT")
}

func TestRuns_Pagination(t *testing.T) {
	c := newClient()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.Verify(ctx, tokenRequest(t, "e2e-paged", tokenAddress))
		require.NoError(t, err)
	}

	first, err := c.ListRuns(ctx, client.ListRunsOptions{Config: "e2e-paged", Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Data, 2)
	require.True(t, first.Pagination.HasMore)

	second, err := c.ListRuns(ctx, client.ListRunsOptions{Config: "e2e-paged", Limit: 2, Cursor: first.Pagination.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Data, 1)
	assert.False(t, second.Pagination.HasMore)

	seen := map[string]bool{}
	for _, r := range append(first.Data, second.Data...) {
		assert.False(t, seen[r.ID], "run listed twice")
		seen[r.ID] = true
	}

	_, err = c.ListRuns(ctx, client.ListRunsOptions{Cursor: "not-a-cursor"})
	assertAPIError(t, err, "INVALID_REQUEST")
}

func TestRuns_NotFound(t *testing.T) {
	_, err := newClient().GetRun(context.Background(), "00000000-0000-0000-0000-000000000000")
	assertAPIError(t, err, "NOT_FOUND")
}

func TestErc7201Slot(t *testing.T) {
	slot, err := newClient().Erc7201Slot(context.Background(), "openzeppelin.storage.Initializable")
	require.NoError(t, err)
	assert.Equal(t, "0xf0c57e16840df040f15088dc2f81fe391c3923bec73e23a9662efc9c229c6a00", slot)
}

func TestChains(t *testing.T) {
	list, err := newClient().Chains(context.Background())
	require.NoError(t, err)

	ids := map[string]uint64{}
	for _, ch := range list {
		ids[ch.Name] = ch.ChainID
	}
	assert.Equal(t, uint64(59144), ids["linea-mainnet"])
	assert.Equal(t, uint64(1), ids["ethereum-mainnet"])
}
