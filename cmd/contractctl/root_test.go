package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/auditexport"
	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
)

func executeCommand(args ...string) (string, error) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const contractDoc = `{
  "id": "c-1",
  "status": "approved_by_parties",
  "parties": [
    {"identity": "consumer-b", "role": "consumer", "required": true},
    {"identity": "provider-a", "role": "provider", "required": true}
  ],
  "terms": {"purpose": "analytics", "retention_days": 30}
}`

func TestKeygenJSON(t *testing.T) {
	out, err := executeCommand("keygen", "--id", "provider-a", "--json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "provider-a", got["id"])
	seed, err := hex.DecodeString(got["private_key"])
	require.NoError(t, err)
	require.Len(t, seed, ed25519.SeedSize)
}

func TestKeygenRequiresID(t *testing.T) {
	_, err := executeCommand("keygen")
	require.Error(t, err)
}

func TestDigestMatchesService(t *testing.T) {
	path := writeFile(t, "contract.json", contractDoc)
	out, err := executeCommand("digest", path)
	require.NoError(t, err)

	want, err := canonical.ContractDigest(
		domain.Metadata{"purpose": "analytics", "retention_days": 30},
		[]domain.Party{
			{Identity: "provider-a", Role: domain.RoleProvider, Required: true},
			{Identity: "consumer-b", Role: domain.RoleConsumer, Required: true},
		},
	)
	require.NoError(t, err)
	assert.Equal(t, hex.EncodeToString(want), strings.TrimSpace(out))
}

func TestSignThenVerify(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 7
	priv := ed25519.NewKeyFromSeed(seed)
	keyPath := writeFile(t, "provider-a.key", hex.EncodeToString(seed)+"\n")
	contractPath := writeFile(t, "contract.json", contractDoc)

	sig, err := executeCommand("sign", "--key", keyPath, contractPath)
	require.NoError(t, err)
	sig = strings.TrimSpace(sig)

	pub := hex.EncodeToString(priv.Public().(ed25519.PublicKey))
	out, err := executeCommand("verify", "--public-key", pub, "--signature", sig, contractPath)
	require.NoError(t, err)
	assert.Equal(t, "OK", strings.TrimSpace(out))

	digest, err := executeCommand("digest", contractPath)
	require.NoError(t, err)
	out, err = executeCommand("verify", "--json", "--public-key", pub, "--signature", sig, "--digest", strings.TrimSpace(digest))
	require.NoError(t, err)
	assert.Contains(t, out, `"valid": true`)
}

func TestVerifyRejectsOtherKey(t *testing.T) {
	seed := make([]byte, ed25519.SeedSize)
	seed[0] = 1
	keyPath := writeFile(t, "a.key", hex.EncodeToString(seed))
	contractPath := writeFile(t, "contract.json", contractDoc)
	sig, err := executeCommand("sign", "--key", keyPath, contractPath)
	require.NoError(t, err)

	other := make([]byte, ed25519.SeedSize)
	other[0] = 2
	pub := hex.EncodeToString(ed25519.NewKeyFromSeed(other).Public().(ed25519.PublicKey))
	out, err := executeCommand("verify", "--public-key", pub, "--signature", strings.TrimSpace(sig), contractPath)
	require.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, "INVALID")
}

func TestSignNeedsExactlyOneDigestSource(t *testing.T) {
	keyPath := writeFile(t, "a.key", strings.Repeat("01", ed25519.SeedSize))
	contractPath := writeFile(t, "contract.json", contractDoc)

	_, err := executeCommand("sign", "--key", keyPath)
	require.Error(t, err)
	_, err = executeCommand("sign", "--key", keyPath, "--digest", strings.Repeat("ab", 32), contractPath)
	require.Error(t, err)
}

func TestAuditVerify(t *testing.T) {
	ctx := context.Background()
	log := audit.NewMemoryLog()
	rec := audit.NewRecorder()
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	entries := []audit.Entry{
		{ContractID: "c-1", Type: domain.AuditContractCreated, Actor: "provider-a", To: domain.StatusDraft, OccurredAt: at},
		{ContractID: "c-1", Type: domain.AuditSubmittedForReview, Actor: "provider-a", From: domain.StatusDraft, To: domain.StatusPendingReview, OccurredAt: at.Add(time.Minute)},
		{ContractID: "c-1", Type: domain.AuditTerminated, Actor: "provider-a", From: domain.StatusPendingReview, To: domain.StatusTerminated, OccurredAt: at.Add(2 * time.Minute), Details: domain.Metadata{"reason": "withdrawn"}},
	}
	for _, e := range entries {
		_, err := rec.Append(ctx, log, e)
		require.NoError(t, err)
	}
	events, err := rec.List(ctx, log, "c-1", audit.Range{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, auditexport.WriteNDJSON(&buf, events))
	path := writeFile(t, "trail.ndjson", buf.String())

	out, err := executeCommand("audit-verify", path)
	require.NoError(t, err)
	assert.Equal(t, "OK  3 events", strings.TrimSpace(out))

	tampered := strings.Replace(buf.String(), "withdrawn", "expired", 1)
	path = writeFile(t, "tampered.ndjson", tampered)
	out, err = executeCommand("audit-verify", "--json", path)
	require.ErrorIs(t, err, errVerificationFailed)
	assert.Contains(t, out, `"valid": false`)
}
