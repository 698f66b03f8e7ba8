package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/animus-labs/animus-contracts/internal/audit"
	"github.com/animus-labs/animus-contracts/internal/auditexport"
	"github.com/animus-labs/animus-contracts/internal/canonical"
	"github.com/animus-labs/animus-contracts/internal/domain"
	"github.com/animus-labs/animus-contracts/internal/identity"
	"github.com/animus-labs/animus-contracts/internal/signing"
)

var errVerificationFailed = errors.New("verification failed")

type cli struct {
	jsonOutput bool
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "contractctl",
		Short: "Offline tooling for multi-party contracts",
		Long: `contractctl generates ed25519 identities, computes the digest parties
sign, produces and checks signatures, and verifies exported audit trails.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&c.jsonOutput, "json", false, "output in JSON format")
	root.AddCommand(
		c.keygenCmd(),
		c.digestCmd(),
		c.signCmd(),
		c.verifyCmd(),
		c.auditVerifyCmd(),
	)
	return root
}

func (c *cli) output(cmd *cobra.Command, v any, text string) error {
	out := cmd.OutOrStdout()
	if !c.jsonOutput {
		_, err := fmt.Fprintln(out, text)
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) keygenCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 identity",
		Long: `Generate an ed25519 identity.

Prints the private seed (hex, keep it secret) and a keyring entry to add to
the file named by IDENTITY_KEYRING_FILE.

Examples:
  contractctl keygen --id provider-a
  contractctl keygen --id consumer-b --name "Consumer B" --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			id = strings.TrimSpace(id)
			if id == "" {
				return errors.New("--id is required")
			}
			pub, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return fmt.Errorf("generate key: %w", err)
			}
			entry := identity.KeyringEntry{ID: id, PublicKey: signing.Encode(pub), DisplayName: name}
			snippet, err := yaml.Marshal([]identity.KeyringEntry{entry})
			if err != nil {
				return fmt.Errorf("encode keyring entry: %w", err)
			}
			seed := hex.EncodeToString(priv.Seed())
			return c.output(cmd, map[string]any{
				"id":          id,
				"private_key": seed,
				"public_key":  entry.PublicKey,
			}, fmt.Sprintf("private_key: %s\n\n%s", seed, strings.TrimRight(string(snippet), "\n")))
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "identity id")
	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

// contractFile is the signable subset of a contract document, as returned by
// GET /contracts/{id}.
type contractFile struct {
	Parties []domain.Party  `json:"parties"`
	Terms   domain.Metadata `json:"terms"`
}

func readContractDigest(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	dec.UseNumber()
	var doc contractFile
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := domain.ValidateParties(doc.Parties); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return canonical.ContractDigest(doc.Terms, doc.Parties)
}

func (c *cli) digestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "digest <contract.json>",
		Short: "Compute the digest parties sign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := readContractDigest(args[0])
			if err != nil {
				return err
			}
			text := hex.EncodeToString(digest)
			return c.output(cmd, map[string]any{"algorithm": "sha256", "digest": text}, text)
		},
	}
}

func readKey(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(raw)), nil
}

func (c *cli) signCmd() *cobra.Command {
	var keyFile, digestText string
	cmd := &cobra.Command{
		Use:   "sign [<contract.json>]",
		Short: "Sign a contract digest",
		Long: `Sign a contract digest with a private key.

The digest is taken from --digest or computed from a contract document.

Examples:
  contractctl sign --key provider-a.key contract.json
  contractctl sign --key provider-a.key --digest 9f86d0...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := digestFromInput(digestText, args)
			if err != nil {
				return err
			}
			keyText, err := readKey(keyFile)
			if err != nil {
				return fmt.Errorf("read key: %w", err)
			}
			priv, err := signing.ParsePrivateKey(keyText)
			if err != nil {
				return err
			}
			sig, err := signing.Sign(priv, digest)
			if err != nil {
				return err
			}
			text := signing.Encode(sig)
			return c.output(cmd, map[string]any{
				"digest":    hex.EncodeToString(digest),
				"signature": text,
			}, text)
		},
	}
	cmd.Flags().StringVar(&keyFile, "key", "", "file holding the private key or seed")
	cmd.Flags().StringVar(&digestText, "digest", "", "digest to sign (hex or base64)")
	_ = cmd.MarkFlagRequired("key")
	return cmd
}

func (c *cli) verifyCmd() *cobra.Command {
	var publicKey, digestText, signature string
	cmd := &cobra.Command{
		Use:   "verify [<contract.json>]",
		Short: "Verify a signature over a contract digest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			digest, err := digestFromInput(digestText, args)
			if err != nil {
				return err
			}
			pub, err := signing.ParsePublicKey(publicKey)
			if err != nil {
				return err
			}
			sig, err := signing.DecodeSignature(signature)
			if err != nil {
				return err
			}
			verr := signing.Verify(pub, digest, sig)
			result := map[string]any{"digest": hex.EncodeToString(digest), "valid": verr == nil}
			text := "OK"
			if verr != nil {
				result["error"] = verr.Error()
				text = "INVALID: " + verr.Error()
			}
			if err := c.output(cmd, result, text); err != nil {
				return err
			}
			if verr != nil {
				return errVerificationFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&publicKey, "public-key", "", "signer public key (base64 or hex)")
	cmd.Flags().StringVar(&digestText, "digest", "", "signed digest (hex or base64)")
	cmd.Flags().StringVar(&signature, "signature", "", "signature (base64 or hex)")
	_ = cmd.MarkFlagRequired("public-key")
	_ = cmd.MarkFlagRequired("signature")
	return cmd
}

func digestFromInput(digestText string, args []string) ([]byte, error) {
	switch {
	case strings.TrimSpace(digestText) != "" && len(args) > 0:
		return nil, errors.New("pass either --digest or a contract document, not both")
	case strings.TrimSpace(digestText) != "":
		return signing.DecodeDigest(digestText)
	case len(args) == 1:
		return readContractDigest(args[0])
	default:
		return nil, errors.New("a digest or a contract document is required")
	}
}

func (c *cli) auditVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "audit-verify <trail.ndjson>",
		Short: "Verify the hash chain of an exported audit trail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}
			events, err := auditexport.ReadNDJSON(in)
			if err != nil {
				return err
			}
			result := map[string]any{"events": len(events), "valid": true}
			text := fmt.Sprintf("OK  %d events", len(events))
			if len(events) > 0 {
				result["head_sha256"] = events[len(events)-1].IntegritySHA256
			}
			verr := audit.VerifyChain(events)
			if verr != nil {
				result["valid"] = false
				result["error"] = verr.Error()
				text = "TAMPERED  " + verr.Error()
			}
			if err := c.output(cmd, result, text); err != nil {
				return err
			}
			if verr != nil {
				return errVerificationFailed
			}
			return nil
		},
	}
}
