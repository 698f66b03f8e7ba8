// Package canonical produces stable byte encodings and digests of contract
// content. The same logical content always yields the same bytes: object keys
// are sorted, there is no insignificant whitespace, and parties are ordered by
// identity before hashing.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/animus-labs/animus-contracts/internal/domain"
)

// DigestSize is the width of a contract digest in bytes.
const DigestSize = sha256.Size

// Marshal produces deterministic JSON for v.
func Marshal(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical marshal: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical decode: %w", err)
	}
	var buf bytes.Buffer
	if err := write(&buf, generic); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func write(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := write(buf, val[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := write(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case json.Number:
		buf.WriteString(val.String())
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		buf.Write(raw)
	}
	return nil
}

// Sum returns the SHA-256 of the canonical encoding of v.
func Sum(v any) ([]byte, error) {
	b, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(b)
	return sum[:], nil
}

// SumHex is Sum encoded as lowercase hex.
func SumHex(v any) (string, error) {
	sum, err := Sum(v)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

type content struct {
	Parties []domain.Party  `json:"parties"`
	Terms   domain.Metadata `json:"terms"`
}

// ContractDigest hashes the signable content of a contract: its terms and
// its party list. Title, status and timestamps are not part of the digest.
func ContractDigest(terms domain.Metadata, parties []domain.Party) ([]byte, error) {
	sorted := append([]domain.Party(nil), parties...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Identity < sorted[j].Identity })
	if terms == nil {
		terms = domain.Metadata{}
	}
	return Sum(content{Parties: sorted, Terms: terms})
}

// Digest is ContractDigest applied to c.
func Digest(c domain.Contract) ([]byte, error) {
	return ContractDigest(c.Terms, c.Parties)
}
