package identity

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/animus-labs/animus-contracts/internal/signing"
)

const KeyringSchemaV1 = "animus.keyring.v1"

// KeyringSpec is the on-disk keyring document.
type KeyringSpec struct {
	Schema     string         `yaml:"schema"`
	Identities []KeyringEntry `yaml:"identities"`
}

type KeyringEntry struct {
	ID          string `yaml:"id"`
	PublicKey   string `yaml:"public_key"`
	DisplayName string `yaml:"display_name,omitempty"`
}

// Keyring is a static in-memory Resolver.
type Keyring struct {
	mu   sync.RWMutex
	refs map[string]Reference
}

func NewKeyring() *Keyring {
	return &Keyring{refs: make(map[string]Reference)}
}

// ParseKeyring decodes and validates a YAML keyring.
func ParseKeyring(input []byte) (*Keyring, error) {
	var spec KeyringSpec
	if err := yaml.Unmarshal(input, &spec); err != nil {
		return nil, fmt.Errorf("decode keyring: %w", err)
	}
	if strings.TrimSpace(spec.Schema) != KeyringSchemaV1 {
		return nil, fmt.Errorf("keyring.schema must be %q", KeyringSchemaV1)
	}
	kr := NewKeyring()
	for i, entry := range spec.Identities {
		key, err := signing.ParsePublicKey(entry.PublicKey)
		if err != nil {
			return nil, fmt.Errorf("keyring.identities[%d].public_key: %w", i, err)
		}
		ref := Reference{
			ID:          strings.TrimSpace(entry.ID),
			PublicKey:   key,
			DisplayName: strings.TrimSpace(entry.DisplayName),
		}
		if err := kr.Add(ref); err != nil {
			return nil, fmt.Errorf("keyring.identities[%d]: %w", i, err)
		}
	}
	return kr, nil
}

// LoadKeyring reads a keyring file.
func LoadKeyring(path string) (*Keyring, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyring: %w", err)
	}
	return ParseKeyring(raw)
}

// Add registers ref. Ids must be unique.
func (k *Keyring) Add(ref Reference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, exists := k.refs[ref.ID]; exists {
		return fmt.Errorf("identity %q is already registered", ref.ID)
	}
	ref.PublicKey = append([]byte(nil), ref.PublicKey...)
	k.refs[ref.ID] = ref
	return nil
}

func (k *Keyring) Resolve(_ context.Context, id string) (Reference, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	ref, ok := k.refs[strings.TrimSpace(id)]
	if !ok {
		return Reference{}, fmt.Errorf("%w: %s", ErrUnknownIdentity, id)
	}
	ref.PublicKey = append([]byte(nil), ref.PublicKey...)
	return ref, nil
}

func (k *Keyring) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.refs)
}
