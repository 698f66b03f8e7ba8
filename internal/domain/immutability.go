package domain

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
)

// EnsureContractSuccessor enforces the invariants between a stored contract
// and the record about to replace it.
func EnsureContractSuccessor(before, after Contract) error {
	if before.ID == "" || after.ID == "" {
		return errors.New("contract ids are required")
	}
	if before.ID != after.ID {
		return fmt.Errorf("contract id changed from %q to %q", before.ID, after.ID)
	}
	if !before.CreatedAt.Equal(after.CreatedAt) {
		return errors.New("created_at is immutable")
	}
	if before.CreatedBy != after.CreatedBy {
		return errors.New("created_by is immutable")
	}
	if !reflect.DeepEqual(before.Parties, after.Parties) {
		return errors.New("parties are immutable")
	}
	if !before.ValidFrom.Equal(after.ValidFrom) {
		return errors.New("valid_from is immutable")
	}
	if (before.ValidUntil == nil) != (after.ValidUntil == nil) ||
		(before.ValidUntil != nil && !before.ValidUntil.Equal(*after.ValidUntil)) {
		return errors.New("valid_until is immutable")
	}
	if after.Version != before.Version+1 {
		return fmt.Errorf("version must advance by exactly one (%d -> %d)", before.Version, after.Version)
	}
	if after.UpdatedAt.Before(before.UpdatedAt) {
		return errors.New("updated_at must not move backwards")
	}
	if before.Status.Terminal() {
		return fmt.Errorf("contract in terminal status %q cannot change", before.Status)
	}
	termsChanged := !reflect.DeepEqual(before.Terms, after.Terms)
	for signer, sig := range after.Signatures {
		prev, existed := before.Signatures[signer]
		if !existed {
			continue
		}
		if !bytes.Equal(prev.Signature, sig.Signature) || !bytes.Equal(prev.Digest, sig.Digest) {
			return fmt.Errorf("signature of %q is immutable", signer)
		}
	}
	if !termsChanged {
		for signer := range before.Signatures {
			if _, ok := after.Signatures[signer]; !ok {
				return fmt.Errorf("signature of %q cannot be removed without a terms change", signer)
			}
		}
	}
	return nil
}
