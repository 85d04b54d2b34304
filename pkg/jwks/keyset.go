package jwks

import (
	"crypto/rsa"
	"fmt"
	"log/slog"
)

// KeySet holds the current signing key and any retired keys still
// published for verification. It is immutable once built.
type KeySet struct {
	active  *KeyPair
	retired []*KeyPair
	byKid   map[string]*KeyPair
}

// NewKeySet creates a key set signing with active. Retired keys are only
// used to verify tokens issued before a rotation.
func NewKeySet(active *KeyPair, retired ...*KeyPair) (*KeySet, error) {
	if active == nil || active.PrivateKey == nil {
		return nil, fmt.Errorf("active signing key is required")
	}

	ks := &KeySet{
		byKid: make(map[string]*KeyPair, len(retired)+1),
	}

	activeCopy := *active
	activeCopy.Active = true
	if activeCopy.PublicKey == nil {
		activeCopy.PublicKey = &activeCopy.PrivateKey.PublicKey
	}
	ks.active = &activeCopy
	ks.byKid[activeCopy.Kid] = ks.active

	for _, key := range retired {
		if key == nil {
			continue
		}
		if _, exists := ks.byKid[key.Kid]; exists {
			return nil, fmt.Errorf("duplicate key id: %s", key.Kid)
		}
		retiredCopy := *key
		retiredCopy.Active = false
		retiredCopy.PrivateKey = nil
		if retiredCopy.PublicKey == nil && key.PrivateKey != nil {
			retiredCopy.PublicKey = &key.PrivateKey.PublicKey
		}
		if retiredCopy.PublicKey == nil {
			return nil, fmt.Errorf("retired key %s has no public key", key.Kid)
		}
		ks.retired = append(ks.retired, &retiredCopy)
		ks.byKid[retiredCopy.Kid] = &retiredCopy
	}

	slog.Info("Key set initialized", "active_kid", ks.active.Kid, "retired", len(ks.retired))
	return ks, nil
}

// SigningKey returns the currently active signing key
func (ks *KeySet) SigningKey() *KeyPair {
	return ks.active
}

// PublicKey returns the verification key for kid. An empty kid resolves to the active key.
func (ks *KeySet) PublicKey(kid string) (*rsa.PublicKey, error) {
	if kid == "" {
		return ks.active.PublicKey, nil
	}
	key, ok := ks.byKid[kid]
	if !ok {
		return nil, fmt.Errorf("unknown key id: %s", kid)
	}
	return key.PublicKey, nil
}

// JWKS returns the published key set, active key first
func (ks *KeySet) JWKS() *JWKS {
	set := &JWKS{
		Keys: make([]JWK, 0, len(ks.retired)+1),
	}
	set.Keys = append(set.Keys, ks.active.ToJWK())
	for _, key := range ks.retired {
		set.Keys = append(set.Keys, key.ToJWK())
	}
	return set
}
