// Package jwks manages the RSA signing key of the provider and publishes its
// public half as a JSON Web Key Set (RFC 7517).
//
// A KeySet is built once at startup from the key file and injected into the
// token generator; nothing in this package holds process-wide state.
//
//	keyPair, err := jwks.LoadOrGenerateKeyPair("jwt-private.pem")
//	keys, err := jwks.NewKeySet(keyPair)
//	set := keys.JWKS() // {"keys":[{"kty","e","use","kid","alg","n"}]}
//
// Retired keys passed to NewKeySet stay published so that tokens signed
// before a rotation keep verifying until they expire.
package jwks
