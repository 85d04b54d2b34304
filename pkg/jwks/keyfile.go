package jwks

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"path/filepath"
)

const defaultKeyBits = 2048

// LoadOrGenerateKeyPair loads an RSA private key from a PEM file, or
// generates and writes a new one (mode 0600) when the file does not exist.
func LoadOrGenerateKeyPair(keyFile string) (*KeyPair, error) {
	keyPath := keyFile
	if !filepath.IsAbs(keyPath) {
		cwd, _ := os.Getwd()
		keyPath = filepath.Join(cwd, keyFile)
	}

	data, err := os.ReadFile(keyPath)
	if errors.Is(err, os.ErrNotExist) {
		slog.Info("Signing key not found - generating new key pair", "path", keyPath)
		privateKey, err := rsa.GenerateKey(rand.Reader, defaultKeyBits)
		if err != nil {
			return nil, fmt.Errorf("failed to generate RSA key: %w", err)
		}
		if err := os.WriteFile(keyPath, []byte(EncodePrivateKeyToPEM(privateKey)), 0600); err != nil {
			return nil, fmt.Errorf("failed to write key file: %w", err)
		}
		keyPair := NewKeyPair(privateKey, "")
		slog.Info("Signing key generated", "path", keyPath, "kid", keyPair.Kid)
		return keyPair, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	privateKey, err := DecodePrivateKeyFromPEM(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key %s: %w", keyPath, err)
	}
	keyPair := NewKeyPair(privateKey, "")
	slog.Info("Loaded signing key", "path", keyPath, "kid", keyPair.Kid)
	return keyPair, nil
}

// LoadVerificationKey reads a PEM file holding either a private or public
// RSA key and returns a verification-only key pair.
func LoadVerificationKey(keyFile string) (*KeyPair, error) {
	data, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	if privateKey, err := DecodePrivateKeyFromPEM(string(data)); err == nil {
		keyPair := NewKeyPair(privateKey, "")
		keyPair.PrivateKey = nil
		return keyPair, nil
	}

	publicKey, err := DecodePublicKeyFromPEM(string(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode key %s: %w", keyFile, err)
	}
	return &KeyPair{
		Kid:       Thumbprint(publicKey),
		Alg:       "RS256",
		PublicKey: publicKey,
	}, nil
}

// Thumbprint computes the RFC 7638 JWK thumbprint (SHA-256, base64url) of an RSA public key.
func Thumbprint(publicKey *rsa.PublicKey) string {
	// members in lexicographic order, no whitespace
	canonical := fmt.Sprintf(`{"e":"%s","kty":"RSA","n":"%s"}`,
		EncodeRSAPublicKeyExponent(publicKey), EncodeRSAPublicKeyModulus(publicKey))
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// EncodeRSAPublicKeyModulus encodes the RSA public key modulus as base64url
func EncodeRSAPublicKeyModulus(publicKey *rsa.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(publicKey.N.Bytes())
}

// EncodeRSAPublicKeyExponent encodes the RSA public key exponent as base64url
func EncodeRSAPublicKeyExponent(publicKey *rsa.PublicKey) string {
	return base64.RawURLEncoding.EncodeToString(big.NewInt(int64(publicKey.E)).Bytes())
}

// EncodePrivateKeyToPEM encodes an RSA private key to PKCS#1 PEM
func EncodePrivateKeyToPEM(privateKey *rsa.PrivateKey) string {
	return string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(privateKey),
	}))
}

// EncodePublicKeyToPEM encodes an RSA public key to PKIX PEM
func EncodePublicKeyToPEM(publicKey *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(publicKey)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// DecodePrivateKeyFromPEM decodes an RSA private key from PEM format.
// Both PKCS#1 (RSA PRIVATE KEY) and PKCS#8 (PRIVATE KEY) are accepted.
func DecodePrivateKeyFromPEM(pemData string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		privateKey, err := x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#1 private key: %w", err)
		}
		return privateKey, nil
	case "PRIVATE KEY":
		parsedKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse PKCS#8 private key: %w", err)
		}
		privateKey, ok := parsedKey.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("parsed key is not an RSA private key")
		}
		return privateKey, nil
	default:
		return nil, fmt.Errorf("invalid PEM block type: %s (expected RSA PRIVATE KEY or PRIVATE KEY)", block.Type)
	}
}

// DecodePublicKeyFromPEM decodes an RSA public key from PKIX PEM
func DecodePublicKeyFromPEM(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	if block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("invalid PEM block type: %s", block.Type)
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	publicKey, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key is not an RSA public key")
	}
	return publicKey, nil
}
