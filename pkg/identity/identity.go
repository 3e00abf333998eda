// Package identity derives a node id from an ed25519 key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/dnorman/unbase/pkg/config"
)

// NodeID renders the canonical node id for a public key: pk:<alg>:<b64url(pub)>.
func NodeID(alg string, pub []byte) string {
	return "pk:" + alg + ":" + base64.RawURLEncoding.EncodeToString(pub)
}

// LoadOrGenEd25519 loads an ed25519 private key from config or generates a new one.
// Returns the private key and the canonical node id.
func LoadOrGenEd25519(c config.IdentityConfig) (ed25519.PrivateKey, string, error) {
	if alg := strings.ToLower(strings.TrimSpace(c.Alg)); alg != "" && alg != "ed25519" {
		return nil, "", fmt.Errorf("identity: unsupported alg %q", c.Alg)
	}
	var pk ed25519.PrivateKey
	if s := strings.TrimSpace(c.PrivateKey); s != "" {
		b, err := base64.RawURLEncoding.DecodeString(s)
		if err != nil {
			return nil, "", fmt.Errorf("identity: decode private_key: %w", err)
		}
		pk = ed25519.PrivateKey(b)
	}
	if pk == nil && strings.TrimSpace(c.PrivateKeyFile) != "" {
		b, err := os.ReadFile(c.PrivateKeyFile)
		if err != nil {
			return nil, "", fmt.Errorf("identity: read private_key_file: %w", err)
		}
		if db, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(string(b))); err == nil {
			pk = ed25519.PrivateKey(db)
		} else {
			// assume raw bytes
			pk = ed25519.PrivateKey(b)
		}
	}
	if pk != nil && len(pk) != ed25519.PrivateKeySize {
		return nil, "", fmt.Errorf("identity: private key has %d bytes, want %d", len(pk), ed25519.PrivateKeySize)
	}
	if pk == nil {
		_, gen, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, "", err
		}
		pk = gen
		zap.L().Info("generated new ed25519 identity (persist to config.identity.private_key)",
			zap.String("pub_b64", base64.RawURLEncoding.EncodeToString(gen.Public().(ed25519.PublicKey))))
	}
	return pk, NodeID("ed25519", pk.Public().(ed25519.PublicKey)), nil
}
