package app

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/aussiebroadwan/doorman/pkg/jwtx"
)

// InitSigningKeys builds the token codec from the configured key material.
//
// When SigningKeyFile is set the Ed25519 private key is loaded from it
// (PKCS8 PEM), so access tokens survive restarts and additional instances
// can share the key. Otherwise an ephemeral key is generated on startup and
// every outstanding access token becomes invalid when the process restarts;
// refresh tokens live in the database and are unaffected either way.
func InitSigningKeys(cfg Config, logger *slog.Logger) (*jwtx.Codec, error) {
	var signer *jwtx.EdDSASigner
	var err error

	if cfg.SigningKeyFile != "" {
		pemKey, err := os.ReadFile(cfg.SigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read signing key file: %w", err)
		}
		signer, err = jwtx.NewSignerEdDSA(pemKey)
		if err != nil {
			return nil, fmt.Errorf("failed to parse signing key: %w", err)
		}
		logger.Info("signing key loaded", "path", cfg.SigningKeyFile)
	} else {
		signer, err = jwtx.NewEphemeralSignerEdDSA()
		if err != nil {
			return nil, fmt.Errorf("failed to generate signing key: %w", err)
		}
		logger.Info("ephemeral signing key generated - access tokens will not survive restarts")
	}

	codec, err := jwtx.NewCodec(signer, cfg.Issuer, cfg.ClockLeeway)
	if err != nil {
		return nil, fmt.Errorf("failed to build token codec: %w", err)
	}
	return codec, nil
}
