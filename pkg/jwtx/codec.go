package jwtx

import "time"

// Codec pairs a signer and verifier over the same key. It is a pure function
// over token + key material; it holds no storage and no revocation state.
type Codec struct {
	signer   *EdDSASigner
	verifier *EdDSAVerifier
	issuer   string
}

// NewCodec wires a signer into a codec, deriving the verifier from the
// signer's public key.
func NewCodec(signer *EdDSASigner, issuer string, leeway time.Duration) (*Codec, error) {
	if err := signer.Validate(); err != nil {
		return nil, err
	}
	return &Codec{
		signer:   signer,
		verifier: NewVerifierEdDSA(signer.Public(), issuer, leeway),
		issuer:   issuer,
	}, nil
}

// Issue mints a signed access token for the subject with the given lifetime.
func (c *Codec) Issue(subject string, ttl time.Duration, now time.Time) (string, error) {
	if subject == "" {
		return "", ErrInvalidSubject
	}
	return c.signer.Sign(NewAccessClaims(subject, c.issuer, ttl, now))
}

// Verify validates a token and returns its claims. Errors are the package
// sentinels (ErrMalformed, ErrInvalidSig, ErrExpired, ErrInvalidSubject, ...).
func (c *Codec) Verify(token string) (Claims, error) {
	return c.verifier.Verify(token)
}
