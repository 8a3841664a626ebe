package jwtx

import "errors"

// Verification failures are internally distinguishable so the caller can
// audit the precise reason, but they all collapse to a single generic 401 at
// the API boundary.
var (
	ErrMalformed      = errors.New("jwtx: malformed token")
	ErrInvalidSig     = errors.New("jwtx: invalid signature")
	ErrExpired        = errors.New("jwtx: token expired")
	ErrNotYetValid    = errors.New("jwtx: token not yet valid")
	ErrIssuer         = errors.New("jwtx: issuer mismatch")
	ErrInvalidSubject = errors.New("jwtx: invalid subject")
)
