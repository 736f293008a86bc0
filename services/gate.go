package services

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/upb/authentication-api/repositories"
	"github.com/upb/authentication-api/tokens"
)

// Outcome is the result of authorizing one request
type Outcome int

const (
	OutcomeAllowed Outcome = iota
	OutcomeMissing
	OutcomeMalformed
	OutcomeSignatureInvalid
	OutcomeExpired
	OutcomeWrongUse
	OutcomeNotFound
	OutcomeRevoked
	OutcomeStoreUnavailable
)

var outcomeNames = map[Outcome]string{
	OutcomeAllowed:          "allowed",
	OutcomeMissing:          "missing",
	OutcomeMalformed:        "malformed",
	OutcomeSignatureInvalid: "signature_invalid",
	OutcomeExpired:          "expired",
	OutcomeWrongUse:         "wrong_use",
	OutcomeNotFound:         "not_found",
	OutcomeRevoked:          "revoked",
	OutcomeStoreUnavailable: "store_unavailable",
}

func (o Outcome) String() string {
	if name, ok := outcomeNames[o]; ok {
		return name
	}
	return "unknown"
}

// Decision is what the gate concluded about a bearer token.
// Claims and PairID are set only when the request is allowed.
type Decision struct {
	Outcome Outcome
	Claims  *tokens.Claims
	PairID  int64
	Err     error
}

// Allowed reports whether the request may proceed
func (d Decision) Allowed() bool {
	return d.Outcome == OutcomeAllowed
}

// Gate checks an access token against its signature and the token store.
// A token the store does not know is denied.
type Gate struct {
	verifier TokenVerifier
	finder   repositories.AccessTokenFinder
	logger   *zap.Logger
}

// NewGate creates a new Gate
func NewGate(verifier TokenVerifier, finder repositories.AccessTokenFinder, logger *zap.Logger) *Gate {
	return &Gate{
		verifier: verifier,
		finder:   finder,
		logger:   logger,
	}
}

// Authorize decides whether token grants access
func (g *Gate) Authorize(ctx context.Context, token string) Decision {
	if token == "" {
		return deny(OutcomeMissing, ErrMissingToken)
	}

	claims, err := g.verifier.Verify(token)
	if err != nil {
		switch {
		case errors.Is(err, tokens.ErrExpired):
			return deny(OutcomeExpired, ErrTokenExpired.Wrap(err))
		case errors.Is(err, tokens.ErrSignatureInvalid):
			return deny(OutcomeSignatureInvalid, ErrTokenSignatureInvalid.Wrap(err))
		default:
			return deny(OutcomeMalformed, ErrTokenMalformed.Wrap(err))
		}
	}
	if !claims.IsAccess() {
		return deny(OutcomeWrongUse, ErrTokenWrongUse)
	}

	pair, err := g.finder.FindByAccessToken(ctx, token)
	if err != nil {
		if repositories.IsNotFound(err) {
			return deny(OutcomeNotFound, ErrTokenNotFound)
		}
		g.logger.Error("token store lookup failed", zap.Error(err))
		return deny(OutcomeStoreUnavailable, ErrStoreUnavailable.Wrap(err))
	}
	if pair.SubjectID.String() != claims.Subject {
		return deny(OutcomeNotFound, ErrTokenNotFound)
	}
	if pair.IsRevoked() {
		return deny(OutcomeRevoked, ErrTokenRevoked)
	}

	return Decision{Outcome: OutcomeAllowed, Claims: claims, PairID: pair.ID}
}

func deny(outcome Outcome, err error) Decision {
	return Decision{Outcome: outcome, Err: err}
}
