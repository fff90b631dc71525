package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
)

// Verifier turns a bearer token into the subject it was issued to.
type Verifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// ChainVerifier accepts a token if any of its verifiers does.
type ChainVerifier []Verifier

func (c ChainVerifier) Verify(ctx context.Context, token string) (string, error) {
	err := ErrInvalidToken
	for _, v := range c {
		subject, verr := v.Verify(ctx, token)
		if verr == nil {
			return subject, nil
		}
		if errors.Is(verr, ErrExpiredToken) {
			err = ErrExpiredToken
		}
	}
	return "", err
}

// ExternalSubjectPrefix namespaces subjects vouched for by an external
// provider so they can never collide with local account ids.
const ExternalSubjectPrefix = "oidc:"

// MaxSubjectLength is the longest subject an owner id column can hold.
const MaxSubjectLength = 128

// OIDCVerifier validates ID tokens issued by an external OpenID provider.
// Subjects are returned with ExternalSubjectPrefix.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCVerifier discovers the provider at issuer.
func NewOIDCVerifier(ctx context.Context, issuer, clientID string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to discover OIDC provider %s: %w", issuer, err)
	}
	return &OIDCVerifier{verifier: provider.Verifier(&oidc.Config{ClientID: clientID})}, nil
}

// NewOIDCVerifierWithKeySet verifies against a fixed key set, skipping discovery.
func NewOIDCVerifierWithKeySet(issuer, clientID string, keySet oidc.KeySet) *OIDCVerifier {
	return &OIDCVerifier{verifier: oidc.NewVerifier(issuer, keySet, &oidc.Config{ClientID: clientID})}
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (string, error) {
	token, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		var expired *oidc.TokenExpiredError
		if errors.As(err, &expired) {
			return "", ErrExpiredToken
		}
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	subject := ExternalSubjectPrefix + token.Subject
	if token.Subject == "" || len(subject) > MaxSubjectLength {
		return "", fmt.Errorf("%w: unusable subject", ErrInvalidToken)
	}
	return subject, nil
}
