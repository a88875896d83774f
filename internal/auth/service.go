package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vovakirdan/wiredesk/internal/store"
)

var (
	// ErrUnknownAgent is returned when a token is requested for an agent that does not exist.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrInvalidKind is returned for identity kinds other than agent or user.
	ErrInvalidKind = errors.New("invalid identity kind")
)

// Service issues and validates identity tokens. Credential checks live outside this system;
// the service only vouches for identities it is told about.
type Service struct {
	agents    store.AgentStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(agents store.AgentStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		agents:    agents,
		jwtConfig: jwtConfig,
	}
}

// IssueToken returns a signed token for the identity and the subject it was issued to.
// Agent tokens require an existing agent record. An empty user subject gets a fresh one.
func (s *Service) IssueToken(ctx context.Context, kind store.SenderType, subject string) (token, issuedTo string, err error) {
	subject = strings.TrimSpace(subject)

	switch kind {
	case store.SenderAgent:
		if _, err := s.agents.GetAgent(ctx, subject); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return "", "", ErrUnknownAgent
			}
			return "", "", fmt.Errorf("get agent: %w", err)
		}
	case store.SenderUser:
		if subject == "" {
			subject = uuid.NewString()
		}
	default:
		return "", "", ErrInvalidKind
	}

	token, err = GenerateToken(s.jwtConfig, kind, subject)
	if err != nil {
		return "", "", fmt.Errorf("generate token: %w", err)
	}
	return token, subject, nil
}

// ValidateToken validates a JWT token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}
