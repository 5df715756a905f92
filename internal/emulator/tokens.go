package emulator

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var errTokenRevoked = errors.New("token revoked")

// issueToken signs a session token for the emulated device.
func (p *Peer) issueToken() (string, error) {
	now := time.Now()
	id := uuid.NewString()
	claims := jwt.RegisteredClaims{
		ID:        id,
		Subject:   p.opts.DeviceID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(p.opts.TokenTTL)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	p.mu.Lock()
	p.tokens[id] = struct{}{}
	p.mu.Unlock()
	return signed, nil
}

// IssueToken signs a fresh session token outside of pairing.
func (p *Peer) IssueToken() (string, error) {
	return p.issueToken()
}

// RevokeTokens invalidates every token issued so far.
func (p *Peer) RevokeTokens() {
	p.mu.Lock()
	p.tokens = map[string]struct{}{}
	p.mu.Unlock()
}

func (p *Peer) verifyToken(raw string) error {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return p.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithSubject(p.opts.DeviceID))
	if err != nil {
		return err
	}
	p.mu.Lock()
	_, ok := p.tokens[claims.ID]
	p.mu.Unlock()
	if !ok {
		return errTokenRevoked
	}
	return nil
}

func (p *Peer) requireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		if err := p.verifyToken(strings.TrimSpace(raw)); err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Next()
	}
}
