package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

func TestIssueAndParseToken(t *testing.T) {
	token, expires, err := IssueToken(Operator{Name: "alice", Role: RoleOperator}, testSecret, 10*time.Minute)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	if token == "" {
		t.Fatal("IssueToken() returned empty token")
	}
	if d := time.Until(expires); d < 9*time.Minute || d > 10*time.Minute {
		t.Errorf("expires in %v, want ~10m", d)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken() error = %v", err)
	}
	if op := claims.Operator(); op.Name != "alice" || op.Role != RoleOperator {
		t.Errorf("Operator() = %+v", op)
	}
	if claims.ID == "" {
		t.Error("JTI should not be empty")
	}
}

func TestIssueToken_DefaultTTL(t *testing.T) {
	_, expires, err := IssueToken(Operator{Name: "bob", Role: RoleAdmin}, testSecret, 0)
	if err != nil {
		t.Fatal(err)
	}
	if d := time.Until(expires); d < DefaultTokenTTL-time.Minute || d > DefaultTokenTTL {
		t.Errorf("expires in %v, want ~%v", d, DefaultTokenTTL)
	}
}

func TestParseToken_Rejects(t *testing.T) {
	sign := func(c Claims, secret string, method jwt.SigningMethod) string {
		t.Helper()
		var key any = []byte(secret)
		if method == jwt.SigningMethodNone {
			key = jwt.UnsafeAllowNoneSignatureType
		}
		s, err := jwt.NewWithClaims(method, c).SignedString(key)
		if err != nil {
			t.Fatal(err)
		}
		return s
	}
	valid := func() Claims {
		now := time.Now()
		return Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    tokenIssuer,
				Subject:   "alice",
				IssuedAt:  jwt.NewNumericDate(now),
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
			},
			Role: RoleOperator,
		}
	}

	tests := []struct {
		name  string
		token func() string
	}{
		{"wrong secret", func() string { return sign(valid(), "another-secret", jwt.SigningMethodHS256) }},
		{"expired", func() string {
			c := valid()
			c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
			return sign(c, testSecret, jwt.SigningMethodHS256)
		}},
		{"no expiry", func() string {
			c := valid()
			c.ExpiresAt = nil
			return sign(c, testSecret, jwt.SigningMethodHS256)
		}},
		{"foreign issuer", func() string {
			c := valid()
			c.Issuer = "someone-else"
			return sign(c, testSecret, jwt.SigningMethodHS256)
		}},
		{"missing subject", func() string {
			c := valid()
			c.Subject = ""
			return sign(c, testSecret, jwt.SigningMethodHS256)
		}},
		{"unknown role", func() string {
			c := valid()
			c.Role = "owner"
			return sign(c, testSecret, jwt.SigningMethodHS256)
		}},
		{"alg none", func() string { return sign(valid(), "", jwt.SigningMethodNone) }},
		{"garbage", func() string { return "not.a.jwt" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseToken(tt.token(), testSecret); !errors.Is(err, ErrTokenInvalid) {
				t.Errorf("ParseToken() = %v, want ErrTokenInvalid", err)
			}
		})
	}
}
