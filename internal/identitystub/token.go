package identitystub

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
)

type claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func (s *Server) issueToken(username string) (string, error) {
	now := time.Now()
	c := claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", oops.Code("token_sign").With("username", username).Wrap(err)
	}
	return token, nil
}

func (s *Server) verifyToken(tokenStr string) (*claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected token signing method")
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, oops.Code("token_invalid").Wrap(err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || c.Username == "" {
		return nil, oops.Code("token_invalid").Errorf("token carries no username")
	}
	return c, nil
}
