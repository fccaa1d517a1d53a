package services

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/formlens/formlens-backend/internal/logger"
	"github.com/formlens/formlens-backend/internal/requestdata"
)

// AuthService verifies access tokens issued by the external identity
// system. Verification only: no user provisioning, no token minting.
type AuthService interface {
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type authService struct {
	log       *logger.Logger
	jwtSecret string
}

func NewAuthService(baseLog *logger.Logger, jwtSecret string) AuthService {
	serviceLog := baseLog.With("service", "AuthService")
	return &authService{log: serviceLog, jwtSecret: jwtSecret}
}

func (s *authService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})
	if err != nil {
		return ctx, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return ctx, fmt.Errorf("invalid token")
	}
	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return ctx, fmt.Errorf("token missing subject")
	}
	userID, err := uuid.Parse(subject)
	if err != nil {
		return ctx, fmt.Errorf("token subject is not a user id: %w", err)
	}
	rd := &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      userID,
	}
	return requestdata.WithRequestData(ctx, rd), nil
}
