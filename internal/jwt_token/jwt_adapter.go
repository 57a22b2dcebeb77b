package jwttoken

import "fundly/pkg/requestcontext"

// Authenticator satisfies the auth middleware's TokenAuthenticator.
type Authenticator struct {
	service *JWTService
}

func NewAuthenticator(service *JWTService) *Authenticator {
	return &Authenticator{service: service}
}

func (a *Authenticator) Authenticate(tokenString string) (requestcontext.User, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return requestcontext.User{}, err
	}
	return claims.User()
}
