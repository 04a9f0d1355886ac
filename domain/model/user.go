package model

import "github.com/golang-jwt/jwt"

// UserClaims are the bearer token claims issued by the session layer. The
// subject is the user id every core operation is scoped to.
type UserClaims struct {
	UserName string `json:"user_name"`
	jwt.StandardClaims
}
