package utils // package utils provides helpers for issuing access tokens

import (
    "time"

    "github.com/golang-jwt/jwt/v5"
)

// AccessToken represents a signed JWT access token along with its expiry.
type AccessToken struct {
    Token string    // the serialized JWT string
    Exp   time.Time // the UTC expiration time
}

// NewAccessToken builds and signs an HS256 JWT for a user.  Production
// tokens come from the wallet sign-in service; this is used by the
// -dev-token flag and by tests.  The token carries sub, role, exp, iat and,
// when wallet is set, a wallet claim the auth middleware can resolve.
func NewAccessToken(secret string, userID uint64, role, wallet string, ttl time.Duration) (AccessToken, error) {
    now := time.Now().UTC()
    exp := now.Add(ttl)
    claims := jwt.MapClaims{
        "role": role,
        "exp":  exp.Unix(),
        "iat":  now.Unix(),
    }
    if userID > 0 {
        claims["sub"] = userID
    }
    if wallet != "" {
        claims["wallet"] = wallet
    }
    signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
    if err != nil {
        return AccessToken{}, err
    }
    return AccessToken{Token: signed, Exp: exp}, nil
}
