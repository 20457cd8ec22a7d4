package authserver

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/hmabdullah7770/sessionkit/pkg/session"
)

const claimsContextKey = "auth_claims"

// Error codes the client maps onto its 401 taxonomy.
const (
	errorCodeTokenExpired = "token_expired"
	errorCodeTokenInvalid = "token_invalid"
)

// RequireBearer validates the Authorization bearer token and injects its
// claims. Expired tokens answer with the token_expired code so clients know
// a refresh will help; every other defect answers token_invalid.
func RequireBearer(signingKey []byte, issuer string, clock session.Clock) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		bearer := strings.TrimPrefix(contextGin.GetHeader("Authorization"), "Bearer ")
		if bearer == "" || bearer == contextGin.GetHeader("Authorization") {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeTokenExpired})
			return
		}
		parsedToken, parseErr := jwt.ParseWithClaims(bearer, &session.Claims{}, func(parsed *jwt.Token) (interface{}, error) {
			return signingKey, nil
		},
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithTimeFunc(clock.Now))
		if parseErr != nil {
			if errors.Is(parseErr, jwt.ErrTokenExpired) {
				contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeTokenExpired})
				return
			}
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeTokenInvalid})
			return
		}
		claims, ok := parsedToken.Claims.(*session.Claims)
		if !ok || !parsedToken.Valid || claims.Issuer != issuer {
			contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeTokenInvalid})
			return
		}
		contextGin.Set(claimsContextKey, claims)
		contextGin.Next()
	}
}

// ClaimsFromContext returns the claims injected by RequireBearer.
func ClaimsFromContext(contextGin *gin.Context) (*session.Claims, bool) {
	value, exists := contextGin.Get(claimsContextKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*session.Claims)
	return claims, ok
}
