// Package authserver implements the platform's authentication endpoints:
// password and Google sign-in, rotating refresh tokens, bearer-protected
// profile access, and logout with full revocation.
package authserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/hmabdullah7770/sessionkit/pkg/session"
	"go.uber.org/zap"
)

const errorCodeRefreshInvalid = "refresh_invalid"

// Server wires the auth endpoints onto a gin engine.
type Server struct {
	configuration   ServerConfig
	users           *InMemoryUsers
	refreshTokens   RefreshTokenStore
	googleValidator GoogleTokenValidator
	clock           session.Clock
	logger          *zap.Logger
}

// New validates the configuration and builds a Server. The Google validator
// may be nil; /auth/google then answers 503.
func New(configuration ServerConfig, users *InMemoryUsers, refreshTokens RefreshTokenStore, googleValidator GoogleTokenValidator, clock session.Clock, logger *zap.Logger) (*Server, error) {
	if validateErr := configuration.validate(); validateErr != nil {
		return nil, validateErr
	}
	if clock == nil {
		clock = session.NewSystemClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		configuration:   configuration,
		users:           users,
		refreshTokens:   refreshTokens,
		googleValidator: googleValidator,
		clock:           clock,
		logger:          logger,
	}, nil
}

// Router builds the gin engine with all auth routes mounted.
func (server *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(server.logger))

	if len(server.configuration.AllowedOrigins) > 0 {
		corsConfiguration := cors.DefaultConfig()
		corsConfiguration.AllowOrigins = server.configuration.AllowedOrigins
		corsConfiguration.AllowCredentials = true
		corsConfiguration.AllowHeaders = append(corsConfiguration.AllowHeaders, "Authorization", "X-Request-ID")
		router.Use(cors.New(corsConfiguration))
	}

	router.POST("/auth/login", server.handleLogin)
	router.POST("/auth/google", server.handleGoogle)
	router.POST("/auth/refresh", server.handleRefresh)

	authorized := router.Group("/")
	authorized.Use(RequireBearer(server.configuration.SigningKey, server.configuration.issuer(), server.clock))
	authorized.POST("/auth/logout", server.handleLogout)
	authorized.GET("/api/profile", server.handleProfile)

	return router
}

func (server *Server) handleLogin(contextGin *gin.Context) {
	var inbound struct {
		Identifier string `json:"identifier"`
		Password   string `json:"password"`
	}
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.Identifier) == "" || inbound.Password == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	profile, verifyErr := server.users.VerifyPassword(contextGin, inbound.Identifier, inbound.Password)
	if verifyErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
		return
	}
	server.issuePair(contextGin, profile, "")
}

func (server *Server) handleGoogle(contextGin *gin.Context) {
	var inbound struct {
		GoogleIDToken string `json:"google_id_token"`
	}
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil || strings.TrimSpace(inbound.GoogleIDToken) == "" {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}
	if server.googleValidator == nil {
		contextGin.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "google_sign_in_disabled"})
		return
	}

	identity, validateErr := server.googleValidator.Validate(contextGin, inbound.GoogleIDToken)
	if validateErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_google_token"})
		return
	}
	profile, upsertErr := server.users.UpsertGoogleUser(contextGin, identity.Subject, identity.Email, identity.DisplayName)
	if upsertErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	server.issuePair(contextGin, profile, "")
}

func (server *Server) handleRefresh(contextGin *gin.Context) {
	var inbound struct {
		RefreshToken string `json:"refresh_token"`
	}
	if bindErr := contextGin.BindJSON(&inbound); bindErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid_json"})
		return
	}

	userID, currentTokenID, _, validateErr := server.refreshTokens.Validate(contextGin, inbound.RefreshToken)
	if validateErr != nil {
		server.logger.Info("refresh token rejected",
			zap.String("code", "authserver.refresh.rejected"),
			zap.Error(validateErr))
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeRefreshInvalid})
		return
	}
	profile, profileErr := server.users.GetProfile(contextGin, userID)
	if profileErr != nil {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeRefreshInvalid})
		return
	}
	server.issuePair(contextGin, profile, currentTokenID)
}

func (server *Server) handleLogout(contextGin *gin.Context) {
	claims, ok := ClaimsFromContext(contextGin)
	if !ok {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeTokenInvalid})
		return
	}
	if revokeErr := server.refreshTokens.RevokeAllForUser(contextGin, claims.GetUserID()); revokeErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	server.logger.Info("session terminated",
		zap.String("code", "authserver.logout"),
		zap.String("user_id", claims.GetUserID()))
	contextGin.JSON(http.StatusOK, gin.H{
		"status":  "logged_out",
		"message": "session terminated",
	})
}

func (server *Server) handleProfile(contextGin *gin.Context) {
	claims, ok := ClaimsFromContext(contextGin)
	if !ok {
		contextGin.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorCodeTokenInvalid})
		return
	}
	contextGin.JSON(http.StatusOK, gin.H{
		"user_id":           claims.GetUserID(),
		"user_email":        claims.GetUserEmail(),
		"user_display_name": claims.GetUserDisplayName(),
		"user_roles":        claims.GetUserRoles(),
	})
}

// issuePair mints an access token and a rotating refresh token for the user.
// When previousTokenID is set, the replaced token is revoked only after its
// successor exists, so a crash between the two steps never strands the user
// without any valid refresh token.
func (server *Server) issuePair(contextGin *gin.Context, profile Profile, previousTokenID string) {
	accessToken, _, mintErr := mintAccessToken(server.clock, profile, server.configuration.issuer(), server.configuration.SigningKey, server.configuration.AccessTTL)
	if mintErr != nil {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	refreshExpiresUnix := server.clock.Now().Add(server.configuration.RefreshTTL).Unix()
	_, refreshOpaque, issueErr := server.refreshTokens.Issue(contextGin, profile.UserID, refreshExpiresUnix, previousTokenID)
	if issueErr != nil || refreshOpaque == "" {
		contextGin.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	if previousTokenID != "" {
		if revokeErr := server.refreshTokens.Revoke(contextGin, previousTokenID); revokeErr != nil && !errors.Is(revokeErr, ErrRefreshTokenNotFound) {
			contextGin.AbortWithStatus(http.StatusInternalServerError)
			return
		}
	}

	contextGin.JSON(http.StatusOK, gin.H{
		"access_token":  accessToken,
		"refresh_token": refreshOpaque,
		"user": gin.H{
			"user_id":           profile.UserID,
			"user_email":        profile.Email,
			"user_display_name": profile.DisplayName,
			"user_roles":        profile.Roles,
		},
	})
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(contextGin *gin.Context) {
		startTime := time.Now()
		contextGin.Next()
		logger.Info("http",
			zap.String("method", contextGin.Request.Method),
			zap.String("path", contextGin.Request.URL.Path),
			zap.Int("status", contextGin.Writer.Status()),
			zap.String("request_id", contextGin.GetHeader("X-Request-ID")),
			zap.Duration("elapsed", time.Since(startTime)),
		)
	}
}
