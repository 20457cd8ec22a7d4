package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hmabdullah7770/sessionkit/internal/authserver"
	"github.com/hmabdullah7770/sessionkit/pkg/session"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var serveHTTP = func(server *http.Server) error {
	return server.ListenAndServe()
}

var buildGoogleTokenValidator = func(ctx context.Context, audience string) (authserver.GoogleTokenValidator, error) {
	return authserver.NewGoogleTokenValidator(ctx, audience)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sessionctl",
		Short: "Session lifecycle tooling: auth server plus login/logout/whoami against it",
	}

	rootCmd.PersistentFlags().String("base_url", "", "Platform API base URL")
	rootCmd.PersistentFlags().String("vault_url", "sqlite://sessionctl.db", "Credential vault URL (memory://, sqlite://, postgres://, postgres+pgx://, redis://)")
	rootCmd.PersistentFlags().String("service_name", "sessionctl", "Service name scoping the vault slots")
	rootCmd.PersistentFlags().String("age_identity", "", "age X25519 identity; when set, vault secrets are sealed at rest")
	rootCmd.PersistentFlags().Duration("http_timeout", 30*time.Second, "HTTP client timeout for API calls")
	rootCmd.PersistentFlags().Duration("refresh_timeout", 15*time.Second, "Bound on one token refresh exchange")

	_ = viper.BindPFlag("base_url", rootCmd.PersistentFlags().Lookup("base_url"))
	_ = viper.BindPFlag("vault_url", rootCmd.PersistentFlags().Lookup("vault_url"))
	_ = viper.BindPFlag("service_name", rootCmd.PersistentFlags().Lookup("service_name"))
	_ = viper.BindPFlag("age_identity", rootCmd.PersistentFlags().Lookup("age_identity"))
	_ = viper.BindPFlag("http_timeout", rootCmd.PersistentFlags().Lookup("http_timeout"))
	_ = viper.BindPFlag("refresh_timeout", rootCmd.PersistentFlags().Lookup("refresh_timeout"))

	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newLoginCommand())
	rootCmd.AddCommand(newLogoutCommand())
	rootCmd.AddCommand(newWhoamiCommand())
	return rootCmd
}

const (
	configCodeMissingJWTSigningKey = "config.missing_jwt_signing_key"
	configCodeInvalidAccessTTL     = "config.invalid_access_ttl"
	configCodeInvalidRefreshTTL    = "config.invalid_refresh_ttl"
	configCodeMissingCORSOrigins   = "config.missing_cors_allowed_origins"
	configCodeMissingBaseURL       = "config.missing_base_url"
	configCodeGoogleValidatorInit  = "config.google_validator_init"
	configCodeVaultInit            = "config.vault_init"
	configCodeInvalidAgeIdentity   = "config.invalid_age_identity"
)

func configError(code, message string) error {
	return fmt.Errorf("%s: %s", code, message)
}

type serveConfig struct {
	ListenAddr         string
	SigningKey         string
	AccessTTL          time.Duration
	RefreshTTL         time.Duration
	GoogleWebClientID  string
	EnableCORS         bool
	CORSAllowedOrigins []string
	DemoIdentifier     string
	DemoPassword       string
}

func newServeCommand() *cobra.Command {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the auth server: password and Google sign-in, rotating refresh tokens, bearer-protected profile",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen_addr", ":8080", "HTTP listen address")
	serveCmd.Flags().String("jwt_signing_key", "", "HS256 signing secret for access tokens")
	serveCmd.Flags().Duration("access_ttl", 15*time.Minute, "Access token TTL")
	serveCmd.Flags().Duration("refresh_ttl", 60*24*time.Hour, "Refresh token TTL")
	serveCmd.Flags().String("google_web_client_id", "", "Google Web OAuth Client ID; empty disables Google sign-in")
	serveCmd.Flags().Bool("enable_cors", false, "Enable CORS for cross-origin clients")
	serveCmd.Flags().StringSlice("cors_allowed_origins", []string{}, "Allowed origins when CORS is enabled")
	serveCmd.Flags().String("demo_identifier", "", "Identifier for a user seeded at startup")
	serveCmd.Flags().String("demo_password", "", "Password for the seeded user")

	_ = viper.BindPFlag("listen_addr", serveCmd.Flags().Lookup("listen_addr"))
	_ = viper.BindPFlag("jwt_signing_key", serveCmd.Flags().Lookup("jwt_signing_key"))
	_ = viper.BindPFlag("access_ttl", serveCmd.Flags().Lookup("access_ttl"))
	_ = viper.BindPFlag("refresh_ttl", serveCmd.Flags().Lookup("refresh_ttl"))
	_ = viper.BindPFlag("google_web_client_id", serveCmd.Flags().Lookup("google_web_client_id"))
	_ = viper.BindPFlag("enable_cors", serveCmd.Flags().Lookup("enable_cors"))
	_ = viper.BindPFlag("cors_allowed_origins", serveCmd.Flags().Lookup("cors_allowed_origins"))
	_ = viper.BindPFlag("demo_identifier", serveCmd.Flags().Lookup("demo_identifier"))
	_ = viper.BindPFlag("demo_password", serveCmd.Flags().Lookup("demo_password"))

	return serveCmd
}

func loadServeConfig() (serveConfig, error) {
	jwtSigningKey := viper.GetString("jwt_signing_key")
	if jwtSigningKey == "" {
		return serveConfig{}, configError(configCodeMissingJWTSigningKey, "jwt_signing_key must be provided")
	}

	accessTTL := viper.GetDuration("access_ttl")
	if accessTTL <= 0 {
		return serveConfig{}, configError(configCodeInvalidAccessTTL, "access_ttl must be greater than zero")
	}

	refreshTTL := viper.GetDuration("refresh_ttl")
	if refreshTTL <= 0 {
		return serveConfig{}, configError(configCodeInvalidRefreshTTL, "refresh_ttl must be greater than zero")
	}

	enableCORS := viper.GetBool("enable_cors")
	corsAllowedOrigins := viper.GetStringSlice("cors_allowed_origins")
	if enableCORS && len(corsAllowedOrigins) == 0 {
		return serveConfig{}, configError(configCodeMissingCORSOrigins, "cors_allowed_origins must be provided when enable_cors is true")
	}

	return serveConfig{
		ListenAddr:         viper.GetString("listen_addr"),
		SigningKey:         jwtSigningKey,
		AccessTTL:          accessTTL,
		RefreshTTL:         refreshTTL,
		GoogleWebClientID:  viper.GetString("google_web_client_id"),
		EnableCORS:         enableCORS,
		CORSAllowedOrigins: corsAllowedOrigins,
		DemoIdentifier:     viper.GetString("demo_identifier"),
		DemoPassword:       viper.GetString("demo_password"),
	}, nil
}

func runServe(command *cobra.Command, arguments []string) error {
	logger, loggerErr := zap.NewProduction()
	if loggerErr != nil {
		return loggerErr
	}
	defer func() { _ = logger.Sync() }()

	configuration, loadErr := loadServeConfig()
	if loadErr != nil {
		return loadErr
	}

	commandCtx := commandContext(command)
	users := authserver.NewInMemoryUsers()
	if configuration.DemoIdentifier != "" && configuration.DemoPassword != "" {
		demoUserID, seedErr := users.CreatePasswordUser(commandCtx, configuration.DemoIdentifier, configuration.DemoPassword, configuration.DemoIdentifier, []string{"user"})
		if seedErr != nil {
			return seedErr
		}
		logger.Info("seeded demo user", zap.String("user_id", demoUserID))
	}

	var googleValidator authserver.GoogleTokenValidator
	if configuration.GoogleWebClientID != "" {
		validator, validatorErr := buildGoogleTokenValidator(commandCtx, configuration.GoogleWebClientID)
		if validatorErr != nil {
			return fmt.Errorf("%s: %w", configCodeGoogleValidatorInit, validatorErr)
		}
		googleValidator = validator
	}

	serverConfig := authserver.ServerConfig{
		SigningKey:        []byte(configuration.SigningKey),
		AccessTTL:         configuration.AccessTTL,
		RefreshTTL:        configuration.RefreshTTL,
		GoogleWebClientID: configuration.GoogleWebClientID,
	}
	if configuration.EnableCORS {
		serverConfig.AllowedOrigins = configuration.CORSAllowedOrigins
	}

	clock := session.NewSystemClock()
	authServer, buildErr := authserver.New(serverConfig, users, authserver.NewMemoryRefreshTokenStore(clock), googleValidator, clock, logger)
	if buildErr != nil {
		return buildErr
	}

	gin.SetMode(gin.ReleaseMode)
	server := &http.Server{
		Addr:              configuration.ListenAddr,
		Handler:           authServer.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	go func() {
		stopSignals := make(chan os.Signal, 1)
		signal.Notify(stopSignals, syscall.SIGINT, syscall.SIGTERM)
		<-stopSignals
		graceCtx, graceCancel := context.WithTimeout(shutdownCtx, 10*time.Second)
		defer graceCancel()
		if err := server.Shutdown(graceCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
	}()

	logger.Info("listening", zap.String("addr", configuration.ListenAddr))
	if err := serveHTTP(server); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("listen error: %w", err)
	}
	return nil
}
