package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hmabdullah7770/sessionkit/pkg/session"
	"github.com/hmabdullah7770/sessionkit/pkg/vault"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

type clientConfig struct {
	BaseURL        string
	VaultURL       string
	ServiceName    string
	AgeIdentity    string
	HTTPTimeout    time.Duration
	RefreshTimeout time.Duration
}

func commandContext(command *cobra.Command) context.Context {
	if existingContext := command.Context(); existingContext != nil {
		return existingContext
	}
	return context.Background()
}

func loadClientConfig() (clientConfig, error) {
	baseURL := viper.GetString("base_url")
	if baseURL == "" {
		return clientConfig{}, configError(configCodeMissingBaseURL, "base_url must be provided")
	}
	return clientConfig{
		BaseURL:        baseURL,
		VaultURL:       viper.GetString("vault_url"),
		ServiceName:    viper.GetString("service_name"),
		AgeIdentity:    viper.GetString("age_identity"),
		HTTPTimeout:    viper.GetDuration("http_timeout"),
		RefreshTimeout: viper.GetDuration("refresh_timeout"),
	}, nil
}

func buildCredentialVault(ctx context.Context, configuration clientConfig) (vault.Vault, error) {
	credentialVault, openErr := vault.Open(ctx, configuration.VaultURL, configuration.ServiceName)
	if openErr != nil {
		return nil, fmt.Errorf("%s: %w", configCodeVaultInit, openErr)
	}
	if configuration.AgeIdentity == "" {
		return credentialVault, nil
	}
	sealedVault, sealErr := vault.NewSealedVault(credentialVault, configuration.AgeIdentity)
	if sealErr != nil {
		return nil, fmt.Errorf("%s: %w", configCodeInvalidAgeIdentity, sealErr)
	}
	return sealedVault, nil
}

func buildSessionClient(ctx context.Context, logger *zap.Logger) (*session.Client, error) {
	configuration, loadErr := loadClientConfig()
	if loadErr != nil {
		return nil, loadErr
	}
	credentialVault, vaultErr := buildCredentialVault(ctx, configuration)
	if vaultErr != nil {
		return nil, vaultErr
	}
	clientConfiguration := session.Config{
		BaseURL:        configuration.BaseURL,
		Vault:          credentialVault,
		Logger:         logger,
		RefreshTimeout: configuration.RefreshTimeout,
	}
	if configuration.HTTPTimeout > 0 {
		clientConfiguration.HTTPClient = &http.Client{Timeout: configuration.HTTPTimeout}
	}
	return session.New(clientConfiguration)
}

func newLoginCommand() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange credentials for a token pair and persist it in the vault",
		RunE:  runLogin,
	}
	loginCmd.Flags().String("identifier", "", "Account identifier (email or username)")
	loginCmd.Flags().String("password", "", "Account password")
	loginCmd.Flags().String("google_id_token", "", "Google ID token for Google sign-in")
	_ = viper.BindPFlag("identifier", loginCmd.Flags().Lookup("identifier"))
	_ = viper.BindPFlag("password", loginCmd.Flags().Lookup("password"))
	_ = viper.BindPFlag("google_id_token", loginCmd.Flags().Lookup("google_id_token"))
	return loginCmd
}

func runLogin(command *cobra.Command, arguments []string) error {
	ctx := commandContext(command)
	client, buildErr := buildSessionClient(ctx, zap.NewNop())
	if buildErr != nil {
		return buildErr
	}

	snapshot, loginErr := client.Login(ctx, session.Credentials{
		Identifier:    viper.GetString("identifier"),
		Password:      viper.GetString("password"),
		GoogleIDToken: viper.GetString("google_id_token"),
	})
	if loginErr != nil {
		return loginErr
	}
	fmt.Fprintf(command.OutOrStdout(), "logged in as %s (%s)\n", snapshot.User.GetUserEmail(), snapshot.User.GetUserID())
	return nil
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session server-side and clear the vault",
		RunE:  runLogout,
	}
}

func runLogout(command *cobra.Command, arguments []string) error {
	ctx := commandContext(command)
	client, buildErr := buildSessionClient(ctx, zap.NewNop())
	if buildErr != nil {
		return buildErr
	}
	if _, bootstrapErr := client.Bootstrap(ctx); bootstrapErr != nil {
		return bootstrapErr
	}

	status, logoutErr := client.Logout(ctx)
	if logoutErr != nil {
		return logoutErr
	}
	fmt.Fprintln(command.OutOrStdout(), string(status))
	return nil
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the profile of the current session",
		RunE:  runWhoami,
	}
}

func runWhoami(command *cobra.Command, arguments []string) error {
	ctx := commandContext(command)
	client, buildErr := buildSessionClient(ctx, zap.NewNop())
	if buildErr != nil {
		return buildErr
	}
	snapshot, bootstrapErr := client.Bootstrap(ctx)
	if bootstrapErr != nil {
		return bootstrapErr
	}
	if !snapshot.IsAuthenticated {
		return session.ErrNotAuthenticated
	}

	response, doErr := client.Do(ctx, http.MethodGet, "/api/profile", nil)
	if doErr != nil {
		return doErr
	}
	defer func() { _ = response.Body.Close() }()
	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("profile request answered %d", response.StatusCode)
	}
	if _, copyErr := io.Copy(command.OutOrStdout(), response.Body); copyErr != nil {
		return copyErr
	}
	fmt.Fprintln(command.OutOrStdout())
	return nil
}
