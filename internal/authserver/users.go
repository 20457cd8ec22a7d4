package authserver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Profile is the user payload embedded in access tokens and returned from
// the profile endpoint.
type Profile struct {
	UserID      string
	Email       string
	DisplayName string
	Roles       []string
}

type userRecord struct {
	UserID       string
	Identifier   string
	DisplayName  string
	Roles        []string
	PasswordHash []byte
	GoogleSub    string
}

// InMemoryUsers stores application users with bcrypt password hashes.
type InMemoryUsers struct {
	mutex        sync.Mutex
	byIdentifier map[string]*userRecord
	byUserID     map[string]*userRecord
	byGoogleSub  map[string]string
}

// NewInMemoryUsers creates an empty user store.
func NewInMemoryUsers() *InMemoryUsers {
	return &InMemoryUsers{
		byIdentifier: make(map[string]*userRecord),
		byUserID:     make(map[string]*userRecord),
		byGoogleSub:  make(map[string]string),
	}
}

// CreatePasswordUser registers a password-backed user and returns its id.
func (store *InMemoryUsers) CreatePasswordUser(ctx context.Context, identifier string, password string, displayName string, roles []string) (string, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))
	if identifier == "" || password == "" {
		return "", fmt.Errorf("authserver.users.create: %w", ErrInvalidCredentials)
	}
	passwordHash, hashErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if hashErr != nil {
		return "", fmt.Errorf("authserver.users.hash: %w", hashErr)
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	if _, exists := store.byIdentifier[identifier]; exists {
		return "", ErrIdentifierTaken
	}
	record := &userRecord{
		UserID:       uuid.NewString(),
		Identifier:   identifier,
		DisplayName:  displayName,
		Roles:        roles,
		PasswordHash: passwordHash,
	}
	store.byIdentifier[identifier] = record
	store.byUserID[record.UserID] = record
	return record.UserID, nil
}

// VerifyPassword checks an identifier/password pair and returns the profile.
func (store *InMemoryUsers) VerifyPassword(ctx context.Context, identifier string, password string) (Profile, error) {
	identifier = strings.ToLower(strings.TrimSpace(identifier))

	store.mutex.Lock()
	record, exists := store.byIdentifier[identifier]
	store.mutex.Unlock()
	if !exists || len(record.PasswordHash) == 0 {
		return Profile{}, ErrInvalidCredentials
	}
	if compareErr := bcrypt.CompareHashAndPassword(record.PasswordHash, []byte(password)); compareErr != nil {
		return Profile{}, ErrInvalidCredentials
	}
	return profileOf(record), nil
}

// UpsertGoogleUser links a verified Google identity to an application user,
// creating one on first sign-in.
func (store *InMemoryUsers) UpsertGoogleUser(ctx context.Context, googleSub string, userEmail string, userDisplayName string) (Profile, error) {
	userEmail = strings.ToLower(strings.TrimSpace(userEmail))
	if googleSub == "" || userEmail == "" {
		return Profile{}, ErrInvalidCredentials
	}

	store.mutex.Lock()
	defer store.mutex.Unlock()
	if userID, linked := store.byGoogleSub[googleSub]; linked {
		return profileOf(store.byUserID[userID]), nil
	}
	if record, exists := store.byIdentifier[userEmail]; exists {
		record.GoogleSub = googleSub
		store.byGoogleSub[googleSub] = record.UserID
		return profileOf(record), nil
	}
	record := &userRecord{
		UserID:      uuid.NewString(),
		Identifier:  userEmail,
		DisplayName: userDisplayName,
		Roles:       []string{"user"},
		GoogleSub:   googleSub,
	}
	store.byIdentifier[userEmail] = record
	store.byUserID[record.UserID] = record
	store.byGoogleSub[googleSub] = record.UserID
	return profileOf(record), nil
}

// GetProfile returns the profile for a user id.
func (store *InMemoryUsers) GetProfile(ctx context.Context, userID string) (Profile, error) {
	store.mutex.Lock()
	record, exists := store.byUserID[userID]
	store.mutex.Unlock()
	if !exists {
		return Profile{}, ErrUserNotFound
	}
	return profileOf(record), nil
}

func profileOf(record *userRecord) Profile {
	return Profile{
		UserID:      record.UserID,
		Email:       record.Identifier,
		DisplayName: record.DisplayName,
		Roles:       append([]string(nil), record.Roles...),
	}
}
