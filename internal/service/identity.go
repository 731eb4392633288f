package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/macleann/fountainheadapi/internal/apperror"
	"github.com/macleann/fountainheadapi/internal/auth"
	"github.com/macleann/fountainheadapi/internal/model"
	"github.com/macleann/fountainheadapi/internal/repository"
)

// User-facing messages. The registration ones are what the game client
// already displays verbatim.
const (
	msgBadCredentials = "No active account found with the given credentials."
	msgEmailTaken     = "A user with this email already exists."
	msgUsernameTaken  = "A user with this username already exists."
)

// IdentityVerifier turns a third-party credential (a Google ID token, a
// GitHub authorization code) into a verified identity.
type IdentityVerifier interface {
	Verify(ctx context.Context, credential string) (*auth.Identity, error)
}

// IdentityProviders groups the optional third-party verifiers. A nil field
// disables that login path.
type IdentityProviders struct {
	Google IdentityVerifier
	GitHub IdentityVerifier
}

// AuthResult is what every login path hands back to the handler: the user,
// their game document and, except for Profile, a fresh token pair.
type AuthResult struct {
	User      *model.User
	GameState *model.GameState
	Tokens    auth.TokenPair
}

// RegisterInput is a password registration request.
type RegisterInput struct {
	Username  string
	Email     string
	Password  string
	FirstName string
	LastName  string
	// State seeds the new game document. Absent or null means a fresh game.
	State json.RawMessage
}

// IdentityService resolves "who is this?" for every entry point and makes
// sure the answer always comes with a game document.
//
// THREE WAYS IN:
//   - Login: username + password against an existing account
//   - Register: create account + document atomically
//   - LoginWithIdentity: a third-party provider vouched for an email;
//     find that account or create it
//
// Email is the join key between the paths. A player who registered with a
// password and later uses "Sign in with Google" with the same address gets
// the same account and the same save.
type IdentityService struct {
	users     repository.UserRepository
	state     *StateService
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	providers IdentityProviders
	logger    *slog.Logger
}

// NewIdentityService creates an IdentityService.
func NewIdentityService(
	users repository.UserRepository,
	state *StateService,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	providers IdentityProviders,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:     users,
		state:     state,
		tokens:    tokens,
		passwords: passwords,
		providers: providers,
		logger:    logger,
	}
}

// Login authenticates with username and password. It never creates an
// account. Unknown usernames and wrong passwords produce the same error so
// the response does not reveal which usernames exist.
func (s *IdentityService) Login(ctx context.Context, username, password string) (*AuthResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.ValidationFailed("username", "This field is required.")
	}
	if password == "" {
		return nil, apperror.ValidationFailed("password", "This field is required.")
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthorized(msgBadCredentials)
		}
		return nil, fmt.Errorf("service/identity: looking up %q: %w", username, err)
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		s.logger.Info("password login rejected",
			slog.String("userID", user.ID),
			slog.Bool("usablePassword", user.HasUsablePassword()),
		)
		return nil, apperror.Unauthorized(msgBadCredentials)
	}

	return s.issue(ctx, user)
}

// Register creates a password account together with its game document.
//
// The email check runs first so its message wins when both email and
// username are taken. It is only a courtesy: the UNIQUE constraints inside
// CreateWithState are what actually prevent duplicates under concurrency,
// and both constraint violations map to the same messages.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*AuthResult, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = auth.NormalizeEmail(in.Email)

	switch {
	case in.Username == "":
		return nil, apperror.ValidationFailed("username", "This field is required.")
	case in.Email == "":
		return nil, apperror.ValidationFailed("email", "This field is required.")
	case in.Password == "":
		return nil, apperror.ValidationFailed("password", "This field is required.")
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return nil, apperror.Conflict("email", msgEmailTaken)
	} else if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: checking email: %w", err)
	}

	hash, err := s.passwords.Hash(in.Password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", "Password must be 72 bytes or fewer.")
	}

	user := &model.User{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
	}

	gs, err := s.users.CreateWithState(ctx, user, seedState(in.State))
	if err != nil {
		return nil, conflictMessage(err)
	}

	s.logger.Info("user registered",
		slog.String("userID", user.ID),
		slog.String("username", user.Username),
	)
	return s.withTokens(user, gs)
}

// LoginWithIdentity signs in the account owning id.Email, creating it (with
// username = email and no usable password) if none exists.
//
// A newly created account's document is seeded from state. For an existing
// account state is ignored and the stored document is left as it is: a
// half-played guest session on a new device must not overwrite a real save.
//
// Two first-time logins for the same email can race. The loser's insert
// hits the UNIQUE(email) constraint, and it then reads the winner's row.
func (s *IdentityService) LoginWithIdentity(ctx context.Context, id *auth.Identity, state json.RawMessage) (*AuthResult, error) {
	email := auth.NormalizeEmail(id.Email)
	if email == "" {
		return nil, apperror.InvalidToken(errors.New("identity carries no email"))
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return s.issue(ctx, user)
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: looking up %s: %w", email, err)
	}

	user = &model.User{
		Username:  email,
		Email:     email,
		FirstName: id.FirstName,
		LastName:  id.LastName,
	}
	gs, err := s.users.CreateWithState(ctx, user, seedState(state))
	if err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			return nil, fmt.Errorf("service/identity: creating user for %s: %w", email, err)
		}
		winner, lookupErr := s.users.GetByEmail(ctx, email)
		if lookupErr != nil {
			// The conflict was on username: someone registered a password
			// account whose username is this email address.
			return nil, conflictMessage(err)
		}
		s.logger.Debug("lost third-party signup race", slog.String("email", email))
		return s.issue(ctx, winner)
	}

	s.logger.Info("user created from third-party identity",
		slog.String("userID", user.ID),
		slog.String("email", email),
	)
	return s.withTokens(user, gs)
}

// LoginWithGoogle verifies a Google ID token and signs its owner in.
func (s *IdentityService) LoginWithGoogle(ctx context.Context, idToken string, state json.RawMessage) (*AuthResult, error) {
	return s.loginWithProvider(ctx, "google", s.providers.Google, idToken, state)
}

// LoginWithGitHub exchanges a GitHub authorization code and signs its owner in.
func (s *IdentityService) LoginWithGitHub(ctx context.Context, code string, state json.RawMessage) (*AuthResult, error) {
	return s.loginWithProvider(ctx, "github", s.providers.GitHub, code, state)
}

func (s *IdentityService) loginWithProvider(ctx context.Context, name string, v IdentityVerifier, credential string, state json.RawMessage) (*AuthResult, error) {
	if v == nil {
		return nil, apperror.ServiceError(name+" sign-in is not enabled.", fmt.Errorf("no %s verifier configured", name))
	}
	if strings.TrimSpace(credential) == "" {
		return nil, apperror.ValidationFailed("credential", "This field is required.")
	}

	id, err := v.Verify(ctx, credential)
	if err != nil {
		s.logger.Info("third-party credential rejected",
			slog.String("provider", name),
			slog.String("error", err.Error()),
		)
		return nil, apperror.InvalidToken(err)
	}
	return s.LoginWithIdentity(ctx, id, state)
}

// Refresh trades a refresh token for a new access token.
func (s *IdentityService) Refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		return "", apperror.ValidationFailed("refresh", "This field is required.")
	}
	access, err := s.tokens.Refresh(refreshToken)
	if err != nil {
		return "", apperror.Unauthorized("Token is invalid or expired.")
	}
	return access, nil
}

// Profile returns the user and their game document. No tokens are issued.
func (s *IdentityService) Profile(ctx context.Context, userID string) (*AuthResult, error) {
	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: fetching user %s: %w", userID, err)
	}
	gs, err := s.state.Ensure(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: user, GameState: gs}, nil
}

// issue ensures the document exists and attaches a token pair.
func (s *IdentityService) issue(ctx context.Context, user *model.User) (*AuthResult, error) {
	gs, err := s.state.Ensure(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return s.withTokens(user, gs)
}

func (s *IdentityService) withTokens(user *model.User, gs *model.GameState) (*AuthResult, error) {
	pair, err := s.tokens.IssuePair(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/identity: issuing tokens for %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, GameState: gs, Tokens: pair}, nil
}

// seedState is the document a brand-new account starts with.
func seedState(raw json.RawMessage) json.RawMessage {
	if model.IsNullState(raw) {
		return model.InitialState
	}
	normalized := model.NormalizeState(raw)
	if model.IsNullState(normalized) {
		return model.InitialState
	}
	return normalized
}

// conflictMessage rewrites a store-level unique violation into the message
// the client shows. Other errors pass through.
func conflictMessage(err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) || !errors.Is(err, apperror.ErrConflict) {
		return fmt.Errorf("service/identity: creating user: %w", err)
	}
	if appErr.Field == "email" {
		return apperror.Conflict("email", msgEmailTaken)
	}
	return apperror.Conflict("username", msgUsernameTaken)
}
