package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/language"

	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/localstore"
	"github.com/reyadatime/reyadatime/internal/observability"
	"github.com/reyadatime/reyadatime/internal/query"
	"github.com/reyadatime/reyadatime/internal/sqlexec"
)

const (
	DefaultAuthUserTable = `"neon_auth"."user"`
	profilesTable        = "profiles"
	defaultTokenTTL      = 30 * 24 * time.Hour
)

// privilegedKeys may never be supplied through sign-up profile data.
var privilegedKeys = []string{"id", "email", "password", "password_hash", "role", "is_active"}

// hiddenUserKeys are stripped from rows before they reach a session.
var hiddenUserKeys = []string{"password", "password_hash"}

type Options struct {
	Store         localstore.Store
	Logger        *slog.Logger
	TokenSecret   string
	TokenTTL      time.Duration
	BcryptCost    int
	Language      string
	AuthUserTable string
	Clock         func() time.Time
}

// Client signs users in and out against the profiles table and keeps the
// current session in a local store.
type Client struct {
	db            *query.Client
	store         localstore.Store
	logger        *slog.Logger
	secret        []byte
	ttl           time.Duration
	cost          int
	lang          language.Tag
	authUserTable string
	now           func() time.Time
	listeners     listeners
}

func New(db *query.Client, opts Options) *Client {
	store := opts.Store
	if store == nil {
		store = localstore.NewMemory()
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	table := opts.AuthUserTable
	if table == "" {
		table = DefaultAuthUserTable
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	return &Client{
		db:            db,
		store:         store,
		logger:        observability.WithComponent(opts.Logger, "auth"),
		secret:        []byte(opts.TokenSecret),
		ttl:           ttl,
		cost:          cost,
		lang:          matchLanguage(opts.Language),
		authUserTable: table,
		now:           now,
	}
}

// User is a profile row without credential columns.
type User map[string]any

func (u User) ID() string    { return stringField(u, "id") }
func (u User) Email() string { return stringField(u, "email") }

func (u User) Role() string {
	if role := stringField(u, "role"); role != "" {
		return role
	}
	return RoleUser
}

func stringField(m map[string]any, key string) string {
	value, _ := m[key].(string)
	return value
}

type Session struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
	User        User   `json:"user"`
}

type AuthResponse struct {
	User    User     `json:"user"`
	Session *Session `json:"session"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type SignUpInput struct {
	Email    string         `json:"email"`
	Password string         `json:"password"`
	Data     map[string]any `json:"data"`
}

type UserAttributes struct {
	Password string `json:"password"`
}

type OAuthOptions struct {
	Provider   string
	RedirectTo string
}

type OAuthResponse struct {
	URL      string `json:"url"`
	Provider string `json:"provider"`
	Message  string `json:"message"`
}

type ResetOptions struct {
	RedirectTo string
}

func (c *Client) message(key string) string {
	return translate(c.lang, key)
}

func (c *Client) invalidCredentials() error {
	return errs.New(errs.KindInvalidCredentials, c.message(msgInvalidCredentials))
}

func (c *Client) SignInWithPassword(ctx context.Context, creds Credentials) (AuthResponse, error) {
	email := strings.TrimSpace(creds.Email)
	if email == "" || creds.Password == "" {
		return AuthResponse{}, c.invalidCredentials()
	}

	result := c.db.From(profilesTable).Select("*").Eq("email", email).Single().Execute(ctx)
	if result.Error != nil {
		switch result.Error.Kind {
		case errs.KindNotFound, errs.KindAmbiguous:
			return AuthResponse{}, c.invalidCredentials()
		default:
			return AuthResponse{}, result.Error
		}
	}
	row := result.Row()
	hash, _ := row["password_hash"].(string)
	if hash == "" || bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)) != nil {
		c.logger.InfoContext(ctx, "sign in rejected", slog.String("email", email))
		return AuthResponse{}, c.invalidCredentials()
	}

	return c.establish(ctx, publicUser(row))
}

func (c *Client) SignUp(ctx context.Context, input SignUpInput) (AuthResponse, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return AuthResponse{}, errs.New(errs.KindValidation, "email and password are required")
	}

	check := c.db.From(profilesTable).Select("id").Eq("email", email).MaybeSingle().Execute(ctx)
	if check.Error != nil {
		return AuthResponse{}, check.Error
	}
	if check.Data != nil {
		return AuthResponse{}, errs.New(errs.KindConflict, c.message(msgUserExists))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), c.cost)
	if err != nil {
		return AuthResponse{}, errs.Wrap(errs.KindValidation, err)
	}

	userID := uuid.NewString()
	data := profileData(input.Data)
	authUser := query.Record{
		"id":            userID,
		"name":          displayName(data),
		"email":         email,
		"emailVerified": false,
		"updatedAt":     c.now().UTC().Format(time.RFC3339Nano),
	}
	profile := query.Record{
		"id":            userID,
		"email":         email,
		"password_hash": string(hash),
	}
	for key, value := range data {
		profile[key] = value
	}

	row, err := c.insertUser(ctx, authUser, profile)
	if err != nil {
		return AuthResponse{}, err
	}
	return c.establish(ctx, publicUser(row))
}

// insertUser writes the auth user row and then the profile row, atomically when
// the executor supports batches.
func (c *Client) insertUser(ctx context.Context, authUser, profile query.Record) (sqlexec.Row, error) {
	if batcher, ok := c.db.Executor().(sqlexec.Batcher); ok {
		userStmt, err := c.db.From(c.authUserTable).Insert(authUser).Select("id").Compile()
		if err != nil {
			return nil, errs.From(err)
		}
		profileStmt, err := c.db.From(profilesTable).Insert(profile).Compile()
		if err != nil {
			return nil, errs.From(err)
		}
		results, err := batcher.ExecuteBatch(ctx, []sqlexec.Statement{userStmt, profileStmt})
		if err != nil {
			c.logger.ErrorContext(ctx, "failed to create user", slog.String("error", err.Error()))
			if sqlexec.IsUniqueViolation(err) {
				return nil, errs.New(errs.KindConflict, c.message(msgUserExists))
			}
			return nil, errs.From(err)
		}
		if len(results) != 2 || len(results[1]) != 1 {
			return nil, errs.New(errs.KindTransport, "unexpected sign-up result")
		}
		return results[1][0], nil
	}

	// Without batch support the two inserts commit independently.
	if res := c.db.From(c.authUserTable).Insert(authUser).Select("id").Single().Execute(ctx); res.Error != nil {
		c.logger.ErrorContext(ctx, "failed to create auth user", slog.String("error", res.Error.Error()))
		return nil, res.Error
	}
	res := c.db.From(profilesTable).Insert(profile).Single().Execute(ctx)
	if res.Error != nil {
		return nil, res.Error
	}
	return res.Row(), nil
}

func (c *Client) establish(ctx context.Context, user User) (AuthResponse, error) {
	issuedAt := c.now()
	token, err := IssueToken(c.secret, Identity{UserID: user.ID(), Email: user.Email(), Role: user.Role()}, issuedAt, c.ttl)
	if err != nil {
		return AuthResponse{}, errs.Wrap(errs.KindTransport, err)
	}
	session := &Session{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   issuedAt.Add(c.ttl).Unix(),
		User:        user,
	}
	raw, err := json.Marshal(session)
	if err != nil {
		return AuthResponse{}, errs.Wrap(errs.KindTransport, err)
	}
	if err := c.store.Set(localstore.SessionKey, string(raw)); err != nil {
		return AuthResponse{}, errs.Wrap(errs.KindTransport, err)
	}
	c.logger.InfoContext(ctx, "signed in", slog.String("user_id", user.ID()))
	c.listeners.notify(EventSignedIn, session)
	return AuthResponse{User: user, Session: session}, nil
}

// SignOut clears the stored session. It always succeeds.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.store.Remove(localstore.SessionKey); err != nil {
		c.logger.WarnContext(ctx, "failed to clear session", slog.String("error", err.Error()))
	}
	c.listeners.notify(EventSignedOut, nil)
	return nil
}

// GetSession returns the stored session, or nil when there is none. A value
// that cannot be decoded is deleted.
func (c *Client) GetSession(ctx context.Context) (*Session, error) {
	raw, ok, err := c.store.Get(localstore.SessionKey)
	if err != nil {
		return nil, errs.Wrap(errs.KindTransport, err)
	}
	if !ok {
		return nil, nil
	}
	var session Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil || session.AccessToken == "" {
		c.logger.WarnContext(ctx, "discarding corrupt session")
		if err := c.store.Remove(localstore.SessionKey); err != nil {
			c.logger.WarnContext(ctx, "failed to clear session", slog.String("error", err.Error()))
		}
		return nil, nil
	}
	return &session, nil
}

func (c *Client) OnAuthStateChange(listener Listener) *Subscription {
	return c.listeners.add(listener)
}

// UpdateUser changes attributes of the signed-in user. Only the password is supported.
func (c *Client) UpdateUser(ctx context.Context, attrs UserAttributes) error {
	session, err := c.GetSession(ctx)
	if err != nil {
		return err
	}
	if session == nil || session.User.ID() == "" {
		return errs.New(errs.KindAuthState, c.message(msgNoSession))
	}
	if attrs.Password == "" {
		return errs.New(errs.KindValidation, "no supported attributes to update")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(attrs.Password), c.cost)
	if err != nil {
		return errs.Wrap(errs.KindValidation, err)
	}
	result := c.db.From(profilesTable).
		Update(query.Record{"password_hash": string(hash)}).
		Eq("id", session.User.ID()).
		Select("id").
		Execute(ctx)
	return result.Err()
}

func (c *Client) SignInWithOAuth(ctx context.Context, opts OAuthOptions) (OAuthResponse, error) {
	c.logger.InfoContext(ctx, "oauth sign in requested",
		slog.String("provider", opts.Provider),
		slog.String("redirect_to", opts.RedirectTo),
	)
	return OAuthResponse{URL: opts.RedirectTo, Provider: opts.Provider, Message: c.message(msgMockOAuth)}, nil
}

func (c *Client) ResetPasswordForEmail(ctx context.Context, email string, opts ResetOptions) error {
	c.logger.InfoContext(ctx, "password reset requested",
		slog.String("email", email),
		slog.String("redirect_to", opts.RedirectTo),
	)
	return nil
}

func profileData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for key, value := range data {
		if value == nil {
			continue
		}
		out[key] = value
	}
	for _, key := range privilegedKeys {
		delete(out, key)
	}
	return out
}

func displayName(data map[string]any) string {
	for _, key := range []string{"name", "full_name"} {
		if name, ok := data[key].(string); ok && name != "" {
			return name
		}
	}
	return ""
}

func publicUser(row sqlexec.Row) User {
	user := make(User, len(row))
	for key, value := range row {
		user[key] = value
	}
	for _, key := range hiddenUserKeys {
		delete(user, key)
	}
	return user
}

// IsInvalidCredentials reports whether err is a rejected sign in.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, errs.ErrInvalidCredentials)
}
