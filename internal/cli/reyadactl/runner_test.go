package reyadactl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reyadatime/reyadatime/internal/auth"
	"github.com/reyadatime/reyadatime/internal/catalog"
	"github.com/reyadatime/reyadatime/internal/errs"
	"github.com/reyadatime/reyadatime/internal/storage"
)

var fixedNow = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

func TestRunWithoutArgsPrintsUsage(t *testing.T) {
	var stderr bytes.Buffer
	code := Run(context.Background(), nil, Options{Stderr: &stderr})
	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "reyadactl") {
		t.Fatalf("usage = %q", stderr.String())
	}
}

func TestRunUnknownCommandFails(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("teleport")
	if code == 0 {
		t.Fatal("expected failure for unknown command")
	}
	if env.connects != 0 {
		t.Fatalf("connects = %d, want 0", env.connects)
	}
}

func TestRunBadFlagIsUsageError(t *testing.T) {
	env := newTestEnv(t)
	if code := env.run("facilities", "--limit", "many"); code != 2 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
}

func TestSignInStoresSessionAndPrintsUser(t *testing.T) {
	env := newTestEnv(t)
	if code := env.run("signin", "--email", "a@example.com", "--password", "pw"); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
	var user map[string]any
	if err := json.Unmarshal(env.stdout.Bytes(), &user); err != nil {
		t.Fatalf("json decode failed: %v, out=%s", err, env.stdout.String())
	}
	if user["id"] != "u1" {
		t.Fatalf("user = %v", user)
	}
	if env.auth.session == nil {
		t.Fatal("session not stored")
	}
	if env.connects != 1 || !env.closed {
		t.Fatalf("connects = %d, closed = %v", env.connects, env.closed)
	}
}

func TestSignInFailureExitsNonZero(t *testing.T) {
	env := newTestEnv(t)
	if code := env.run("signin", "--email", "a@example.com", "--password", "wrong"); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(env.stderr.String(), "Invalid email or password") {
		t.Fatalf("stderr = %q", env.stderr.String())
	}
}

func TestSignUpPassesProfileData(t *testing.T) {
	env := newTestEnv(t)
	if code := env.run("signup", "--email", "n@example.com", "--password", "long-enough", "--name", "Noor"); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if env.auth.lastSignUp.Data["full_name"] != "Noor" {
		t.Fatalf("data = %v", env.auth.lastSignUp.Data)
	}
	if _, ok := env.auth.lastSignUp.Data["phone"]; ok {
		t.Fatal("empty phone should be omitted")
	}
}

func TestSessionAndSignOut(t *testing.T) {
	env := newTestEnv(t)
	env.auth.signIn()

	if code := env.run("session"); code != 0 {
		t.Fatalf("session exit code = %d", code)
	}
	if !strings.Contains(env.stdout.String(), `"expired": false`) {
		t.Fatalf("session output = %s", env.stdout.String())
	}

	env.stdout.Reset()
	if code := env.run("signout"); code != 0 {
		t.Fatalf("signout exit code = %d", code)
	}
	env.stdout.Reset()
	if code := env.run("session"); code != 0 {
		t.Fatalf("session exit code = %d", code)
	}
	if strings.TrimSpace(env.stdout.String()) != "no session" {
		t.Fatalf("session output = %q", env.stdout.String())
	}
}

func TestBookingsRequireSession(t *testing.T) {
	env := newTestEnv(t)
	if code := env.run("bookings"); code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(env.stderr.String(), "not signed in") {
		t.Fatalf("stderr = %q", env.stderr.String())
	}

	env.auth.signIn()
	env.stderr.Reset()
	if code := env.run("bookings"); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if env.catalog.bookingsFor != "u1" {
		t.Fatalf("bookings for = %q", env.catalog.bookingsFor)
	}
}

func TestCancelBookingPassesReason(t *testing.T) {
	env := newTestEnv(t)
	env.auth.signIn()
	if code := env.run("bookings", "cancel", "b7", "--reason", "rain"); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if env.catalog.cancelled != "u1/b7/rain" {
		t.Fatalf("cancelled = %q", env.catalog.cancelled)
	}
}

func TestFacilitiesFlagsBuildFilter(t *testing.T) {
	env := newTestEnv(t)
	code := env.run("facilities", "--country", "QA", "--city-id", "3", "--type", "padel", "--q", "club", "--featured", "--limit", "5")
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
	want := catalog.FacilityFilter{CountryCode: "QA", CityID: 3, FacilityType: "padel", Search: "club", FeaturedOnly: true, Limit: 5}
	if env.catalog.filter != want {
		t.Fatalf("filter = %+v", env.catalog.filter)
	}
}

func TestUploadAvatarAndTimestampedObject(t *testing.T) {
	env := newTestEnv(t)
	env.auth.signIn()

	dir := t.TempDir()
	avatar := filepath.Join(dir, "Me.PNG")
	if err := os.WriteFile(avatar, []byte("\x89PNG\r\n\x1a\nrest"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if code := env.run("upload", "--avatar", avatar); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if _, ok := env.objects.data["u1/avatar.png"]; !ok {
		t.Fatalf("stored keys = %v", env.objects.keys())
	}
	if !strings.Contains(env.stdout.String(), `"publicUrl": "https://cdn.example.com/u1/avatar.png"`) {
		t.Fatalf("stdout = %s", env.stdout.String())
	}

	doc := filepath.Join(dir, "notes.txt")
	if err := os.WriteFile(doc, []byte("hello"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if code := env.run("upload", "--folder", "docs", doc); code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, env.stderr.String())
	}
	key := "docs/u1/20260304T103000.000000000Z.txt"
	if string(env.objects.data[key]) != "hello" {
		t.Fatalf("stored keys = %v", env.objects.keys())
	}
	if env.objects.types[key] != "text/plain; charset=utf-8" {
		t.Fatalf("content type = %q", env.objects.types[key])
	}
}

func TestRemoveAndURL(t *testing.T) {
	env := newTestEnv(t)
	env.objects.data["u1/avatar.png"] = []byte("x")

	if code := env.run("url", "/u1/avatar.png"); code != 0 {
		t.Fatalf("url exit code = %d", code)
	}
	if strings.TrimSpace(env.stdout.String()) != "https://cdn.example.com/u1/avatar.png" {
		t.Fatalf("url output = %q", env.stdout.String())
	}

	if code := env.run("remove", "u1/avatar.png"); code != 0 {
		t.Fatalf("remove exit code = %d, stderr=%s", code, env.stderr.String())
	}
	if len(env.objects.data) != 0 {
		t.Fatalf("objects left = %v", env.objects.keys())
	}
	if code := env.run("remove", "u1/avatar.png"); code != 0 {
		t.Fatalf("second remove exit code = %d", code)
	}
}

type testEnv struct {
	t        *testing.T
	auth     *fakeSession
	catalog  *fakeCatalog
	objects  *memoryObjects
	storage  *storage.Service
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	connects int
	closed   bool
}

func newTestEnv(t *testing.T) *testEnv {
	objects := &memoryObjects{data: map[string][]byte{}, types: map[string]string{}}
	return &testEnv{
		t:       t,
		auth:    &fakeSession{},
		catalog: &fakeCatalog{},
		objects: objects,
		storage: storage.NewService(objects, "https://cdn.example.com", nil),
	}
}

func (e *testEnv) run(args ...string) int {
	e.closed = false
	return Run(context.Background(), args, Options{
		Connect: func(context.Context) (*Backend, error) {
			e.connects++
			return &Backend{
				Auth:    e.auth,
				Catalog: e.catalog,
				Storage: e.storage,
				Close: func() error {
					e.closed = true
					return nil
				},
			}, nil
		},
		Clock:  func() time.Time { return fixedNow },
		Stdout: &e.stdout,
		Stderr: &e.stderr,
	})
}

type fakeSession struct {
	session    *auth.Session
	lastSignUp auth.SignUpInput
}

func (f *fakeSession) signIn() {
	f.session = &auth.Session{
		AccessToken: "tok",
		TokenType:   "bearer",
		ExpiresAt:   fixedNow.Add(time.Hour).Unix(),
		User:        auth.User{"id": "u1", "email": "a@example.com"},
	}
}

func (f *fakeSession) SignInWithPassword(_ context.Context, creds auth.Credentials) (auth.AuthResponse, error) {
	if creds.Password != "pw" {
		return auth.AuthResponse{}, errs.New(errs.KindInvalidCredentials, "Invalid email or password")
	}
	f.signIn()
	return auth.AuthResponse{User: f.session.User, Session: f.session}, nil
}

func (f *fakeSession) SignUp(_ context.Context, input auth.SignUpInput) (auth.AuthResponse, error) {
	f.lastSignUp = input
	f.signIn()
	return auth.AuthResponse{User: f.session.User, Session: f.session}, nil
}

func (f *fakeSession) SignOut(context.Context) error {
	f.session = nil
	return nil
}

func (f *fakeSession) GetSession(context.Context) (*auth.Session, error) {
	return f.session, nil
}

func (f *fakeSession) UpdateUser(context.Context, auth.UserAttributes) error {
	if f.session == nil {
		return errs.New(errs.KindAuthState, "No active session found")
	}
	return nil
}

// fakeCatalog implements only what the commands call; anything else panics.
type fakeCatalog struct {
	catalog.Repository
	filter      catalog.FacilityFilter
	bookingsFor string
	cancelled   string
}

func (f *fakeCatalog) ListCountries(context.Context) ([]catalog.Country, error) {
	return []catalog.Country{{ID: 1, Code: "QA", NameEN: "Qatar"}}, nil
}

func (f *fakeCatalog) ListFacilities(_ context.Context, filter catalog.FacilityFilter) ([]catalog.Facility, error) {
	f.filter = filter
	return []catalog.Facility{}, nil
}

func (f *fakeCatalog) ListBookingsForUser(_ context.Context, userID string) ([]catalog.Booking, error) {
	f.bookingsFor = userID
	return []catalog.Booking{}, nil
}

func (f *fakeCatalog) CancelBooking(_ context.Context, userID, bookingID, reason string) (catalog.Booking, error) {
	f.cancelled = userID + "/" + bookingID + "/" + reason
	return catalog.Booking{ID: bookingID, Status: catalog.BookingCancelledByUser}, nil
}

type memoryObjects struct {
	data  map[string][]byte
	types map[string]string
}

func (m *memoryObjects) Put(_ context.Context, key string, body io.Reader, _ int64, opts storage.PutOptions) (storage.ObjectInfo, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.data[key] = raw
	m.types[key] = opts.ContentType
	return storage.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	raw, ok := m.data[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (m *memoryObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	raw, ok := m.data[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(raw))}, nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	if _, ok := m.data[key]; !ok {
		return storage.ErrObjectNotFound
	}
	delete(m.data, key)
	return nil
}

func (m *memoryObjects) keys() []string {
	out := make([]string, 0, len(m.data))
	for key := range m.data {
		out = append(out, key)
	}
	return out
}
