package reyadactl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/reyadatime/reyadatime/internal/auth"
	"github.com/reyadatime/reyadatime/internal/catalog"
	"github.com/reyadatime/reyadatime/internal/storage"
)

// SessionClient is the auth surface the CLI drives; *auth.Client satisfies it.
type SessionClient interface {
	SignInWithPassword(ctx context.Context, creds auth.Credentials) (auth.AuthResponse, error)
	SignUp(ctx context.Context, input auth.SignUpInput) (auth.AuthResponse, error)
	SignOut(ctx context.Context) error
	GetSession(ctx context.Context) (*auth.Session, error)
	UpdateUser(ctx context.Context, attrs auth.UserAttributes) error
}

// Backend is what a command needs once connected.
type Backend struct {
	Auth    SessionClient
	Catalog catalog.Repository
	Storage *storage.Service
	Close   func() error
}

type Options struct {
	// Connect is called once per invocation, after flags are parsed.
	Connect func(ctx context.Context) (*Backend, error)
	Clock   func() time.Time
	Stdout  io.Writer
	Stderr  io.Writer
}

func Run(ctx context.Context, args []string, opts Options) int {
	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	r := &runner{opts: opts, stdout: stdout}
	defer r.close()

	root := r.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if len(args) == 0 {
		_ = root.Usage()
		return 2
	}
	if err := root.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintf(stderr, "error: %v\n", err)
		var usage usageError
		if errors.As(err, &usage) {
			return 2
		}
		return 1
	}
	return 0
}

type usageError struct{ msg string }

func (e usageError) Error() string { return e.msg }

type runner struct {
	opts    Options
	stdout  io.Writer
	backend *Backend
}

func (r *runner) connect(ctx context.Context) (*Backend, error) {
	if r.backend != nil {
		return r.backend, nil
	}
	if r.opts.Connect == nil {
		return nil, errors.New("no backend configured")
	}
	backend, err := r.opts.Connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	r.backend = backend
	return backend, nil
}

func (r *runner) close() {
	if r.backend != nil && r.backend.Close != nil {
		_ = r.backend.Close()
	}
}

func (r *runner) print(value any) error {
	formatted, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(r.stdout, string(formatted))
	return err
}

// currentUserID returns the signed-in user, failing when there is no session.
func (r *runner) currentUserID(ctx context.Context, backend *Backend) (string, error) {
	session, err := backend.Auth.GetSession(ctx)
	if err != nil {
		return "", err
	}
	if session == nil || session.User.ID() == "" {
		return "", errors.New("not signed in; run `reyadactl signin` first")
	}
	return session.User.ID(), nil
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "reyadactl",
		Short:         "Reyada Time data access from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{msg: err.Error()}
	})
	root.AddCommand(
		r.signInCommand(),
		r.signUpCommand(),
		r.signOutCommand(),
		r.sessionCommand(),
		r.passwordCommand(),
		r.countriesCommand(),
		r.facilitiesCommand(),
		r.bookingsCommand(),
		r.uploadCommand(),
		r.removeCommand(),
		r.urlCommand(),
	)
	return root
}

func (r *runner) signInCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "signin",
		Short: "Sign in with email and password and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			resp, err := backend.Auth.SignInWithPassword(cmd.Context(), auth.Credentials{Email: email, Password: password})
			if err != nil {
				return err
			}
			return r.print(resp.User)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (r *runner) signUpCommand() *cobra.Command {
	var email, password, name, phone string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			data := map[string]any{}
			if name != "" {
				data["full_name"] = name
			}
			if phone != "" {
				data["phone"] = phone
			}
			resp, err := backend.Auth.SignUp(cmd.Context(), auth.SignUpInput{Email: email, Password: password, Data: data})
			if err != nil {
				return err
			}
			return r.print(resp.User)
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().StringVar(&password, "password", "", "account password")
	cmd.Flags().StringVar(&name, "name", "", "full name")
	cmd.Flags().StringVar(&phone, "phone", "", "phone number")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func (r *runner) signOutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "signout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := backend.Auth.SignOut(cmd.Context()); err != nil {
				return err
			}
			_, err = fmt.Fprintln(r.stdout, "signed out")
			return err
		},
	}
}

func (r *runner) sessionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Print the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			session, err := backend.Auth.GetSession(cmd.Context())
			if err != nil {
				return err
			}
			if session == nil {
				_, err = fmt.Fprintln(r.stdout, "no session")
				return err
			}
			expires := time.Unix(session.ExpiresAt, 0).UTC()
			return r.print(map[string]any{
				"user":       session.User,
				"expires_at": expires.Format(time.RFC3339),
				"expired":    !r.opts.Clock().Before(expires),
			})
		},
	}
}

func (r *runner) passwordCommand() *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the signed-in user's password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := backend.Auth.UpdateUser(cmd.Context(), auth.UserAttributes{Password: password}); err != nil {
				return err
			}
			_, err = fmt.Fprintln(r.stdout, "password updated")
			return err
		},
	}
	cmd.Flags().StringVar(&password, "new", "", "new password")
	_ = cmd.MarkFlagRequired("new")
	return cmd
}

func (r *runner) countriesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "countries",
		Short: "List active countries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			countries, err := backend.Catalog.ListCountries(cmd.Context())
			if err != nil {
				return err
			}
			return r.print(countries)
		},
	}
}

func (r *runner) facilitiesCommand() *cobra.Command {
	var filter catalog.FacilityFilter
	cmd := &cobra.Command{
		Use:   "facilities",
		Short: "List active facilities, featured first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			facilities, err := backend.Catalog.ListFacilities(cmd.Context(), filter)
			if err != nil {
				return err
			}
			return r.print(facilities)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&filter.CountryCode, "country", "", "country code, e.g. QA")
	flags.Int64Var(&filter.CityID, "city-id", 0, "city id")
	flags.StringVar(&filter.FacilityType, "type", "", "facility type")
	flags.StringVar(&filter.Search, "q", "", "search text matched against names")
	flags.BoolVar(&filter.FeaturedOnly, "featured", false, "only featured facilities")
	flags.IntVar(&filter.Limit, "limit", 0, "maximum rows")
	return cmd
}

func (r *runner) bookingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "bookings",
		Short: "List the signed-in user's bookings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			userID, err := r.currentUserID(cmd.Context(), backend)
			if err != nil {
				return err
			}
			bookings, err := backend.Catalog.ListBookingsForUser(cmd.Context(), userID)
			if err != nil {
				return err
			}
			return r.print(bookings)
		},
	}

	var reason string
	cancel := &cobra.Command{
		Use:   "cancel <booking-id>",
		Short: "Cancel a pending or confirmed booking",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			userID, err := r.currentUserID(cmd.Context(), backend)
			if err != nil {
				return err
			}
			booking, err := backend.Catalog.CancelBooking(cmd.Context(), userID, args[0], reason)
			if err != nil {
				return err
			}
			return r.print(booking)
		},
	}
	cancel.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	cmd.AddCommand(cancel)
	return cmd
}

func (r *runner) uploadCommand() *cobra.Command {
	var bucket, folder, contentType string
	var avatar bool
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file for the signed-in user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			userID, err := r.currentUserID(cmd.Context(), backend)
			if err != nil {
				return err
			}

			name := filepath.Base(args[0])
			var path string
			if avatar {
				path, err = storage.BuildAvatarPath(userID, name)
			} else {
				path, err = storage.BuildObjectPath(folder, userID, name, r.opts.Clock())
			}
			if err != nil {
				return err
			}

			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer func() { _ = file.Close() }()
			info, err := file.Stat()
			if err != nil {
				return err
			}

			result, err := backend.Storage.From(bucket).Upload(cmd.Context(), path, storage.File{
				Body:        file,
				Size:        info.Size(),
				ContentType: contentType,
			})
			if err != nil {
				return err
			}
			return r.print(result)
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "avatars", "logical bucket")
	cmd.Flags().StringVar(&folder, "folder", "uploads", "folder for non-avatar uploads")
	cmd.Flags().StringVar(&contentType, "content-type", "", "content type; detected when empty")
	cmd.Flags().BoolVar(&avatar, "avatar", false, "store as the user's avatar")
	return cmd
}

func (r *runner) removeCommand() *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "remove <path>",
		Short: "Delete a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			if err := backend.Storage.From(bucket).Remove(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(r.stdout, "removed %s\n", strings.TrimPrefix(args[0], "/"))
			return err
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "avatars", "logical bucket")
	return cmd
}

func (r *runner) urlCommand() *cobra.Command {
	var bucket string
	cmd := &cobra.Command{
		Use:   "url <path>",
		Short: "Print the public URL of a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, err := r.connect(cmd.Context())
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(r.stdout, backend.Storage.From(bucket).GetPublicURL(args[0]))
			return err
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "avatars", "logical bucket")
	return cmd
}
