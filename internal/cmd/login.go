package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/ebsalem/portal/app"
	"github.com/ebsalem/portal/auth"
	"github.com/ebsalem/portal/models"
	"github.com/ebsalem/portal/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var loginTimeout time.Duration

type loginResult struct {
	session *models.Session
	err     error
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in through the Cognito hosted UI",
	Long: `Start a loopback server on the configured callback address and print the
URL to open in a browser. After the hosted UI redirects back, the tokens are
exchanged, forwarded to the backend and stored locally.

COGNITO_REDIRECT_URI must point at this machine, e.g.
http://localhost:8765/auth/callback.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDeps(cmd, func(deps *app.Dependencies) error {
			h := deps.AuthHandler()
			if h == nil {
				return errors.New("cognito is not configured: set COGNITO_DOMAIN and COGNITO_CLIENT_ID")
			}

			results := make(chan loginResult, 1)
			h.OnLogin = func(s *models.Session, err error) {
				select {
				case results <- loginResult{session: s, err: err}:
				default:
				}
			}

			ln, err := net.Listen("tcp", deps.Config.Server.Address())
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", deps.Config.Server.Address(), err)
			}
			srv := &http.Server{
				Handler:           loginRouter(h),
				ReadHeaderTimeout: 5 * time.Second,
			}
			go func() {
				if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
					deps.Logger.Error("login callback server failed", zap.Error(err))
				}
			}()
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			}()

			fmt.Fprintf(cmd.ErrOrStderr(), "Open this URL in your browser to sign in:\n  http://%s/auth/login\n", ln.Addr())

			ctx, cancel := context.WithTimeout(cmd.Context(), loginTimeout)
			defer cancel()

			select {
			case <-ctx.Done():
				return fmt.Errorf("login not completed: %w", ctx.Err())
			case res := <-results:
				if res.err != nil {
					return fmt.Errorf("login failed: %s", session.UserMessage(res.err))
				}
				return printSnapshot(cmd.OutOrStdout(), deps.Manager.Snapshot())
			}
		})
	},
}

// loginRouter serves the hosted UI round trip; every other path is the
// landing page the callback redirects to
func loginRouter(h *auth.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/auth/login", h.HandleLogin)
	r.Get("/auth/callback", h.HandleCallback)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Signed in. You can close this window and return to the terminal.\n"))
	})
	return r
}

func init() {
	loginCmd.Flags().DurationVar(&loginTimeout, "timeout", 5*time.Minute, "How long to wait for the browser sign-in")
	rootCmd.AddCommand(loginCmd)
}
