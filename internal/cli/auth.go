package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/idilsaglam/tada/internal/dispatch"
	"github.com/idilsaglam/tada/internal/identity"
	"github.com/idilsaglam/tada/internal/session"
	"github.com/idilsaglam/tada/internal/ui"
)

type credentialFlags struct {
	email    string
	password string
}

func (f *credentialFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.email, "email", "e", "", "account email (prompted when empty)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "account password (prompted when empty)")
}

func signupCmd(e *env) *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.authenticate(cmd.Context(), "signed up", f, (*session.AuthSession).SignUp)
		},
	}
	f.bind(cmd)
	return cmd
}

func loginCmd(e *env) *cobra.Command {
	var f credentialFlags
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to an existing account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.authenticate(cmd.Context(), "logged in", f, (*session.AuthSession).LogIn)
		},
	}
	f.bind(cmd)
	return cmd
}

func (e *env) authenticate(
	ctx context.Context,
	done string,
	f credentialFlags,
	call func(a *session.AuthSession, ctx context.Context, email, password string) *dispatch.Op,
) error {
	a, err := e.open(ctx)
	if err != nil {
		return err
	}
	if cur := a.Auth.Current(); cur.IsSignedIn() {
		return &usageError{
			msg:  "already signed in as " + e.accountLabel(cur.UserID),
			hint: "Run: todo logout",
		}
	}

	email := f.email
	if email == "" {
		if email, err = e.prompt("Email: "); err != nil {
			return err
		}
	}
	password := f.password
	if password == "" {
		if password, err = e.prompt("Password: "); err != nil {
			return err
		}
	}

	if err := wait(ctx, call(a.Auth, ctx, email, password)); err != nil {
		return fmt.Errorf("%s", session.Message(err))
	}
	ui.OK(done + " as " + strings.TrimSpace(strings.ToLower(email)))
	return nil
}

func logoutCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := e.open(ctx)
			if err != nil {
				return err
			}
			if !a.Auth.Current().IsSignedIn() {
				ui.OK("not logged in (nothing to do)")
				return nil
			}
			if err := wait(ctx, a.Auth.SignOut(ctx)); err != nil {
				return fmt.Errorf("logout: %w", err)
			}
			if ti, _ := a.Credentials.Get(); ti != nil && ti.Source == "env" {
				ui.OK("logged out; the token in " + identity.TokenEnv + " still signs you in next time")
				return nil
			}
			ui.OK("logged out")
			return nil
		},
	}
}

func authCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Show session information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return usagef("usage: todo auth <status|whoami>")
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether you are signed in",
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.authStatus(cmd.Context())
			},
		},
		&cobra.Command{
			Use:   "whoami",
			Short: "Show the signed-in account",
			RunE: func(cmd *cobra.Command, args []string) error {
				return e.whoami(cmd.Context())
			},
		},
	)
	return cmd
}

func (e *env) authStatus(ctx context.Context) error {
	a, err := e.open(ctx)
	if err != nil {
		return err
	}
	cur := a.Auth.Current()
	if !cur.IsSignedIn() {
		fmt.Println(ui.C(ui.Current().Muted, "not logged in"))
		fmt.Println("Run: todo login")
		return nil
	}
	fmt.Printf("status: %s\n", cur.Kind)
	if ti, _ := a.Credentials.Get(); ti != nil {
		fmt.Printf("source: %s\n", ti.Source)
	}
	if claims, ok := a.Identity.Claims(); ok && claims.ExpiresAt != nil {
		fmt.Printf("expires: %s\n", claims.ExpiresAt.UTC().Format(time.RFC3339))
	} else {
		fmt.Println("expires: (unknown)")
	}
	fmt.Println("env override: " + identity.TokenEnv)
	return nil
}

func (e *env) whoami(ctx context.Context) error {
	a, err := e.open(ctx)
	if err != nil {
		return err
	}
	claims, ok := a.Identity.Claims()
	if !ok {
		return &usageError{msg: "not logged in", hint: "Run: todo login"}
	}
	fmt.Printf("user:   %s\n", claims.Subject)
	fmt.Printf("email:  %s\n", claims.Email)
	if claims.IssuedAt != nil {
		fmt.Printf("since:  %s\n", claims.IssuedAt.UTC().Format(time.RFC3339))
	}
	if claims.ExpiresAt != nil {
		fmt.Printf("until:  %s\n", claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return nil
}

func (e *env) accountLabel(userID string) string {
	if e.app != nil {
		if claims, ok := e.app.Identity.Claims(); ok && claims.Email != "" {
			return claims.Email
		}
	}
	return userID
}
