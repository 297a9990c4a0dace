package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/opendreams/opendreams/internal/session"
)

func statusCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show who is signed in on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			v := s.gate.View()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(v)
			}
			fmt.Fprintln(cmd.OutOrStdout(), describe(v))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the session view as JSON")

	return cmd
}

func loginCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with email and password",
		Long: `Sign in with email and password. When --password is omitted the
password is read from the first line of stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				password = p
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			return report(cmd.OutOrStdout(), s, s.gate.SignIn(cmd.Context(), email, password))
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&password, "password", "", "Account password (default: read from stdin)")
	cmd.MarkFlagRequired("email")

	return cmd
}

func signupCmd() *cobra.Command {
	var in session.SignUpInput

	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if in.Password == "" {
				p, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				in.Password = p
			}

			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			return report(cmd.OutOrStdout(), s, s.gate.SignUp(cmd.Context(), in))
		},
	}

	cmd.Flags().StringVarP(&in.Email, "email", "e", "", "Account email")
	cmd.Flags().StringVar(&in.Password, "password", "", "Account password (default: read from stdin)")
	cmd.Flags().StringVarP(&in.Name, "name", "n", "", "Full name")
	cmd.Flags().StringVar(&in.AdmissionCode, "admission-code", "", "Admission code, if you have one")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("name")

	return cmd
}

func googleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "google",
		Short: "Sign in with Google in your browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			return report(cmd.OutOrStdout(), s, s.gate.SignInWithGoogle(cmd.Context()))
		},
	}
}

func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out on this device",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context())
			if err != nil {
				return err
			}
			defer s.Close()

			s.gate.SignOut(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out.")
			return nil
		},
	}
}

// report prints the outcome of an auth operation. A failed Result becomes
// the command's error so the exit status reflects it.
func report(w io.Writer, s *localSession, res session.Result) error {
	if !res.Success {
		return errors.New(res.Error)
	}
	fmt.Fprintln(w, describe(s.gate.View()))
	return nil
}

// readLine reads a single line, without its line ending.
func readLine(r io.Reader) (string, error) {
	if f, ok := r.(*os.File); ok {
		if info, err := f.Stat(); err == nil && info.Mode()&os.ModeCharDevice != 0 {
			fmt.Fprint(os.Stderr, "Password: ")
		}
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
