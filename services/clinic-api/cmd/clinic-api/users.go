package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/md-rashed-zaman/clinicapi/libs/auth"
	"github.com/md-rashed-zaman/clinicapi/libs/config"
	"github.com/md-rashed-zaman/clinicapi/libs/db"
	"github.com/md-rashed-zaman/clinicapi/libs/runtime"
	"github.com/md-rashed-zaman/clinicapi/services/clinic-api/internal/storage"
)

var roleIDs = map[string]int{
	"admin":     storage.RoleAdminID,
	"doctor":    storage.RoleDoctorID,
	"reception": storage.RoleReceptionID,
}

func parseRole(name string) (int, error) {
	id, ok := roleIDs[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, fmt.Errorf("unknown role %q (admin, doctor, reception)", name)
	}
	return id, nil
}

func newCreateUserCmd() *cobra.Command {
	var document, fullName, email, password, role string
	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a staff account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := runtime.SignalContext(cmd.Context())
			defer stop()

			roleID, err := parseRole(role)
			if err != nil {
				return err
			}
			if document == "" || password == "" || fullName == "" {
				return errors.New("--document, --name and --password are required")
			}
			rounds, err := bcryptRounds()
			if err != nil {
				return err
			}
			url, err := config.RequiredString("DATABASE_URL")
			if err != nil {
				return err
			}
			pool, err := db.Open(ctx, url, db.Options{MaxConns: 1})
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer pool.Close()

			hash, err := auth.HashPassword(password, rounds)
			if err != nil {
				return err
			}
			u, err := storage.NewUserRepository(pool).Create(ctx, storage.User{
				Document:     document,
				FullName:     fullName,
				Email:        email,
				PasswordHash: hash,
				RoleID:       roleID,
				Active:       true,
			})
			if errors.Is(err, storage.ErrDuplicateDocument) {
				return fmt.Errorf("a user with document %s already exists", document)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s (%s) id=%s\n", u.Document, u.Role, u.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&document, "document", "", "identity document, used as login")
	cmd.Flags().StringVar(&fullName, "name", "", "full name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "initial password")
	cmd.Flags().StringVar(&role, "role", "reception", "admin, doctor or reception")
	return cmd
}

func newHashPasswordCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash using BCRYPT_ROUNDS",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rounds, err := bcryptRounds()
			if err != nil {
				return err
			}
			hash, err := auth.HashPassword(args[0], rounds)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}
