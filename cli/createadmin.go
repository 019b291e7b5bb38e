package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quay-labs/rosterd/auth"
	"github.com/quay-labs/rosterd/config"
	"github.com/quay-labs/rosterd/store"
)

// NewCreateAdminCmd creates the "create-admin" subcommand. It writes an
// admin account straight into the store: the HTTP API can only mint admins
// from an existing admin session, so the first one has to come from here.
func NewCreateAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an admin account directly in the database",
		RunE:  runCreateAdmin,
	}

	cmd.Flags().String("config", "", "Path to rosterd.yaml")
	cmd.Flags().String("db-driver", "", "Database driver (sqlite or postgres)")
	cmd.Flags().String("db-dsn", "", "Database DSN (default: ~/.rosterd/rosterd.db)")
	cmd.Flags().String("email", "", "Admin email address")
	cmd.Flags().String("name", "", "Admin display name")
	cmd.Flags().String("password", "", "Admin password (prompted if omitted)")

	return cmd
}

func runCreateAdmin(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	email, _ := cmd.Flags().GetString("email")
	name, _ := cmd.Flags().GetString("name")
	password, _ := cmd.Flags().GetString("password")

	email = strings.ToLower(strings.TrimSpace(email))
	name = strings.TrimSpace(name)
	if email == "" || name == "" {
		return exitError(exitConfig, "--email and --name are required")
	}

	if password == "" {
		var err error
		password, err = promptPassword(cmd)
		if err != nil {
			return exitError(exitConfig, "reading password: %v", err)
		}
	}
	if len(password) < 8 {
		return exitError(exitConfig, "password must be at least 8 characters")
	}

	driver, dsn, err := resolveAdminStore(cmd)
	if err != nil {
		return err
	}
	st, err := store.Open(cmd.Context(), driver, dsn)
	if err != nil {
		return exitError(exitStorage, "opening store: %v", err)
	}
	defer func() {
		_ = st.Close()
	}()

	hash, err := auth.NewHasher().Hash(password)
	if err != nil {
		return exitError(exitRuntime, "hashing password: %v", err)
	}

	now := time.Now().UTC()
	rec := store.UserRecord{
		ID:           uuid.New().String(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := st.CreateUser(cmd.Context(), rec); err != nil {
		if err == store.ErrEmailExists {
			return exitError(exitStorage, "an account with email %s already exists", email)
		}
		return exitError(exitStorage, "creating admin: %v", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created admin %s (%s)\n", email, rec.ID)
	return nil
}

func resolveAdminStore(cmd *cobra.Command) (string, string, error) {
	explicitPath, _ := cmd.Flags().GetString("config")

	var cfg config.File
	path, found, err := config.Discover(explicitPath)
	if err != nil {
		return "", "", exitError(exitConfig, "%v", err)
	}
	if found {
		cfg, err = config.Load(path)
		if err != nil {
			return "", "", exitError(exitConfig, "%v", err)
		}
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return "", "", exitError(exitConfig, "%v", err)
	}
	if cmd.Flags().Changed("db-driver") {
		cfg.Database.Driver, _ = cmd.Flags().GetString("db-driver")
	}
	if cmd.Flags().Changed("db-dsn") {
		cfg.Database.DSN, _ = cmd.Flags().GetString("db-dsn")
	}

	dsn, err := resolveDSN(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return "", "", exitError(exitStorage, "resolving database path: %v", err)
	}
	return cfg.Database.Driver, dsn, nil
}

func promptPassword(cmd *cobra.Command) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("stdin is not a terminal; pass --password instead")
	}

	fmt.Fprint(cmd.OutOrStdout(), "Password: ")
	first, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}

	fmt.Fprint(cmd.OutOrStdout(), "Confirm password: ")
	second, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}

	if string(first) != string(second) {
		return "", fmt.Errorf("passwords do not match")
	}
	return string(first), nil
}
