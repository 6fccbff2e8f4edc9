package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/porthorian/memberdir"
	"github.com/porthorian/memberdir/pkg/authz"
	"github.com/porthorian/memberdir/pkg/storage"
)

type createUserConfig struct {
	Username string
	Password string
	Roles    []string
}

func init() {
	rootCmd.AddCommand(newUserCommand())
}

func newUserCommand() *cobra.Command {
	userCmd := &cobra.Command{
		Use:   "user",
		Short: "Manage login users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cfg := createUserConfig{}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a login user in the configured store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			roles, err := authz.ParseRoles(cfg.Roles)
			if err != nil {
				return err
			}

			user, err := createUser(cmd.Context(), cfg.Username, cfg.Password, roles)
			if err != nil {
				return err
			}

			cmd.Printf("Created user %s (%s) with roles %v\n", user.Username, user.ID, user.Roles)
			return nil
		},
	}
	createCmd.Flags().StringVar(&cfg.Username, "username", "", "Login name.")
	createCmd.Flags().StringVar(&cfg.Password, "password", "", "Plain-text password; hashed with password.scheme before it is stored.")
	createCmd.Flags().StringSliceVar(&cfg.Roles, "role", []string{string(authz.RoleUser)}, "Role to grant (USER or ADMIN). Repeatable.")
	_ = createCmd.MarkFlagRequired("username")
	_ = createCmd.MarkFlagRequired("password")

	userCmd.AddCommand(createCmd)
	return userCmd
}

func createUser(ctx context.Context, username string, password string, roles []authz.Role) (user storage.UserRecord, err error) {
	config, err := loadConfig()
	if err != nil {
		return storage.UserRecord{}, err
	}
	if config.Storage.Backend == memberdir.StorageBackendMemory {
		return storage.UserRecord{}, fmt.Errorf("user create needs a persistent storage.backend, got %q", config.Storage.Backend)
	}
	// users are never cached
	config.Cache.Backend = memberdir.CacheBackendNone

	logger, syncLogger, err := memberdir.NewLogger(config.Log)
	if err != nil {
		return storage.UserRecord{}, err
	}
	defer func() { _ = syncLogger() }()

	app, err := memberdir.New(ctx, memberdir.Config{Logger: logger, Runtime: config})
	if err != nil {
		return storage.UserRecord{}, err
	}
	defer func() {
		if closeErr := app.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close app: %w", closeErr)
		}
	}()

	return app.CreateUser(ctx, username, password, roles)
}
