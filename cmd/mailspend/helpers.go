package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mailspend/mailspend/internal/config"
	"github.com/mailspend/mailspend/internal/service"
	"github.com/mailspend/mailspend/internal/storage"
)

// initStorage opens the database and brings the schema up to date.
func initStorage(ctx context.Context) (service.Storage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := store.Migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

// requireUser resolves the acting user from the --user flag or config. The
// flag is read directly rather than bound, since several commands share it.
func requireUser(cmd *cobra.Command) (string, error) {
	user, _ := cmd.Flags().GetString("user")
	if user == "" {
		user = viper.GetString("user")
	}
	if user == "" {
		return "", fmt.Errorf("no user specified; pass --user or set user in the config file")
	}
	return user, nil
}
