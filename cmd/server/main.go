// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package main

import (
	"context"
	"database/sql"
	"log"
	"os"

	"github.com/lvshenfx/liaotian/internal/config"
	"github.com/lvshenfx/liaotian/internal/database"
	"github.com/lvshenfx/liaotian/internal/server"
	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:   "server",
		Usage:  "Start the chat server",
		Flags:  config.Flags(),
		Action: server.Run,
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Manage the database schema",
				Commands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "Apply all pending migrations",
						Flags:  config.Flags(),
						Action: migrateAction(database.RunMigrations),
					},
					{
						Name:   "down",
						Usage:  "Roll back the last migration",
						Flags:  config.Flags(),
						Action: migrateAction(database.MigrateDown),
					},
					{
						Name:   "reset",
						Usage:  "Roll back all migrations",
						Flags:  config.Flags(),
						Action: migrateAction(database.MigrateReset),
					},
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func migrateAction(fn func(*sql.DB) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		conn, err := database.Connect(cmd.String("database-dsn"))
		if err != nil {
			return err
		}
		defer func() {
			_ = conn.Close()
		}()
		return fn(conn.DB)
	}
}
