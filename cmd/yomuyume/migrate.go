package main

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
	"github.com/urfave/cli/v2"
	"github.com/yomuyume/yomuyume/pkg/config"
	"github.com/yomuyume/yomuyume/pkg/database"
	"github.com/yomuyume/yomuyume/pkg/migrations"
)

// withDB opens the database without applying migrations, so the subcommands
// see it as it is.
func withDB(fn func(c *cli.Context, db *bun.DB) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.New()
		if err != nil {
			return errors.Wrap(err, "config error")
		}
		db, err := database.New(cfg)
		if err != nil {
			return errors.Wrap(err, "database error")
		}
		defer db.Close()

		return fn(c, db)
	}
}

func newMigrator(db *bun.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, migrations.Migrations)
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "interact with database migrations",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "create migration tables",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					return newMigrator(db).Init(c.Context)
				}),
			},
			{
				Name:  "up",
				Usage: "apply pending migrations",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					group, err := migrations.BringUpToDate(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						fmt.Printf("There are no new migrations to run\n")
						return nil
					}
					fmt.Printf("Migrated to %s\n", group)
					return nil
				}),
			},
			{
				Name:  "rollback",
				Usage: "rollback the last migration group",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					group, err := migrations.Rollback(c.Context, db)
					if err != nil {
						return err
					}
					if group.ID == 0 {
						fmt.Printf("There are no groups to roll back\n")
						return nil
					}
					fmt.Printf("Rolled back %s\n", group)
					return nil
				}),
			},
			{
				Name:      "create",
				Usage:     "create a Go migration",
				ArgsUsage: "<name words>",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					if c.NArg() == 0 {
						return errors.New("a migration name is required")
					}
					name := strings.Join(c.Args().Slice(), "_")
					mf, err := newMigrator(db).CreateGoMigration(c.Context, name, migrate.WithGoTemplate(migrationTemplate))
					if err != nil {
						return err
					}
					fmt.Printf("Created migration %s (%s)\n", mf.Name, mf.Path)
					return nil
				}),
			},
			{
				Name:  "status",
				Usage: "print migrations status",
				Action: withDB(func(c *cli.Context, db *bun.DB) error {
					ms, err := newMigrator(db).MigrationsWithStatus(c.Context)
					if err != nil {
						return err
					}
					fmt.Printf("Migrations: %s\n", ms)
					fmt.Printf("Unapplied migrations: %s\n", ms.Unapplied())
					fmt.Printf("Last migration group: %s\n", ms.LastGroup())
					return nil
				}),
			},
		},
	}
}

const migrationTemplate = `package %s

import (
	"context"

	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	down := func(ctx context.Context, db *bun.DB) error {
		_, err := db.ExecContext(ctx, "")
		return errors.WithStack(err)
	}

	Migrations.MustRegister(up, down)
}
`
