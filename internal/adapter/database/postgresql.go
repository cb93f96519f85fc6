package database

import (
	"context"
	"fmt"
	"io"

	"github.com/semmidev/backstow/internal/domain"
)

// PostgreSQLDatabase dumps with pg_dump in plain format and restores with
// psql. Dumps carry DROP ... IF EXISTS statements, so a restore replaces
// the objects it contains.
type PostgreSQLDatabase struct {
	executor domain.Executor
}

var _ domain.Adapter = (*PostgreSQLDatabase)(nil)

func NewPostgreSQL(executor domain.Executor) *PostgreSQLDatabase {
	return &PostgreSQLDatabase{executor: executor}
}

func (p *PostgreSQLDatabase) Extension() string { return ".sql" }

func (p *PostgreSQLDatabase) Capture(ctx context.Context, el domain.Element) (io.ReadCloser, error) {
	cmd, err := p.dumpCommand(el)
	if err != nil {
		return nil, err
	}
	rc, err := p.executor.Stream(ctx, cmd)
	return openDump(el.Title, rc, err)
}

func (p *PostgreSQLDatabase) Restore(ctx context.Context, el domain.Element, payload io.Reader) error {
	cmd, err := p.restoreCommand(el)
	if err != nil {
		return restoreError(el.Title, err)
	}
	return restoreError(el.Title, p.executor.Feed(ctx, cmd, payload))
}

func (p *PostgreSQLDatabase) dumpCommand(el domain.Element) (domain.Command, error) {
	args := []string{
		"--format=plain",
		"--clean",
		"--if-exists",
		"--no-owner",
		"--no-password",
	}

	switch params := el.Params.(type) {
	case domain.PostgresNative:
		args = append(args,
			fmt.Sprintf("--host=%s", params.Host),
			fmt.Sprintf("--port=%d", params.Port),
			fmt.Sprintf("--username=%s", params.User),
			params.Database,
		)
		return domain.Command{Name: "pg_dump", Args: args, Env: pgEnv(params.Password)}, nil

	case domain.PostgresContainer:
		args = append(args, fmt.Sprintf("--username=%s", params.User), params.Database)
		return domain.Command{Container: params.Container, Name: "pg_dump", Args: args, Env: pgEnv(params.Password)}, nil

	default:
		return domain.Command{}, unsupported(el, "postgresql")
	}
}

func (p *PostgreSQLDatabase) restoreCommand(el domain.Element) (domain.Command, error) {
	args := []string{
		"--quiet",
		"--no-password",
		"--single-transaction",
		"--set=ON_ERROR_STOP=1",
	}

	switch params := el.Params.(type) {
	case domain.PostgresNative:
		args = append(args,
			fmt.Sprintf("--host=%s", params.Host),
			fmt.Sprintf("--port=%d", params.Port),
			fmt.Sprintf("--username=%s", params.User),
			fmt.Sprintf("--dbname=%s", params.Database),
		)
		return domain.Command{Name: "psql", Args: args, Env: pgEnv(params.Password)}, nil

	case domain.PostgresContainer:
		args = append(args,
			fmt.Sprintf("--username=%s", params.User),
			fmt.Sprintf("--dbname=%s", params.Database),
		)
		return domain.Command{Container: params.Container, Name: "psql", Args: args, Env: pgEnv(params.Password)}, nil

	default:
		return domain.Command{}, fmt.Errorf("postgresql adapter cannot restore kind %s", el.Kind())
	}
}

func pgEnv(password string) []string {
	if password == "" {
		return nil
	}
	return []string{"PGPASSWORD=" + password}
}
