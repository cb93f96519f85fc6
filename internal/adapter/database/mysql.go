package database

import (
	"context"
	"fmt"
	"io"

	"github.com/semmidev/backstow/internal/domain"
)

// MySQLDatabase dumps with mysqldump and restores with the mysql client.
// mysqldump emits DROP TABLE before each table, so a restore replaces the
// tables it contains.
type MySQLDatabase struct {
	executor domain.Executor
}

var _ domain.Adapter = (*MySQLDatabase)(nil)

func NewMySQL(executor domain.Executor) *MySQLDatabase {
	return &MySQLDatabase{executor: executor}
}

func (m *MySQLDatabase) Extension() string { return ".sql" }

func (m *MySQLDatabase) Capture(ctx context.Context, el domain.Element) (io.ReadCloser, error) {
	args := []string{
		"--single-transaction",
		"--quick",
		"--lock-tables=false",
		"--routines",
		"--triggers",
		"--events",
	}

	cmd, err := m.command(el, "mysqldump", args)
	if err != nil {
		return nil, unsupported(el, "mysql")
	}
	rc, err := m.executor.Stream(ctx, cmd)
	return openDump(el.Title, rc, err)
}

func (m *MySQLDatabase) Restore(ctx context.Context, el domain.Element, payload io.Reader) error {
	cmd, err := m.command(el, "mysql", nil)
	if err != nil {
		return restoreError(el.Title, err)
	}
	return restoreError(el.Title, m.executor.Feed(ctx, cmd, payload))
}

func (m *MySQLDatabase) command(el domain.Element, tool string, args []string) (domain.Command, error) {
	switch params := el.Params.(type) {
	case domain.MySQLNative:
		args = append(args,
			fmt.Sprintf("--host=%s", params.Host),
			fmt.Sprintf("--port=%d", params.Port),
			fmt.Sprintf("--user=%s", params.User),
			params.Database,
		)
		return domain.Command{Name: tool, Args: args, Env: mysqlEnv(params.Password)}, nil

	case domain.MySQLContainer:
		args = append(args, fmt.Sprintf("--user=%s", params.User), params.Database)
		return domain.Command{Container: params.Container, Name: tool, Args: args, Env: mysqlEnv(params.Password)}, nil

	default:
		return domain.Command{}, fmt.Errorf("mysql adapter cannot handle kind %s", el.Kind())
	}
}

func mysqlEnv(password string) []string {
	if password == "" {
		return nil
	}
	return []string{"MYSQL_PWD=" + password}
}
