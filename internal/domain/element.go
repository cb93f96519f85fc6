package domain

import (
	"fmt"
	"strings"
)

type Kind string

const (
	KindPostgresNative    Kind = "postgresql"
	KindPostgresContainer Kind = "postgresql_docker"
	KindMongoNative       Kind = "mongodb"
	KindMongoContainer    Kind = "mongodb_docker"
	KindMySQLNative       Kind = "mysql"
	KindMySQLContainer    Kind = "mysql_docker"
	KindDirectory         Kind = "folder"
)

// Element is one configured backup unit. It is never mutated after load.
type Element struct {
	Title               string
	RemoteFolder        string
	LocalRetentionDays  int
	RemoteRetentionDays int
	Enabled             bool
	Params              Params
}

func (e Element) Kind() Kind {
	if e.Params == nil {
		return ""
	}
	return e.Params.Kind()
}

// Validate checks the element on its own. Cross-element rules such as
// title uniqueness are enforced by the config loader.
func (e Element) Validate() error {
	if e.Title == "" {
		return &ConfigError{Title: e.Title, Reason: "element_title is required"}
	}
	if strings.ContainsAny(e.Title, `/\`) || e.Title == "." || e.Title == ".." {
		return &ConfigError{Title: e.Title, Reason: "element_title must not contain path separators"}
	}
	if e.LocalRetentionDays < 0 {
		return &ConfigError{Title: e.Title, Reason: fmt.Sprintf("backup_retention_days must be >= 0, got %d", e.LocalRetentionDays)}
	}
	if e.RemoteRetentionDays < 0 {
		return &ConfigError{Title: e.Title, Reason: fmt.Sprintf("s3_backup_retention_days must be >= 0, got %d", e.RemoteRetentionDays)}
	}
	if e.Params == nil {
		return &ConfigError{Title: e.Title, Reason: "params are required"}
	}
	if err := e.Params.validate(); err != nil {
		return &ConfigError{Title: e.Title, Reason: fmt.Sprintf("params (%s): %v", e.Params.Kind(), err)}
	}
	return nil
}
