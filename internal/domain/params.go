package domain

import (
	"errors"
	"strings"
)

// Params is the kind-specific part of an Element. The set of
// implementations is closed to this package.
type Params interface {
	Kind() Kind
	validate() error
}

type PostgresNative struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

type PostgresContainer struct {
	Container string
	Database  string
	User      string
	Password  string
}

type MongoNative struct {
	Host         string
	Port         int
	Database     string
	User         string
	Password     string
	AuthDatabase string
}

type MongoContainer struct {
	Container    string
	Database     string
	User         string
	Password     string
	AuthDatabase string
}

type MySQLNative struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
}

type MySQLContainer struct {
	Container string
	Database  string
	User      string
	Password  string
}

type Directory struct {
	Path string
}

func (PostgresNative) Kind() Kind    { return KindPostgresNative }
func (PostgresContainer) Kind() Kind { return KindPostgresContainer }
func (MongoNative) Kind() Kind       { return KindMongoNative }
func (MongoContainer) Kind() Kind    { return KindMongoContainer }
func (MySQLNative) Kind() Kind       { return KindMySQLNative }
func (MySQLContainer) Kind() Kind    { return KindMySQLContainer }
func (Directory) Kind() Kind         { return KindDirectory }

func (p PostgresNative) validate() error {
	return firstErr(
		required("db_host", p.Host),
		port(p.Port),
		required("db_name", p.Database),
		required("db_user", p.User),
	)
}

func (p PostgresContainer) validate() error {
	return firstErr(
		required("docker_container", p.Container),
		required("db_name", p.Database),
		required("db_user", p.User),
	)
}

// Mongo credentials are optional: an unauthenticated mongod is valid, but
// a user without a password is not.
func (p MongoNative) validate() error {
	return firstErr(
		required("db_host", p.Host),
		port(p.Port),
		credentials(p.User, p.Password),
	)
}

func (p MongoContainer) validate() error {
	return firstErr(
		required("docker_container", p.Container),
		credentials(p.User, p.Password),
	)
}

func (p MySQLNative) validate() error {
	return firstErr(
		required("db_host", p.Host),
		port(p.Port),
		required("db_name", p.Database),
		required("db_user", p.User),
	)
}

func (p MySQLContainer) validate() error {
	return firstErr(
		required("docker_container", p.Container),
		required("db_name", p.Database),
		required("db_user", p.User),
	)
}

func (p Directory) validate() error {
	return required("path", p.Path)
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return errors.New(field + " is required")
	}
	return nil
}

func port(p int) error {
	if p < 1 || p > 65535 {
		return errors.New("db_port must be between 1 and 65535")
	}
	return nil
}

func credentials(user, password string) error {
	if user != "" && password == "" {
		return errors.New("db_password is required when db_user is set")
	}
	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
