package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/semmidev/backstow/internal/domain"
)

const (
	RemoteS3     = "s3"
	RemoteGDrive = "gdrive"
	RemoteNone   = "none"
)

var ErrNoElements = errors.New("no valid elements configured")

type Config struct {
	App AppConfig `mapstructure:"app"`

	S3Endpoint  string `mapstructure:"s3_endpoint"`
	S3Region    string `mapstructure:"s3_region"`
	S3Bucket    string `mapstructure:"s3_bucket"`
	S3Access    string `mapstructure:"s3_access"`
	S3Secret    string `mapstructure:"s3_secret"`
	S3PathStyle string `mapstructure:"s3_path_style" validate:"oneof=path virtual-host"`

	BackupDir string `mapstructure:"backup_dir" validate:"required"`

	Remote   string         `mapstructure:"remote" validate:"omitempty,oneof=s3 gdrive none"`
	GDrive   GDriveConfig   `mapstructure:"gdrive"`
	Telegram TelegramConfig `mapstructure:"telegram"`

	Workers        int           `mapstructure:"workers" validate:"gte=1"`
	ElementTimeout time.Duration `mapstructure:"element_timeout"`
	Compression    string        `mapstructure:"compression" validate:"oneof=gzip zstd"`
	Schedule       string        `mapstructure:"schedule" validate:"required"`

	RawElements []RawElement `mapstructure:"elements"`

	// Filled by Load from RawElements.
	Elements []domain.Element      `mapstructure:"-"`
	Rejected []*domain.ConfigError `mapstructure:"-"`
	Warnings []string              `mapstructure:"-"`
}

type AppConfig struct {
	Name     string `mapstructure:"name"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
}

type GDriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderID        string `mapstructure:"folder_id"`
}

type TelegramConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BotToken string `mapstructure:"bot_token" validate:"required_if=Enabled true"`
	ChatID   string `mapstructure:"chat_id" validate:"required_if=Enabled true"`
}

// RawElement is one entry of the elements array as written in the file.
type RawElement struct {
	Title               string    `mapstructure:"element_title" validate:"required"`
	S3Folder            string    `mapstructure:"s3_folder"`
	LocalRetentionDays  *int      `mapstructure:"backup_retention_days" validate:"required,gte=0"`
	RemoteRetentionDays *int      `mapstructure:"s3_backup_retention_days" validate:"required,gte=0"`
	Enabled             *bool     `mapstructure:"enabled"`
	Params              RawParams `mapstructure:"params"`
}

type RawParams struct {
	Type            string `mapstructure:"type" validate:"required"`
	DBHost          string `mapstructure:"db_host"`
	DBPort          int    `mapstructure:"db_port" validate:"gte=0,lte=65535"`
	DBName          string `mapstructure:"db_name"`
	DBUser          string `mapstructure:"db_user"`
	DBPassword      string `mapstructure:"db_password"`
	DockerContainer string `mapstructure:"docker_container"`
	AuthDatabase    string `mapstructure:"auth_database"`
	Path            string `mapstructure:"path"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("mapstructure"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads the JSON settings file at path. A top-level problem is an
// error; a bad element only lands in Rejected.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("json")

	v.SetEnvPrefix("BACKSTOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "backstow")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_file", "")
	v.SetDefault("s3_path_style", "path")
	v.SetDefault("remote", "")
	v.SetDefault("workers", 2)
	v.SetDefault("element_timeout", "6h")
	v.SetDefault("compression", "gzip")
	v.SetDefault("schedule", "0 0 3 * * *")
	v.SetDefault("telegram.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	cfg.Elements, cfg.Rejected, cfg.Warnings = BuildElements(cfg.RawElements)
	if len(cfg.Elements) == 0 {
		return &cfg, ErrNoElements
	}

	return &cfg, nil
}

// Validate checks the top-level settings and resolves the remote kind.
// Elements are checked separately by BuildElements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return describe(err)
	}

	if c.ElementTimeout < 0 {
		return fmt.Errorf("element_timeout must not be negative")
	}

	if c.Remote == "" {
		c.Remote = RemoteNone
		if c.S3Bucket != "" {
			c.Remote = RemoteS3
		}
	}

	switch c.Remote {
	case RemoteS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return fmt.Errorf("s3_bucket and s3_region are required for the s3 remote")
		}
	case RemoteGDrive:
		if c.GDrive.CredentialsFile == "" || c.GDrive.FolderID == "" {
			return fmt.Errorf("gdrive.credentials_file and gdrive.folder_id are required for the gdrive remote")
		}
	}

	return nil
}

func (c *Config) PathStyle() bool {
	return c.S3PathStyle == "path"
}

// BuildElements converts raw entries into validated elements. Every entry
// sharing a duplicated title is rejected.
func BuildElements(raws []RawElement) ([]domain.Element, []*domain.ConfigError, []string) {
	counts := make(map[string]int)
	for _, raw := range raws {
		counts[raw.Title]++
	}

	var (
		elements []domain.Element
		rejected []*domain.ConfigError
		warnings []string
	)
	for i, raw := range raws {
		if raw.Title != "" && counts[raw.Title] > 1 {
			rejected = append(rejected, &domain.ConfigError{Title: raw.Title, Reason: "duplicate element_title"})
			continue
		}

		el, err := buildElement(raw)
		if err != nil {
			var cerr *domain.ConfigError
			if !errors.As(err, &cerr) {
				cerr = &domain.ConfigError{Title: raw.Title, Reason: err.Error()}
			}
			if cerr.Title == "" {
				cerr.Reason = fmt.Sprintf("elements[%d]: %s", i, cerr.Reason)
			}
			rejected = append(rejected, cerr)
			continue
		}

		if el.RemoteRetentionDays == 0 {
			warnings = append(warnings, fmt.Sprintf("[%s] s3_backup_retention_days is 0: remote copies are deleted in the same run they are uploaded", el.Title))
		}
		elements = append(elements, el)
	}

	return elements, rejected, warnings
}

func buildElement(raw RawElement) (domain.Element, error) {
	if err := validate.Struct(raw); err != nil {
		return domain.Element{}, &domain.ConfigError{Title: raw.Title, Reason: describe(err).Error()}
	}

	params, err := buildParams(raw.Params)
	if err != nil {
		return domain.Element{}, &domain.ConfigError{Title: raw.Title, Reason: err.Error()}
	}

	el := domain.Element{
		Title:               raw.Title,
		RemoteFolder:        raw.S3Folder,
		LocalRetentionDays:  *raw.LocalRetentionDays,
		RemoteRetentionDays: *raw.RemoteRetentionDays,
		Enabled:             raw.Enabled == nil || *raw.Enabled,
		Params:              params,
	}
	if el.RemoteFolder == "" {
		el.RemoteFolder = el.Title
	}

	if err := el.Validate(); err != nil {
		return domain.Element{}, err
	}
	return el, nil
}

func buildParams(p RawParams) (domain.Params, error) {
	host := p.DBHost
	if host == "" {
		host = "localhost"
	}
	port := func(def int) int {
		if p.DBPort == 0 {
			return def
		}
		return p.DBPort
	}

	switch domain.Kind(p.Type) {
	case domain.KindPostgresNative:
		return domain.PostgresNative{Host: host, Port: port(5432), Database: p.DBName, User: p.DBUser, Password: p.DBPassword}, nil
	case domain.KindPostgresContainer:
		return domain.PostgresContainer{Container: p.DockerContainer, Database: p.DBName, User: p.DBUser, Password: p.DBPassword}, nil
	case domain.KindMongoNative:
		return domain.MongoNative{Host: host, Port: port(27017), Database: p.DBName, User: p.DBUser, Password: p.DBPassword, AuthDatabase: p.AuthDatabase}, nil
	case domain.KindMongoContainer:
		return domain.MongoContainer{Container: p.DockerContainer, Database: p.DBName, User: p.DBUser, Password: p.DBPassword, AuthDatabase: p.AuthDatabase}, nil
	case domain.KindMySQLNative:
		return domain.MySQLNative{Host: host, Port: port(3306), Database: p.DBName, User: p.DBUser, Password: p.DBPassword}, nil
	case domain.KindMySQLContainer:
		return domain.MySQLContainer{Container: p.DockerContainer, Database: p.DBName, User: p.DBUser, Password: p.DBPassword}, nil
	case domain.KindDirectory:
		return domain.Directory{Path: p.Path}, nil
	default:
		return nil, fmt.Errorf("unknown params type %q", p.Type)
	}
}

// describe flattens validator errors into one message using file key names.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		_, field, _ := strings.Cut(fe.Namespace(), ".")
		switch fe.Tag() {
		case "required", "required_if":
			msgs = append(msgs, field+" is required")
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s must be %s %s, got %v", field, fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
