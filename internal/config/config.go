// Package config loads the command line configuration from flags, an optional
// config file and AOSC_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/zeebo/errs"

	"github.com/nnnLik/a-osc/internal/db"
	"github.com/nnnLik/a-osc/internal/dialect"
)

// Error is the class of configuration errors.
var Error = errs.Class("config")

// EnvPrefix prefixes every environment variable; AOSC_CHUNK_SIZE sets chunk-size.
const EnvPrefix = "AOSC"

// Config is everything a command needs to connect and run.
type Config struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Database string
	Schema   string

	Table          string
	Alter          []string
	ChunkSize      int64
	SwapTables     bool
	DropOldTable   bool
	DropTriggers   bool
	DropAuditTable bool

	Resume          bool
	CheckpointFile  string
	ReplayBatchSize int

	LogLevel  string
	LogFormat string

	Format string
	Output string
}

// RegisterFlags declares every option on fs with its default.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("config", "", "Config file (yaml, toml or json)")

	fs.String("driver", "mysql", "Database driver: mysql or postgres")
	fs.String("host", "localhost", "Database host")
	fs.Int("port", 0, "Database port (default: 3306 for mysql, 5432 for postgres)")
	fs.String("user", "", "Database user")
	fs.String("password", "", "Database password")
	fs.String("database", "", "Database name")
	fs.String("schema", "", "Schema holding the table (default: the database for mysql, public for postgres)")

	fs.StringP("table", "t", "", "Table to migrate")
	fs.StringArray("alter", nil, "ALTER TABLE fragment for the shadow table (repeatable, ';'-separated)")
	fs.Int64("chunk-size", 1000, "Number of keys copied per backfill statement")
	fs.Bool("swap-tables", false, "Rename the shadow table into place after replay")
	fs.Bool("drop-old-table", false, "Drop the pre-swap table (requires --swap-tables)")
	fs.Bool("drop-triggers", false, "Drop the capture triggers when done")
	fs.Bool("drop-audit-table", false, "Drop the audit table when done")

	fs.Bool("resume", false, "Resume an interrupted run from the checkpoint file")
	fs.String("checkpoint-file", "", "SQLite file recording progress (empty disables checkpoints)")
	fs.Int("replay-batch-size", 1000, "Number of audit records read per query")

	fs.String("log-level", "info", "Log level: debug, info, warn or error")
	fs.String("log-format", "console", "Log format: console or json")

	fs.StringP("format", "f", "text", "Report format: text or markdown")
	fs.StringP("output", "o", "", "Report file (default: stdout)")
}

// Load reads the configuration from fs, the file named by --config and the
// environment. Flags set on the command line win over AOSC_* variables, which
// win over the config file; flag defaults apply last.
func Load(fs *pflag.FlagSet) (Config, error) {
	vip := viper.New()
	if err := vip.BindPFlags(fs); err != nil {
		return Config{}, Error.Wrap(err)
	}

	vip.SetEnvPrefix(EnvPrefix)
	vip.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	vip.AutomaticEnv()

	if path := vip.GetString("config"); path != "" {
		vip.SetConfigFile(os.ExpandEnv(path))
		if err := vip.ReadInConfig(); err != nil {
			return Config{}, Error.Wrap(fmt.Errorf("failed to read config file: %w", err))
		}
	}

	alter, err := stringList(vip.Get("alter"))
	if err != nil {
		return Config{}, Error.Wrap(err)
	}

	cfg := Config{
		Driver:          strings.ToLower(vip.GetString("driver")),
		Host:            vip.GetString("host"),
		Port:            vip.GetInt("port"),
		User:            vip.GetString("user"),
		Password:        vip.GetString("password"),
		Database:        vip.GetString("database"),
		Schema:          vip.GetString("schema"),
		Table:           vip.GetString("table"),
		Alter:           alter,
		ChunkSize:       vip.GetInt64("chunk-size"),
		SwapTables:      vip.GetBool("swap-tables"),
		DropOldTable:    vip.GetBool("drop-old-table"),
		DropTriggers:    vip.GetBool("drop-triggers"),
		DropAuditTable:  vip.GetBool("drop-audit-table"),
		Resume:          vip.GetBool("resume"),
		CheckpointFile:  vip.GetString("checkpoint-file"),
		ReplayBatchSize: vip.GetInt("replay-batch-size"),
		LogLevel:        vip.GetString("log-level"),
		LogFormat:       vip.GetString("log-format"),
		Format:          vip.GetString("format"),
		Output:          vip.GetString("output"),
	}
	if cfg.Driver == "postgresql" {
		cfg.Driver = "postgres"
	}
	if cfg.Port == 0 {
		cfg.Port = defaultPort(cfg.Driver)
	}

	return cfg, nil
}

// Validate checks the connection target and the plan options.
func (c Config) Validate() error {
	if c.Driver != "mysql" && c.Driver != "postgres" {
		return Error.New("unsupported driver %q (must be mysql or postgres)", c.Driver)
	}
	if c.Host == "" {
		return Error.New("--host is required")
	}
	if c.User == "" {
		return Error.New("--user is required")
	}
	if c.Database == "" {
		return Error.New("--database is required")
	}
	if c.Table == "" {
		return Error.New("--table is required")
	}
	if _, err := dialect.NamesFor(c.Table); err != nil {
		return Error.Wrap(err)
	}
	if c.ChunkSize <= 0 {
		return Error.New("--chunk-size must be positive, got %d", c.ChunkSize)
	}
	if c.DropOldTable && !c.SwapTables {
		return Error.New("--drop-old-table requires --swap-tables")
	}
	if c.DropAuditTable && !c.SwapTables && !c.DropTriggers {
		return Error.New("--drop-audit-table without --swap-tables requires --drop-triggers")
	}
	if c.Resume && c.CheckpointFile == "" {
		return Error.New("--resume requires --checkpoint-file")
	}
	if c.Format != "text" && c.Format != "markdown" {
		return Error.New("unsupported format %q (must be text or markdown)", c.Format)
	}
	return nil
}

// DatabaseURL builds the mysql:// or postgres:// URL the library API expects.
func (c Config) DatabaseURL() string {
	if c.Driver == "postgres" {
		return db.PostgresURL(c.Host, c.Port, c.User, c.Password, c.Database)
	}
	return "mysql://" + db.MySQLDSN(c.Host, c.Port, c.User, c.Password, c.Database)
}

// SchemaName returns the schema to introspect, applying the driver default.
func (c Config) SchemaName() string {
	if c.Schema != "" {
		return c.Schema
	}
	if c.Driver == "postgres" {
		return "public"
	}
	return c.Database
}

func defaultPort(driver string) int {
	if driver == "postgres" {
		return 5432
	}
	return 3306
}

// stringList accepts the shapes viper hands back for a list option: a string
// from the environment, []string from flags, []any from a config file.
func stringList(v any) ([]string, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		return []string{v}, nil
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("alter: expected strings, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("alter: unsupported value of type %T", v)
	}
}
