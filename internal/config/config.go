package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Backend names accepted by DATA_BACKEND.
const (
	BackendMemory = "memory"
	BackendXLSX   = "xlsx"
	BackendSheets = "sheets"
	BackendSQLite = "sqlite"
	BackendMongo  = "mongo"
)

// Backends lists every valid DATA_BACKEND value.
var Backends = []string{BackendMemory, BackendXLSX, BackendSheets, BackendSQLite, BackendMongo}

type Config struct {
	// HTTP Server
	Port string `mapstructure:"port"`

	// Backend selection
	DataBackend string `mapstructure:"data_backend"`
	SeedDir     string `mapstructure:"seed_dir"`

	// Local workbook
	XLSXPath string `mapstructure:"xlsx_path"`

	// Database
	SQLiteDBPath  string `mapstructure:"sqlite_db_path"`
	MongoURI      string `mapstructure:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database"`

	// Google Sheets
	GoogleSpreadsheetID      string `mapstructure:"google_spreadsheet_id"`
	GoogleServiceAccountFile string `mapstructure:"google_service_account_file"`
	GoogleServiceAccountJSON string `mapstructure:"google_service_account_json"`
	GoogleExpensesSheet      string `mapstructure:"google_expenses_sheet"`
	GoogleIncomeSheet        string `mapstructure:"google_income_sheet"`
	GoogleSheetYearPrefix    bool   `mapstructure:"google_sheet_year_prefix"`

	// AMQP
	AMQPURL      string `mapstructure:"amqp_url"`
	AMQPExchange string `mapstructure:"amqp_exchange"`
	AMQPQueue    string `mapstructure:"amqp_queue"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Timeouts
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	ViewCacheTTL time.Duration `mapstructure:"view_cache_ttl"`
}

var defaults = map[string]any{
	"port":                        "8081",
	"data_backend":                BackendMemory,
	"seed_dir":                    "data",
	"xlsx_path":                   "./data/ledger.xlsx",
	"sqlite_db_path":              "./data/tally.db",
	"mongo_uri":                   "",
	"mongo_database":              "tally",
	"google_spreadsheet_id":       "",
	"google_service_account_file": "",
	"google_service_account_json": "",
	"google_expenses_sheet":       "Expenses",
	"google_income_sheet":         "Income",
	"google_sheet_year_prefix":    false,
	"amqp_url":                    "",
	"amqp_exchange":               "tally",
	"amqp_queue":                  "ledger_changed",
	"log_level":                   "info",
	"log_format":                  "text",
	"store_timeout":               7 * time.Second,
	"view_cache_ttl":              5 * time.Second,
}

// Load builds the configuration from defaults, an optional YAML file at
// path, environment variables (upper-cased keys, e.g. DATA_BACKEND) and
// finally any flags in fs that were set on the command line. Flag names use
// dashes: --data-backend overrides data_backend.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	for k := range defaults {
		if err := v.BindEnv(k, strings.ToUpper(k)); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", k, err)
		}
	}

	if fs != nil {
		var bindErr error
		fs.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, ok := defaults[key]; !ok || !f.Changed {
				return
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("bind flags: %w", bindErr)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	c.DataBackend = strings.ToLower(strings.TrimSpace(c.DataBackend))
	return &c, nil
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	valid := false
	for _, b := range Backends {
		if c.DataBackend == b {
			valid = true
			break
		}
	}
	if !valid {
		problems = append(problems, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends))
	}

	switch c.DataBackend {
	case BackendXLSX:
		if c.XLSXPath == "" {
			problems = append(problems, "XLSX path cannot be empty when using xlsx backend")
		} else if !strings.HasSuffix(strings.ToLower(c.XLSXPath), ".xlsx") {
			problems = append(problems, fmt.Sprintf("XLSX path '%s' must end in .xlsx", c.XLSXPath))
		}
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLite database path cannot be empty when using sqlite backend")
		}
	case BackendMongo:
		if c.MongoURI == "" {
			problems = append(problems, "MongoDB URI is required when using mongo backend")
		} else if u, err := url.Parse(c.MongoURI); err != nil || (u.Scheme != "mongodb" && u.Scheme != "mongodb+srv") {
			problems = append(problems, fmt.Sprintf("invalid MongoDB URI '%s': scheme must be 'mongodb' or 'mongodb+srv'", c.MongoURI))
		}
		if c.MongoDatabase == "" {
			problems = append(problems, "MongoDB database name cannot be empty when using mongo backend")
		}
	case BackendSheets:
		problems = append(problems, c.sheetsProblems()...)
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			problems = append(problems, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.StoreTimeout <= 0 {
		problems = append(problems, fmt.Sprintf("invalid store timeout %v: must be positive", c.StoreTimeout))
	}
	if c.ViewCacheTTL < 0 {
		problems = append(problems, fmt.Sprintf("invalid view cache TTL %v: must not be negative", c.ViewCacheTTL))
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

// ValidateMirror checks the settings the sync worker needs on top of the
// primary backend.
func (c *Config) ValidateMirror() error {
	var problems []string
	if c.AMQPURL == "" {
		problems = append(problems, "AMQP URL is required for the sync worker")
	}
	problems = append(problems, c.sheetsProblems()...)
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(problems, "\n- "))
	}
	return nil
}

func (c *Config) sheetsProblems() []string {
	var problems []string
	if c.GoogleSpreadsheetID == "" {
		problems = append(problems, "Google Spreadsheet ID is required when using Google Sheets")
	}
	hasFile := c.GoogleServiceAccountFile != ""
	hasJSON := c.GoogleServiceAccountJSON != ""
	if !hasFile && !hasJSON && os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		problems = append(problems, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for Google Sheets")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleServiceAccountFile); errors.Is(err, os.ErrNotExist) {
			problems = append(problems, fmt.Sprintf("Google service account file does not exist: %s", c.GoogleServiceAccountFile))
		}
	}
	return problems
}
