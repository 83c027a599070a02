package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces environment overrides, e.g. BOOKCAL_LISTEN.
const EnvPrefix = "BOOKCAL"

// DefaultStorageKey is the store key the scheduler writes its week buckets under.
const DefaultStorageKey = "bookcal.timeslots"

// StoreConfig selects and parameterizes the key-value store backend.
type StoreConfig struct {
	// Backend is one of memory, file, redis, mongo, postgres.
	Backend string `yaml:"backend" json:"backend"`
	// Path is the JSON file used by the file backend.
	Path string `yaml:"path" json:"path"`
	// DSN is the connection string for redis (host:port), mongo (URI) or postgres.
	DSN      string `yaml:"dsn" json:"dsn"`
	Password string `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int    `yaml:"db" json:"db"`
	// Database/Collection are used by the mongo backend.
	Database   string `yaml:"database" json:"database"`
	Collection string `yaml:"collection" json:"collection"`
	// Prefix is prepended to every key by the redis backend.
	Prefix string `yaml:"prefix" json:"prefix"`
}

// CalendarConfig is the widget configuration surface of one booking calendar.
type CalendarConfig struct {
	SlotMinutes  int      `yaml:"slot_minutes" json:"slot_minutes"`
	OpenTime     string   `yaml:"open_time" json:"open_time"`
	CloseTime    string   `yaml:"close_time" json:"close_time"`
	StartDate    string   `yaml:"start_date,omitempty" json:"start_date,omitempty"`
	StorageKey   string   `yaml:"storage_key" json:"storage_key"`
	BookAction   string   `yaml:"book_action,omitempty" json:"book_action,omitempty"`
	UnbookAction string   `yaml:"unbook_action,omitempty" json:"unbook_action,omitempty"`
	BookPath     string   `yaml:"book_path" json:"book_path"`
	BookMethod   string   `yaml:"book_method" json:"book_method"`
	UnbookPath   string   `yaml:"unbook_path" json:"unbook_path"`
	UnbookMethod string   `yaml:"unbook_method" json:"unbook_method"`
	// Closures are RRULE strings (e.g. "FREQ=WEEKLY;BYDAY=SA,SU") naming
	// days on which no slot can be booked.
	Closures []string `yaml:"closures,omitempty" json:"closures,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the web host.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	// Password is plaintext or a bcrypt hash ("$2a$..." etc).
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the web host.
	Listen string `yaml:"listen" json:"listen"`

	// BaseURL resolves relative paths in outbound shorthand calls. Empty
	// means "http://" + Listen.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`

	// Timezone is the IANA timezone the calendar is displayed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Env is "development" or "production"; it selects the log encoder.
	Env      string `yaml:"env" json:"env"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// RefreshCron schedules preview captures. Empty disables them.
	RefreshCron string `yaml:"refresh" json:"refresh"`
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	// DownloadDir is where the terminal host saves download: payloads.
	DownloadDir string `yaml:"download_dir" json:"download_dir"`

	RateLimitPerMin int `yaml:"rate_limit_per_min" json:"rate_limit_per_min"`

	// AllowedOrigins lists the origins allowed to call the API cross-origin,
	// e.g. "https://intranet.example". Empty allows same-origin use only.
	AllowedOrigins []string `yaml:"allowed_origins,omitempty" json:"allowed_origins,omitempty"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:          "127.0.0.1:8080",
		Timezone:        "Local",
		Env:             "development",
		LogLevel:        "info",
		RefreshCron:     "",
		PreviewPath:     "./cache/preview.png",
		DownloadDir:     ".",
		RateLimitPerMin: 600,
		Store: StoreConfig{
			Backend:    "file",
			Path:       "./cache/store.json",
			Database:   "bookcal",
			Collection: "kv",
		},
		Calendar: DefaultCalendar(),
	}
}

// DefaultCalendar returns the widget defaults.
func DefaultCalendar() CalendarConfig {
	return CalendarConfig{
		SlotMinutes:  60,
		OpenTime:     "08:00",
		CloseTime:    "18:00",
		StorageKey:   DefaultStorageKey,
		BookPath:     "/api/echo",
		BookMethod:   "POST",
		UnbookPath:   "/api/echo",
		UnbookMethod: "POST",
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly. Time-of-day values are
// validated by the booking package, which owns their parsing.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.Env) {
	case "production", "development":
		c.Env = strings.ToLower(c.Env)
	default:
		c.Env = def.Env
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.PreviewPath == "" {
		c.PreviewPath = def.PreviewPath
	}
	if c.DownloadDir == "" {
		c.DownloadDir = def.DownloadDir
	}
	if c.RateLimitPerMin <= 0 {
		c.RateLimitPerMin = def.RateLimitPerMin
	}
	c.AllowedOrigins = normalizeOrigins(c.AllowedOrigins)

	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	if c.Store.Backend == "" {
		c.Store.Backend = def.Store.Backend
	}
	if c.Store.Path == "" {
		c.Store.Path = def.Store.Path
	}
	if c.Store.Database == "" {
		c.Store.Database = def.Store.Database
	}
	if c.Store.Collection == "" {
		c.Store.Collection = def.Store.Collection
	}

	c.Calendar.Normalize()
}

// Normalize applies widget defaults to empty fields.
func (c *CalendarConfig) Normalize() {
	def := DefaultCalendar()
	if c.SlotMinutes <= 0 {
		c.SlotMinutes = def.SlotMinutes
	}
	if c.OpenTime == "" {
		c.OpenTime = def.OpenTime
	}
	if c.CloseTime == "" {
		c.CloseTime = def.CloseTime
	}
	if c.StorageKey == "" {
		c.StorageKey = def.StorageKey
	}
	if c.BookPath == "" {
		c.BookPath = def.BookPath
	}
	if c.BookMethod == "" {
		c.BookMethod = def.BookMethod
	}
	if c.UnbookPath == "" {
		c.UnbookPath = def.UnbookPath
	}
	if c.UnbookMethod == "" {
		c.UnbookMethod = def.UnbookMethod
	}
	c.BookMethod = strings.ToUpper(c.BookMethod)
	c.UnbookMethod = strings.ToUpper(c.UnbookMethod)
}

// EffectiveBaseURL returns BaseURL or one derived from Listen.
func (c *Config) EffectiveBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return "http://" + c.Listen
}

// Load loads configuration from the given YAML path and applies environment
// overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//   - Either way BOOKCAL_* environment variables win over file values.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			ApplyEnv(cfg)
			cfg.Normalize()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyEnv(cfg)
	cfg.Normalize()

	return cfg, nil
}

// normalizeOrigins trims entries, drops trailing slashes and keeps only
// "*" and http(s) origins.
func normalizeOrigins(in []string) []string {
	var out []string
	for _, o := range in {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		lower := strings.ToLower(o)
		if o == "*" || strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
			out = append(out, o)
		}
	}
	return out
}

// envBindings maps environment keys (without prefix) to setters.
var envBindings = map[string]func(c *Config, v *viper.Viper, key string){
	"LISTEN":                 func(c *Config, v *viper.Viper, k string) { c.Listen = v.GetString(k) },
	"BASE_URL":               func(c *Config, v *viper.Viper, k string) { c.BaseURL = v.GetString(k) },
	"TIMEZONE":               func(c *Config, v *viper.Viper, k string) { c.Timezone = v.GetString(k) },
	"ENV":                    func(c *Config, v *viper.Viper, k string) { c.Env = v.GetString(k) },
	"LOG_LEVEL":              func(c *Config, v *viper.Viper, k string) { c.LogLevel = v.GetString(k) },
	"REFRESH":                func(c *Config, v *viper.Viper, k string) { c.RefreshCron = v.GetString(k) },
	"PREVIEW_PATH":           func(c *Config, v *viper.Viper, k string) { c.PreviewPath = v.GetString(k) },
	"DOWNLOAD_DIR":           func(c *Config, v *viper.Viper, k string) { c.DownloadDir = v.GetString(k) },
	"RATE_LIMIT_PER_MIN":     func(c *Config, v *viper.Viper, k string) { c.RateLimitPerMin = v.GetInt(k) },
	"STORE_BACKEND":          func(c *Config, v *viper.Viper, k string) { c.Store.Backend = v.GetString(k) },
	"STORE_PATH":             func(c *Config, v *viper.Viper, k string) { c.Store.Path = v.GetString(k) },
	"STORE_DSN":              func(c *Config, v *viper.Viper, k string) { c.Store.DSN = v.GetString(k) },
	"STORE_PASSWORD":         func(c *Config, v *viper.Viper, k string) { c.Store.Password = v.GetString(k) },
	"STORE_DB":               func(c *Config, v *viper.Viper, k string) { c.Store.DB = v.GetInt(k) },
	"STORE_PREFIX":           func(c *Config, v *viper.Viper, k string) { c.Store.Prefix = v.GetString(k) },
	"CALENDAR_SLOT_MINUTES":  func(c *Config, v *viper.Viper, k string) { c.Calendar.SlotMinutes = v.GetInt(k) },
	"CALENDAR_OPEN_TIME":     func(c *Config, v *viper.Viper, k string) { c.Calendar.OpenTime = v.GetString(k) },
	"CALENDAR_CLOSE_TIME":    func(c *Config, v *viper.Viper, k string) { c.Calendar.CloseTime = v.GetString(k) },
	"CALENDAR_START_DATE":    func(c *Config, v *viper.Viper, k string) { c.Calendar.StartDate = v.GetString(k) },
	"CALENDAR_STORAGE_KEY":   func(c *Config, v *viper.Viper, k string) { c.Calendar.StorageKey = v.GetString(k) },
	"CALENDAR_BOOK_ACTION":   func(c *Config, v *viper.Viper, k string) { c.Calendar.BookAction = v.GetString(k) },
	"CALENDAR_UNBOOK_ACTION": func(c *Config, v *viper.Viper, k string) { c.Calendar.UnbookAction = v.GetString(k) },
	"CALENDAR_BOOK_PATH":     func(c *Config, v *viper.Viper, k string) { c.Calendar.BookPath = v.GetString(k) },
	"CALENDAR_BOOK_METHOD":   func(c *Config, v *viper.Viper, k string) { c.Calendar.BookMethod = v.GetString(k) },
	"CALENDAR_UNBOOK_PATH":   func(c *Config, v *viper.Viper, k string) { c.Calendar.UnbookPath = v.GetString(k) },
	"CALENDAR_UNBOOK_METHOD": func(c *Config, v *viper.Viper, k string) { c.Calendar.UnbookMethod = v.GetString(k) },
	"BASIC_AUTH_USERNAME":    setBasicAuthUser,
	"BASIC_AUTH_PASSWORD":    setBasicAuthPassword,
	"ALLOWED_ORIGINS":        setAllowedOrigins,
}

func setBasicAuthUser(c *Config, v *viper.Viper, k string) {
	if c.BasicAuth == nil {
		c.BasicAuth = &BasicAuthConfig{}
	}
	c.BasicAuth.Username = v.GetString(k)
}

func setBasicAuthPassword(c *Config, v *viper.Viper, k string) {
	if c.BasicAuth == nil {
		c.BasicAuth = &BasicAuthConfig{}
	}
	c.BasicAuth.Password = v.GetString(k)
}

// setAllowedOrigins reads a comma-separated origin list.
func setAllowedOrigins(c *Config, v *viper.Viper, k string) {
	c.AllowedOrigins = strings.Split(v.GetString(k), ",")
}

// ApplyEnv overlays BOOKCAL_* environment variables onto cfg. Only variables
// that are actually set are applied.
func ApplyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	for key, set := range envBindings {
		if _, ok := os.LookupEnv(EnvPrefix + "_" + key); !ok {
			continue
		}
		set(cfg, v, key)
	}
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return WriteFileAtomic(path, data, ".bookcal-config-*.tmp")
}

// WriteFileAtomic writes data to a temp file next to path, fsyncs it, sets
// 0600 and renames it over path.
func WriteFileAtomic(path string, data []byte, pattern string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	// Flush and close before chmod/rename.
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	return os.Rename(tmpName, path)
}

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
