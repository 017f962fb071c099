package config

import (
	"slices"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/sisplade-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Site      SiteConfig      `yaml:"site" mapstructure:"site"`
	Selectors SelectorsConfig `yaml:"selectors" mapstructure:"selectors"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Output    OutputConfig    `yaml:"output" mapstructure:"output"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// SiteConfig describes the portal and the ranges to collect.
type SiteConfig struct {
	BaseURL           string          `yaml:"base_url" mapstructure:"base_url"`
	IDStart           int             `yaml:"id_start" mapstructure:"id_start"`
	IDEnd             int             `yaml:"id_end" mapstructure:"id_end"`
	CurrentYear       int             `yaml:"current_year" mapstructure:"current_year"`
	StartYear         int             `yaml:"start_year" mapstructure:"start_year"`
	EndYear           int             `yaml:"end_year" mapstructure:"end_year"`
	RequestsPerSecond float64         `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	YearTabs          []model.YearTab `yaml:"year_tabs" mapstructure:"year_tabs"`
}

// SelectorsConfig holds the fixed page structure of the municipality view.
type SelectorsConfig struct {
	Municipio       string `yaml:"municipio" mapstructure:"municipio"`
	IncomeContainer string `yaml:"income_container" mapstructure:"income_container"`
	TabIDFormat     string `yaml:"tab_id_format" mapstructure:"tab_id_format"`
	ReadyElementID  string `yaml:"ready_element_id" mapstructure:"ready_element_id"`
}

// BrowserConfig configures the page renderer.
type BrowserConfig struct {
	Headless        bool   `yaml:"headless" mapstructure:"headless"`
	DisableGPU      bool   `yaml:"disable_gpu" mapstructure:"disable_gpu"`
	UserAgent       string `yaml:"user_agent" mapstructure:"user_agent"`
	LoadTimeoutSecs int    `yaml:"load_timeout_secs" mapstructure:"load_timeout_secs"`
	TabTimeoutSecs  int    `yaml:"tab_timeout_secs" mapstructure:"tab_timeout_secs"`
	OfflineDir      string `yaml:"offline_dir" mapstructure:"offline_dir"`
}

// RetryConfig configures retries around page loads. One attempt means no retry.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// OutputConfig configures the exported files.
type OutputConfig struct {
	CSVPath    string `yaml:"csv_path" mapstructure:"csv_path"`
	XLSXPath   string `yaml:"xlsx_path" mapstructure:"xlsx_path"`
	SkipFailed bool   `yaml:"skip_failed" mapstructure:"skip_failed"`
}

// StoreConfig configures the run store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
	File   string `yaml:"file" mapstructure:"file"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SISPLADE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("site.base_url", "https://sisplade.oaxaca.gob.mx/sisplade/smIngresosMunicipio.aspx")
	v.SetDefault("site.id_start", 1)
	v.SetDefault("site.id_end", 570)
	v.SetDefault("site.current_year", 2021)
	v.SetDefault("site.start_year", 2015)
	v.SetDefault("site.end_year", 2021)
	v.SetDefault("site.requests_per_second", 0)
	v.SetDefault("selectors.municipio", "#ContentPlaceHolder1_lblMunicipio")
	v.SetDefault("selectors.income_container", "div.col-lg-9")
	v.SetDefault("selectors.tab_id_format", "ContentPlaceHolder1_tabEjercicios_T%dT")
	v.SetDefault("selectors.ready_element_id", "ContentPlaceHolder1_lblTextoFISMDF")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.load_timeout_secs", 60)
	v.SetDefault("browser.tab_timeout_secs", 10)
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.offline_dir", "")
	v.SetDefault("retry.max_attempts", 1)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("output.csv_path", "../data/ingresos_por_municipio.csv")
	v.SetDefault("output.xlsx_path", "")
	v.SetDefault("output.skip_failed", false)
	v.SetDefault("store.driver", "none")
	v.SetDefault("store.database_url", "sisplade.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 1)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "scraping.log")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Site.YearTabs) == 0 {
		cfg.Site.YearTabs = model.DefaultYearTabs()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the identifier range and that the current year plus the
// year-tab table cover the tracked year range exactly once each.
func (c *Config) Validate() error {
	if c.Site.IDStart < 1 || c.Site.IDEnd < c.Site.IDStart {
		return eris.Errorf("config: invalid id range %d..%d", c.Site.IDStart, c.Site.IDEnd)
	}
	if c.Site.EndYear < c.Site.StartYear {
		return eris.Errorf("config: invalid year range %d..%d", c.Site.StartYear, c.Site.EndYear)
	}

	covered := []int{c.Site.CurrentYear}
	seenTabs := make(map[int]bool, len(c.Site.YearTabs))
	for _, tab := range c.Site.YearTabs {
		if tab.Index < 1 {
			return eris.Errorf("config: year tab index must be positive, got %d", tab.Index)
		}
		if seenTabs[tab.Index] {
			return eris.Errorf("config: duplicate year tab index %d", tab.Index)
		}
		seenTabs[tab.Index] = true
		covered = append(covered, tab.Year)
	}
	slices.Sort(covered)

	want := c.Years()
	if !slices.Equal(covered, want) {
		return eris.Errorf("config: current year %d and year tabs %v do not cover years %d..%d",
			c.Site.CurrentYear, c.Site.YearTabs, c.Site.StartYear, c.Site.EndYear)
	}

	switch c.Store.Driver {
	case "", "none", "sqlite", "postgres":
	default:
		return eris.Errorf("config: unsupported store driver %q", c.Store.Driver)
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 ||
		(c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns) {
		return eris.Errorf("config: invalid store pool size min=%d max=%d", c.Store.MinConns, c.Store.MaxConns)
	}

	return nil
}

// Years returns the tracked fiscal years in ascending order.
func (c *Config) Years() []int {
	years := make([]int, 0, c.Site.EndYear-c.Site.StartYear+1)
	for y := c.Site.StartYear; y <= c.Site.EndYear; y++ {
		years = append(years, y)
	}
	return years
}

// InitLogger initializes the global zap logger. When cfg.File is set, log
// lines are appended to that file as well as written to stderr.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	zapCfg.OutputPaths = []string{"stderr"}
	if cfg.File != "" {
		zapCfg.OutputPaths = append(zapCfg.OutputPaths, cfg.File)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
