package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultSiteID = "realtor_ca"

type Config struct {
	ExpressVPN ExpressVPNConfig
	Proxy      ProxyConfig
	S3         S3Config
	Scheduler  SchedulerConfig
	Scraper    ScraperConfig
	Browser    BrowserConfig
	Export     ExportConfig
	DBPath     string
	LogLevel   string
	LogFile    string
	Sites      map[string]*SiteConfig

	sitesDir string
}

type ExpressVPNConfig struct {
	AutoConnect bool
	Region      string
}

type ProxyConfig struct {
	URL string
}

type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) Enabled() bool {
	return c.Bucket != ""
}

type SchedulerConfig struct {
	Interval time.Duration
	Cron     string
}

// ScraperConfig holds the pacing used by the harvester and extractor.
type ScraperConfig struct {
	PageCount           int
	StopAfterEmptyPages int
	CaptchaTimeout      time.Duration

	HarvestSettle      time.Duration
	HarvestScroll      int
	HarvestAfterScroll time.Duration
	HarvestPageGap     time.Duration

	DetailSettle    time.Duration
	DetailScrollMin int
	DetailScrollMax int
	DetailTrailing  time.Duration
}

type BrowserConfig struct {
	Headless    bool
	UserDataDir string
	WaitTimeout time.Duration
}

type ExportConfig struct {
	OutputDir string
	Prefix    string
	Partition bool
}

type SiteConfig struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	SearchURL    string   `yaml:"search_url"`
	DefaultGeoID string   `yaml:"default_geo_id"`
	Province     string   `yaml:"province"`
	Filters      []Filter `yaml:"filters"`
	Regions      []Region `yaml:"regions"`
}

// Filter is a fixed query parameter appended to every search URL, in order.
type Filter struct {
	Key   string `yaml:"key"`
	Value string `yaml:"value"`
}

type Region struct {
	Slug    string `yaml:"slug"`
	GeoID   string `yaml:"geo_id"`
	GeoName string `yaml:"geo_name"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ExpressVPN: ExpressVPNConfig{
			AutoConnect: os.Getenv("EXPRESSVPN_AUTOCONNECT") == "true",
			Region:      getEnv("EXPRESSVPN_REGION", "smart"),
		},
		Proxy: ProxyConfig{
			URL: os.Getenv("PROXY_URL"),
		},
		S3: S3Config{
			Bucket:          os.Getenv("S3_BUCKET"),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Endpoint:        os.Getenv("S3_ENDPOINT"),
			AccessKeyID:     os.Getenv("S3_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Scheduler: SchedulerConfig{
			Cron: os.Getenv("SCRAPE_CRON"),
		},
		Scraper: ScraperConfig{
			PageCount:           getEnvInt("PAGE_COUNT", 50),
			StopAfterEmptyPages: getEnvInt("STOP_AFTER_EMPTY_PAGES", 2),
			CaptchaTimeout:      getEnvDuration("CAPTCHA_TIMEOUT", 0),

			HarvestSettle:      3 * time.Second,
			HarvestScroll:      1050,
			HarvestAfterScroll: time.Second,
			HarvestPageGap:     getEnvDuration("HARVEST_PAGE_DELAY", 5*time.Second),

			DetailSettle:    getEnvDuration("DETAIL_DELAY", 5*time.Second),
			DetailScrollMin: 300,
			DetailScrollMax: 1000,
			DetailTrailing:  getEnvDuration("DETAIL_DELAY", 5*time.Second),
		},
		Browser: BrowserConfig{
			Headless:    getEnvBool("HEADLESS", false),
			UserDataDir: getEnv("BROWSER_DATA_DIR", "browser_data"),
			WaitTimeout: getEnvDuration("WAIT_TIMEOUT", 15*time.Second),
		},
		Export: ExportConfig{
			OutputDir: getEnv("OUTPUT_DIR", "."),
			Prefix:    getEnv("EXPORT_PREFIX", "GM1"),
			Partition: getEnvBool("PARTITION_EXPORT", false),
		},
		DBPath:   getEnv("DB_PATH", "scraper.db"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", "scraper.log"),
		Sites:    make(map[string]*SiteConfig),
		sitesDir: getEnv("SITES_DIR", filepath.Join("config", "sites")),
	}

	if interval := os.Getenv("SCRAPE_INTERVAL"); interval != "" {
		d, err := time.ParseDuration(interval)
		if err == nil {
			cfg.Scheduler.Interval = d
		}
	}

	if err := cfg.loadSiteConfigs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) loadSiteConfigs() error {
	entries, err := os.ReadDir(c.sitesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yaml" {
			continue
		}

		path := filepath.Join(c.sitesDir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		var site SiteConfig
		if err := yaml.Unmarshal(data, &site); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		if site.ID == "" {
			return fmt.Errorf("parse %s: missing id", path)
		}

		c.Sites[site.ID] = &site
	}

	return nil
}

// Site returns the realtor.ca site config.
func (c *Config) Site() (*SiteConfig, error) {
	site, ok := c.Sites[DefaultSiteID]
	if !ok {
		return nil, fmt.Errorf("no site config for %s in %s", DefaultSiteID, c.sitesDir)
	}
	return site, nil
}

// SiteIDs returns the loaded site ids in sorted order.
func (c *Config) SiteIDs() []string {
	ids := make([]string, 0, len(c.Sites))
	for id := range c.Sites {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Region finds a city by slug, case-insensitively.
func (s *SiteConfig) Region(slug string) (Region, bool) {
	for _, r := range s.Regions {
		if strings.EqualFold(r.Slug, slug) {
			return r, true
		}
	}
	return Region{}, false
}

// BuildSearchURL renders the list-view search URL for one results page.
func (s *SiteConfig) BuildSearchURL(region Region, page int) string {
	geoID := region.GeoID
	if geoID == "" {
		geoID = s.DefaultGeoID
	}
	geoName := region.GeoName
	if geoName == "" {
		geoName = region.Slug + ", " + s.Province
	}

	var b strings.Builder
	b.WriteString(s.SearchURL)
	fmt.Fprintf(&b, "#view=list&CurrentPage=%d", page)
	for _, f := range s.Filters {
		if f.Key == "GeoIds" {
			fmt.Fprintf(&b, "&GeoIds=%s&GeoName=%s", geoID, url.PathEscape(geoName))
			continue
		}
		fmt.Fprintf(&b, "&%s=%s", f.Key, f.Value)
	}
	return b.String()
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
