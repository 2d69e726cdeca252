package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const EnvPrefix = "VSMIRROR"

type Config struct {
	Verbose bool

	DestDir      string
	Channel      string
	UpdateURL    string
	Platforms    []string
	Artifacts    []string
	HTTPTimeout  time.Duration
	ShowProgress bool

	MarketplaceType     string
	MarketplaceURL      string
	MarketplacePageSize int
	MarketplaceMaxPages int
	MarketplaceBatch    int
	CacheDir            string
	WriteCache          bool

	DBPath      string
	AutoMigrate bool

	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
	BaseURL  string
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("verbose", false)

	v.SetDefault("mirror.dest_dir", "")
	v.SetDefault("mirror.channel", "stable")
	v.SetDefault("mirror.update_url", "https://update.code.visualstudio.com")
	v.SetDefault("mirror.platforms", []string{"linux-x64", "win32-x64"})
	v.SetDefault("mirror.artifacts", []string{})
	v.SetDefault("mirror.http_timeout", "10m")
	v.SetDefault("mirror.progress", true)

	v.SetDefault("marketplace.type", "microsoft")
	v.SetDefault("marketplace.url", "")
	v.SetDefault("marketplace.page_size", 100)
	v.SetDefault("marketplace.max_pages", 50)
	v.SetDefault("marketplace.batch_size", 50)
	v.SetDefault("marketplace.cache_dir", "")
	v.SetDefault("marketplace.write_cache", false)

	v.SetDefault("database.path", "")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.https", false)
	v.SetDefault("server.cert_file", "")
	v.SetDefault("server.key_file", "")
	v.SetDefault("server.base_url", "")
}

// Init prepares the global viper instance: defaults, environment and an
// optional .env file in the working directory.
func Init() {
	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load(".env")
	}

	SetDefaults(viper.GetViper())
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func GetConfig() Config {
	return FromViper(viper.GetViper())
}

func FromViper(v *viper.Viper) Config {
	return Config{
		Verbose: v.GetBool("verbose"),

		DestDir:      v.GetString("mirror.dest_dir"),
		Channel:      v.GetString("mirror.channel"),
		UpdateURL:    strings.TrimRight(v.GetString("mirror.update_url"), "/"),
		Platforms:    v.GetStringSlice("mirror.platforms"),
		Artifacts:    v.GetStringSlice("mirror.artifacts"),
		HTTPTimeout:  v.GetDuration("mirror.http_timeout"),
		ShowProgress: v.GetBool("mirror.progress"),

		MarketplaceType:     v.GetString("marketplace.type"),
		MarketplaceURL:      v.GetString("marketplace.url"),
		MarketplacePageSize: v.GetInt("marketplace.page_size"),
		MarketplaceMaxPages: v.GetInt("marketplace.max_pages"),
		MarketplaceBatch:    v.GetInt("marketplace.batch_size"),
		CacheDir:            v.GetString("marketplace.cache_dir"),
		WriteCache:          v.GetBool("marketplace.write_cache"),

		DBPath:      v.GetString("database.path"),
		AutoMigrate: v.GetBool("database.auto_migrate"),

		Port:     v.GetInt("server.port"),
		Host:     v.GetString("server.host"),
		UseHTTPS: v.GetBool("server.https"),
		CertFile: v.GetString("server.cert_file"),
		KeyFile:  v.GetString("server.key_file"),
		BaseURL:  strings.TrimRight(v.GetString("server.base_url"), "/"),
	}
}
