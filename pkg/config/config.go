package config

import (
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const configFileENV = "CONFIG_FILE"

const defaultConfigFile = "/config/config.yaml"

type Config struct {
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5"`

	// LibraryPath is the directory whose subdirectories are categories.
	LibraryPath string `koanf:"library_path" validate:"required"`
	// TempDir is where title archives get extracted while their pages are hashed.
	TempDir string `koanf:"temp_dir" default:"/tmp/yomuyume"`

	// External tools. An empty path disables the formats that need it.
	FFmpegPath       string        `koanf:"ffmpeg_path"`
	FFmpegLogPath    string        `koanf:"ffmpeg_log_path"`
	DJXLPath         string        `koanf:"djxl_path"`
	TranscodeTimeout time.Duration `koanf:"transcode_timeout" default:"60s"`

	// ImageFormats is the ordered list of page extensions that get scanned.
	// The order is also the order thumbnail stems are tried in.
	ImageFormats       []string `koanf:"image_formats" default:"[\"jxl\",\"avif\",\"webp\",\"png\",\"jpg\",\"jpeg\",\"gif\",\"bmp\",\"tiff\",\"tif\"]"`
	NativeImageFormats []string `koanf:"native_image_formats" default:"[\"png\",\"jpg\",\"jpeg\",\"gif\",\"bmp\",\"tiff\",\"tif\",\"webp\"]"`
	JPEGXLFormats      []string `koanf:"jpegxl_formats" default:"[\"jxl\"]"`
	ArchiveExtensions  []string `koanf:"archive_extensions" default:"[\"zip\",\"cbz\"]"`
	ThumbnailNames     []string `koanf:"thumbnail_names" default:"[\"thumbnail\",\"cover\",\"_\",\"folder\"]"`

	// HashWorkers caps how many pages are hashed at once. Zero means one per CPU.
	HashWorkers         int `koanf:"hash_workers" validate:"min=0"`
	MetricsPort         int `koanf:"metrics_port" validate:"min=0,max=65535"`
	SyncIntervalMinutes int `koanf:"sync_interval_minutes" default:"60" validate:"min=1"`
	WorkerProcesses     int `koanf:"worker_processes" default:"1" validate:"min=1"`
	// JobRetentionDays is how long finished jobs and their logs are kept. Zero
	// keeps them forever.
	JobRetentionDays int `koanf:"job_retention_days" default:"30" validate:"min=0"`
}

// New loads the configuration from the YAML file named by CONFIG_FILE (when it
// exists) and then from the environment, which wins over the file.
func New() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	err := k.Load(env.ProviderWithValue("", ".", envValue(knownKeys())), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// NewForTest returns a configuration that doesn't touch the file system or
// the environment.
func NewForTest() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		panic(err)
	}
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.DatabaseConnectRetryDelay = 0
	return cfg
}

func (cfg *Config) validate() error {
	v := validator.New()
	v.RegisterTagNameFunc(keyName)
	err := v.Struct(cfg)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}

	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := fe.Field()
		if fe.Tag() == "required" {
			missing = append(missing, strings.ToUpper(key)+" ("+key+")")
			continue
		}
		return errors.Errorf("invalid config value for %s: failed %q", key, fe.Tag())
	}
	return errors.Errorf("missing required config: %s", strings.Join(missing, ", "))
}

// envValue maps an environment variable onto its config key, dropping
// unrelated variables. List values are comma-separated.
func envValue(known map[string]reflect.Kind) func(key, value string) (string, interface{}) {
	return func(key, value string) (string, interface{}) {
		key = strings.ToLower(key)
		kind, ok := known[key]
		if !ok {
			return "", nil
		}
		if kind == reflect.Slice {
			return key, splitList(value)
		}
		return key, value
	}
}

func splitList(value string) []string {
	items := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

// knownKeys lists the config keys and their kinds so that unrelated
// environment variables aren't loaded into koanf.
func knownKeys() map[string]reflect.Kind {
	keys := map[string]reflect.Kind{}
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		keys[keyName(t.Field(i))] = t.Field(i).Type.Kind()
	}
	return keys
}

// keyName is the koanf key of a field, falling back to the snake-cased field
// name for untagged fields.
func keyName(f reflect.StructField) string {
	if tag := f.Tag.Get("koanf"); tag != "" && tag != "-" {
		return tag
	}
	return toSnakeCase(f.Name)
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
