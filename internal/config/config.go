package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DoyleJ11/weatherboard/internal/weather"
)

const EnvPrefix = "WEATHERBOARD"

const DefaultRoom = "thunderdome"

var validate = validator.New()

type Server struct {
	Bind            string        `validate:"required"`
	Port            int           `validate:"min=1,max=65535"`
	DatabaseURL     string        // empty means in-memory storage
	WeatherAPIKey   string        `validate:"required"`
	WeatherAPIURL   string        `validate:"required,url"`
	LookupTimeout   time.Duration `validate:"gt=0"`
	LookupRetries   int           `validate:"min=0,max=10"`
	RefreshInterval time.Duration `validate:"min=1s"`
	PartialRefresh  bool
	Verbose         bool
}

func (c *Server) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid server config: %w", err)
	}
	return nil
}

func (c *Server) Addr() string {
	return net.JoinHostPort(c.Bind, strconv.Itoa(c.Port))
}

// ServerFlags registers the server's flags on fs, writing into cfg.
func ServerFlags(fs *pflag.FlagSet, cfg *Server) {
	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: WEATHERBOARD_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: WEATHERBOARD_PORT)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres DSN; in-memory storage when empty (env: WEATHERBOARD_DATABASE_URL)")
	fs.StringVar(&cfg.WeatherAPIKey, "weather-api-key", "", "weatherapi.com API key (env: WEATHERBOARD_WEATHER_API_KEY)")
	fs.StringVar(&cfg.WeatherAPIURL, "weather-api-url", weather.DefaultBaseURL, "weatherapi.com base URL (env: WEATHERBOARD_WEATHER_API_URL)")
	fs.DurationVar(&cfg.LookupTimeout, "lookup-timeout", 10*time.Second, "timeout for a single weather lookup (env: WEATHERBOARD_LOOKUP_TIMEOUT)")
	fs.IntVar(&cfg.LookupRetries, "lookup-retries", 0, "retries for transient lookup failures (env: WEATHERBOARD_LOOKUP_RETRIES)")
	fs.DurationVar(&cfg.RefreshInterval, "refresh-interval", 10*time.Minute, "time between leaderboard refreshes (env: WEATHERBOARD_REFRESH_INTERVAL)")
	fs.BoolVar(&cfg.PartialRefresh, "partial-refresh", false, "keep successful lookups when a refresh partly fails (env: WEATHERBOARD_PARTIAL_REFRESH)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: WEATHERBOARD_VERBOSE)")
}

type Client struct {
	Server    string `validate:"required,url"`
	Room      string `validate:"required,max=128"`
	ID        string // generated and saved to StateFile when empty
	Name      string
	Location  string
	StateFile string `validate:"required"`
	Verbose   bool
}

func (c *Client) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid client config: %w", err)
	}
	return nil
}

func ClientFlags(fs *pflag.FlagSet, cfg *Client) {
	fs.StringVarP(&cfg.Server, "server", "s", "ws://localhost:8080", "server base URL (env: WEATHERBOARD_SERVER)")
	fs.StringVarP(&cfg.Room, "room", "r", DefaultRoom, "room to join (env: WEATHERBOARD_ROOM)")
	fs.StringVar(&cfg.ID, "id", "", "stable client id (env: WEATHERBOARD_ID)")
	fs.StringVarP(&cfg.Name, "name", "n", "", "display name; prompted for when empty (env: WEATHERBOARD_NAME)")
	fs.StringVarP(&cfg.Location, "location", "l", "", "\"lat,lon\" or place name; prompted for when empty (env: WEATHERBOARD_LOCATION)")
	fs.StringVar(&cfg.StateFile, "state-file", ".weatherboard.yaml", "where the client remembers its registration (env: WEATHERBOARD_STATE_FILE)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: WEATHERBOARD_VERBOSE)")
}

// Bind lets WEATHERBOARD_* environment variables fill in any flag not given on
// the command line. Call it after the flags are registered and before parsing.
func Bind(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	var errs []error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			if err := fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name))); err != nil {
				errs = append(errs, fmt.Errorf("%s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), err))
			}
		}
	})
	return v, errors.Join(errs...)
}

// LoadEnvFiles loads .env style files into the environment. Missing files are
// not an error.
func LoadEnvFiles(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}
