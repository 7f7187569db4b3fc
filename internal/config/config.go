// Package config loads the runtime configuration a validator batch run
// or results-reporting process needs: significance level, permutation
// budget, family-partitioning flag, executor sizing, and the optional
// results-server bind address. Precedence is flag > env > file >
// default, the same layering the base repository's `cmd/server/main.go`
// gets from plain `flag.String`/`flag.Int`/`flag.Bool` defaults, here
// extended with `github.com/spf13/viper` so the same binary can be
// retargeted by environment or a config file in batch/CI contexts
// without touching its invocation.
package config

import (
	"flag"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the fully-resolved set of knobs cmd/palvalidator needs to
// build a preparer, a validator algorithm, an executor, and, when
// EnableAPI is set, a results server.
type Config struct {
	// RunID uniquely identifies this process invocation; it labels log
	// lines, and its string form is the run ID the results server
	// records this run under.
	RunID uuid.UUID

	Host string
	Port int

	LogLevel string
	DataPath string

	SignificanceLevel decimal.Decimal
	NumPermutations   int
	PartitionByFamily bool
	ExecutorWorkers   int

	EnableAPI bool
}

// Load resolves a Config from args (ordinarily os.Args[1:]), layering
// environment variables prefixed PALVALIDATOR_ and, if -config names a
// file, that file's contents, under whatever flags are explicitly
// passed.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("palvalidator", flag.ContinueOnError)
	host := fs.String("host", "localhost", "results server host")
	port := fs.Int("port", 8090, "results server port")
	logLevel := fs.String("log-level", "info", "log level (debug, info, warn, error)")
	dataPath := fs.String("data", "./data", "security data directory")
	significance := fs.Float64("significance", 0.05, "family-wise significance level (alpha)")
	permutations := fs.Int("permutations", 2000, "permutations per validator step")
	partitionByFamily := fs.Bool("partition-by-family", false, "partition the baseline by direction/sub-type before validating")
	workers := fs.Int("workers", 0, "fixed executor pool size (0 = runtime.NumCPU())")
	enableAPI := fs.Bool("api", false, "mount the results-reporting HTTP/websocket surface")
	configFile := fs.String("config", "", "optional config file (yaml/json/toml) overriding defaults")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("config: parsing flags: %w", err)
	}

	pf := pflag.NewFlagSet("palvalidator", pflag.ContinueOnError)
	pf.AddGoFlagSet(fs)
	// AddGoFlagSet leaves every bridged flag marked unchanged, which viper
	// ranks below env and file values; mark the flags actually passed.
	fs.Visit(func(f *flag.Flag) {
		if pfl := pf.Lookup(f.Name); pfl != nil {
			pfl.Changed = true
		}
	})

	v := viper.New()
	v.SetEnvPrefix("PALVALIDATOR")
	v.AutomaticEnv()
	if err := v.BindPFlags(pf); err != nil {
		return nil, fmt.Errorf("config: binding flags: %w", err)
	}

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", *configFile, err)
		}
	}

	return &Config{
		RunID:             uuid.New(),
		Host:              v.GetString("host"),
		Port:              v.GetInt("port"),
		LogLevel:          v.GetString("log-level"),
		DataPath:          v.GetString("data"),
		SignificanceLevel: decimal.NewFromFloat(v.GetFloat64("significance")),
		NumPermutations:   v.GetInt("permutations"),
		PartitionByFamily: v.GetBool("partition-by-family"),
		ExecutorWorkers:   v.GetInt("workers"),
		EnableAPI:         v.GetBool("api"),
	}, nil
}
