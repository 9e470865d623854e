// Package config parses the soteria configuration from command line flags,
// environment variables and an optional yaml config file, in that order of
// precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "SOTERIA"

// MysqlConfig defines configs related to MySQL
type MysqlConfig struct {
	Protocol        string
	Address         string
	Username        string
	Password        string
	PasswordPath    string `yaml:"password_path"`
	Database        string
	MaxOpenConns    int `yaml:"max_open_conns"`
	MaxIdleConns    int `yaml:"max_idle_conns"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime"`
}

// FleetConfig defines configs related to the upstream Fleet API
type FleetConfig struct {
	URL                string
	Token              string
	TokenPath          string        `yaml:"token_path"`
	PerPage            int           `yaml:"per_page"`
	Timeout            time.Duration `yaml:"timeout"`
	InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	RequestsPerSecond  int           `yaml:"requests_per_second"`
	RequestBurst       int           `yaml:"request_burst"`
}

// SyncConfig defines configs related to the sync daemon
type SyncConfig struct {
	Interval         time.Duration
	Workers          int
	FailureTolerance float64       `yaml:"failure_tolerance"`
	TrendWindow      time.Duration `yaml:"trend_window"`
}

// LoggingConfig defines configs related to logging
type LoggingConfig struct {
	Debug bool
	JSON  bool
}

// SoteriaConfig stores the application configuration. Each subcategory is
// stored in a related struct. When a new category or config is required,
// Manager.addConfigs and Manager.LoadConfig should be updated to set and
// retrieve it as appropriate.
type SoteriaConfig struct {
	Mysql   MysqlConfig
	Fleet   FleetConfig
	Sync    SyncConfig
	Logging LoggingConfig
}

// addConfigs adds the configuration keys and default values that will be
// filled into the SoteriaConfig struct
func (man Manager) addConfigs() {
	// MySQL
	man.addConfigString("mysql.protocol", "tcp",
		"MySQL server communication protocol (tcp,unix,...)")
	man.addConfigString("mysql.address", "localhost:3306",
		"MySQL server address (host:port)")
	man.addConfigString("mysql.username", "soteria",
		"MySQL server username")
	man.addConfigString("mysql.password", "",
		"MySQL server password (prefer env variable for security)")
	man.addConfigString("mysql.password_path", "",
		"Path to file containing MySQL server password")
	man.addConfigString("mysql.database", "soteria",
		"MySQL database name")
	man.addConfigInt("mysql.max_open_conns", 50, "MySQL maximum open connection handles")
	man.addConfigInt("mysql.max_idle_conns", 50, "MySQL maximum idle connection handles")
	man.addConfigInt("mysql.conn_max_lifetime", 0, "MySQL maximum amount of time a connection may be reused")

	// Fleet API
	man.addConfigString("fleet.url", "", "Fleet server URL (https://...)")
	man.addConfigString("fleet.token", "", "Fleet API token (prefer env variable for security)")
	man.addConfigString("fleet.token_path", "", "Path to file containing Fleet API token")
	man.addConfigInt("fleet.per_page", 100, "Page size for paginated Fleet API listings")
	man.addConfigDuration("fleet.timeout", 30*time.Second, "Timeout for Fleet API requests")
	man.addConfigBool("fleet.insecure_skip_verify", false,
		"Skip TLS certificate verification on Fleet API requests")
	man.addConfigInt("fleet.requests_per_second", 10,
		"Sustained request budget against the Fleet API")
	man.addConfigInt("fleet.request_burst", 20,
		"Burst request budget against the Fleet API")

	// Sync
	man.addConfigDuration("sync.interval", 5*time.Minute, "Interval between scheduled sync runs")
	man.addConfigInt("sync.workers", 10, "Concurrent per-host result fetch workers")
	man.addConfigFloat64("sync.failure_tolerance", 0.1,
		"Tolerated fraction of failed per-host result fetches before a run is marked failed")
	man.addConfigDuration("sync.trend_window", 14*24*time.Hour, "Lookback window for trend deltas")

	// Logging
	man.addConfigBool("logging.debug", false, "Enable debug logging")
	man.addConfigBool("logging.json", false, "Log in JSON format")
}

// LoadConfig will load the config variables into a fully initialized
// SoteriaConfig struct
func (man Manager) LoadConfig() SoteriaConfig {
	man.loadConfigFile()

	return SoteriaConfig{
		Mysql: MysqlConfig{
			Protocol:        man.getConfigString("mysql.protocol"),
			Address:         man.getConfigString("mysql.address"),
			Username:        man.getConfigString("mysql.username"),
			Password:        man.getConfigString("mysql.password"),
			PasswordPath:    man.getConfigString("mysql.password_path"),
			Database:        man.getConfigString("mysql.database"),
			MaxOpenConns:    man.getConfigInt("mysql.max_open_conns"),
			MaxIdleConns:    man.getConfigInt("mysql.max_idle_conns"),
			ConnMaxLifetime: man.getConfigInt("mysql.conn_max_lifetime"),
		},
		Fleet: FleetConfig{
			URL:                man.getConfigString("fleet.url"),
			Token:              man.getConfigString("fleet.token"),
			TokenPath:          man.getConfigString("fleet.token_path"),
			PerPage:            man.getConfigInt("fleet.per_page"),
			Timeout:            man.getConfigDuration("fleet.timeout"),
			InsecureSkipVerify: man.getConfigBool("fleet.insecure_skip_verify"),
			RequestsPerSecond:  man.getConfigInt("fleet.requests_per_second"),
			RequestBurst:       man.getConfigInt("fleet.request_burst"),
		},
		Sync: SyncConfig{
			Interval:         man.getConfigDuration("sync.interval"),
			Workers:          man.getConfigInt("sync.workers"),
			FailureTolerance: man.getConfigFloat64("sync.failure_tolerance"),
			TrendWindow:      man.getConfigDuration("sync.trend_window"),
		},
		Logging: LoggingConfig{
			Debug: man.getConfigBool("logging.debug"),
			JSON:  man.getConfigBool("logging.json"),
		},
	}
}

// IsSet determines whether a given config key has been explicitly set by any
// of the configuration sources. If false, the default value is being used.
func (man Manager) IsSet(key string) bool {
	return man.viper.IsSet(key)
}

// envNameFromConfigKey converts a config key into the corresponding
// environment variable name
func envNameFromConfigKey(key string) string {
	return envPrefix + "_" + strings.ToUpper(strings.Replace(key, ".", "_", -1))
}

// flagNameFromConfigKey converts a config key into the corresponding flag name
func flagNameFromConfigKey(key string) string {
	return strings.Replace(key, ".", "_", -1)
}

// Manager manages the addition and retrieval of config values for soteria
// configs. Its only public API method is LoadConfig, which will return the
// populated SoteriaConfig struct.
type Manager struct {
	viper    *viper.Viper
	command  *cobra.Command
	defaults map[string]interface{}
}

// NewManager initializes a Manager wrapping the provided cobra command. All
// config flags will be attached to that command (and inherited by the
// subcommands). Typically this should be called just once, with the root
// command.
func NewManager(command *cobra.Command) Manager {
	man := Manager{
		viper:    viper.New(),
		command:  command,
		defaults: map[string]interface{}{},
	}
	man.addConfigs()
	return man
}

// addDefault will check for duplication, then add a default value to the
// defaults map
func (man Manager) addDefault(key string, defVal interface{}) {
	if _, exists := man.defaults[key]; exists {
		panic("Trying to add duplicate config for key " + key)
	}

	man.defaults[key] = defVal
}

func getFlagUsage(key string, usage string) string {
	return fmt.Sprintf("Env: %s\n\t\t%s", envNameFromConfigKey(key), usage)
}

// getInterfaceVal is a helper function used by the getConfig* functions to
// retrieve the config value as interface{}, which will then be cast to the
// appropriate type by the getConfig* function.
func (man Manager) getInterfaceVal(key string) interface{} {
	interfaceVal := man.viper.Get(key)
	if interfaceVal == nil {
		var ok bool
		interfaceVal, ok = man.defaults[key]
		if !ok {
			panic("Tried to look up default value for nonexistent config option: " + key)
		}
	}
	return interfaceVal
}

// addConfigString adds a string config to the config options
func (man Manager) addConfigString(key, defVal, usage string) {
	man.command.PersistentFlags().String(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))

	man.addDefault(key, defVal)
}

// getConfigString retrieves a string from the loaded config
func (man Manager) getConfigString(key string) string {
	interfaceVal := man.getInterfaceVal(key)
	stringVal, err := cast.ToStringE(interfaceVal)
	if err != nil {
		panic("Unable to cast to string for key " + key + ": " + err.Error())
	}

	return stringVal
}

// addConfigInt adds a int config to the config options
func (man Manager) addConfigInt(key string, defVal int, usage string) {
	man.command.PersistentFlags().Int(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))

	man.addDefault(key, defVal)
}

// getConfigInt retrieves a int from the loaded config
func (man Manager) getConfigInt(key string) int {
	interfaceVal := man.getInterfaceVal(key)
	intVal, err := cast.ToIntE(interfaceVal)
	if err != nil {
		panic("Unable to cast to int for key " + key + ": " + err.Error())
	}

	return intVal
}

// addConfigFloat64 adds a float64 config to the config options
func (man Manager) addConfigFloat64(key string, defVal float64, usage string) {
	man.command.PersistentFlags().Float64(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))

	man.addDefault(key, defVal)
}

// getConfigFloat64 retrieves a float64 from the loaded config
func (man Manager) getConfigFloat64(key string) float64 {
	interfaceVal := man.getInterfaceVal(key)
	floatVal, err := cast.ToFloat64E(interfaceVal)
	if err != nil {
		panic("Unable to cast to float64 for key " + key + ": " + err.Error())
	}

	return floatVal
}

// addConfigBool adds a bool config to the config options
func (man Manager) addConfigBool(key string, defVal bool, usage string) {
	man.command.PersistentFlags().Bool(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))

	man.addDefault(key, defVal)
}

// getConfigBool retrieves a bool from the loaded config
func (man Manager) getConfigBool(key string) bool {
	interfaceVal := man.getInterfaceVal(key)
	boolVal, err := cast.ToBoolE(interfaceVal)
	if err != nil {
		panic("Unable to cast to bool for key " + key + ": " + err.Error())
	}

	return boolVal
}

// addConfigDuration adds a duration config to the config options
func (man Manager) addConfigDuration(key string, defVal time.Duration, usage string) {
	man.command.PersistentFlags().Duration(flagNameFromConfigKey(key), defVal, getFlagUsage(key, usage))
	man.viper.BindPFlag(key, man.command.PersistentFlags().Lookup(flagNameFromConfigKey(key)))
	man.viper.BindEnv(key, envNameFromConfigKey(key))

	man.addDefault(key, defVal)
}

// getConfigDuration retrieves a duration from the loaded config
func (man Manager) getConfigDuration(key string) time.Duration {
	interfaceVal := man.getInterfaceVal(key)
	durationVal, err := cast.ToDurationE(interfaceVal)
	if err != nil {
		panic("Unable to cast to duration for key " + key + ": " + err.Error())
	}

	return durationVal
}

// loadConfigFile handles the loading of the config file.
func (man Manager) loadConfigFile() {
	man.viper.SetConfigType("yaml")

	configFile := man.command.PersistentFlags().Lookup("config").Value.String()

	if configFile == "" {
		// No config file set, only use configs from env vars/flags/defaults
		return
	}

	man.viper.SetConfigFile(configFile)
	err := man.viper.ReadInConfig()
	if err != nil {
		fmt.Println("Error loading config file:", err)
		os.Exit(1)
	}

	fmt.Println("Using config file: ", man.viper.ConfigFileUsed())
}

// TestConfig returns a barebones configuration suitable for use in tests.
// Individual tests may want to override some of the values provided.
func TestConfig() SoteriaConfig {
	return SoteriaConfig{
		Fleet: FleetConfig{
			PerPage:           10,
			Timeout:           5 * time.Second,
			RequestsPerSecond: 100,
			RequestBurst:      100,
		},
		Sync: SyncConfig{
			Interval:         time.Minute,
			Workers:          2,
			FailureTolerance: 0.5,
			TrendWindow:      14 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Debug: true,
		},
	}
}
