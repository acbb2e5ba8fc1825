package config

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

const CONFIG_FILE = "GFLOW_CONFIG_FILE"
const DATABASE_TYPE = "GFLOW_DATABASE_TYPE"
const DATABASE_URL = "GFLOW_DATABASE_URL"
const DATABASE_SQLLITE_FILE_NAME = "GFLOW_DATABASE_SQLLITE_FILE_NAME"
const ENGINE_SERVER_WEB_PORT = "GFLOW_ENGINE_SERVER_WEB_PORT"
const EXECUTOR_NAME = "GFLOW_EXECUTOR_NAME"
const LOG_LEVEL = "GFLOW_LOG_LEVEL"
const API_KEY = "GFLOW_API_KEY"

const SCHEDULER_ENABLED = "GFLOW_SCHEDULER_ENABLED"
const SCHEDULER_TICK_INTERVAL = "GFLOW_SCHEDULER_TICK_INTERVAL"
const SCHEDULER_CLAIM_TTL = "GFLOW_SCHEDULER_CLAIM_TTL"       //should be a small multiple of the tick interval
const SCHEDULER_BATCH_SIZE = "GFLOW_SCHEDULER_BATCH_SIZE"     //number of due schedules pulled per tick
const SCHEDULER_PARALLELISM = "GFLOW_SCHEDULER_PARALLELISM"   //due schedules processed concurrently per tick

const WORKER_ENABLED = "GFLOW_WORKER_ENABLED"
const WORKER_POLL_INTERVAL = "GFLOW_WORKER_POLL_INTERVAL"
const WORKER_SIZE = "GFLOW_WORKER_SIZE" //number of workers to run ie the parallel nature of the jobs
const WORKER_TASK_LEASE = "GFLOW_WORKER_TASK_LEASE"
const WORKER_EXECUTION_TIMEOUT = "GFLOW_WORKER_EXECUTION_TIMEOUT"

const RECONCILE_INTERVAL = "GFLOW_RECONCILE_INTERVAL"
const RECONCILE_RUNNING_AFTER = "GFLOW_RECONCILE_RUNNING_AFTER" //0 disables the sweep

const WEBHOOK_COUNT_FAILED_SIGNATURES = "GFLOW_WEBHOOK_COUNT_FAILED_SIGNATURES"
const WEBHOOK_DEFAULT_QUOTA = "GFLOW_WEBHOOK_DEFAULT_QUOTA"
const WEBHOOK_DEFAULT_WINDOW = "GFLOW_WEBHOOK_DEFAULT_WINDOW"
const WEBHOOK_MAX_BODY_BYTES = "GFLOW_WEBHOOK_MAX_BODY_BYTES"

const DATABASE_TYPE_POSTGRES = "POSTGRES"
const DATABASE_TYPE_MYSQL = "MYSQL"
const DATABASE_TYPE_SQLLITE = "SQLLITE"

var (
	once     sync.Once
	settings *viper.Viper
)

func defaults(v *viper.Viper) {
	v.SetDefault(DATABASE_SQLLITE_FILE_NAME, "./flowtrigger.db")
	v.SetDefault(ENGINE_SERVER_WEB_PORT, "8080")
	v.SetDefault(LOG_LEVEL, "INFO")

	v.SetDefault(SCHEDULER_ENABLED, "true")
	v.SetDefault(SCHEDULER_TICK_INTERVAL, "1m")
	v.SetDefault(SCHEDULER_CLAIM_TTL, "3m")
	v.SetDefault(SCHEDULER_BATCH_SIZE, "100")
	v.SetDefault(SCHEDULER_PARALLELISM, "8")

	v.SetDefault(WORKER_ENABLED, "true")
	v.SetDefault(WORKER_POLL_INTERVAL, "3s")
	v.SetDefault(WORKER_SIZE, "5")
	v.SetDefault(WORKER_TASK_LEASE, "15m")
	v.SetDefault(WORKER_EXECUTION_TIMEOUT, "10m")

	v.SetDefault(RECONCILE_INTERVAL, "60s")
	v.SetDefault(RECONCILE_RUNNING_AFTER, "0s")

	v.SetDefault(WEBHOOK_COUNT_FAILED_SIGNATURES, "false")
	v.SetDefault(WEBHOOK_DEFAULT_QUOTA, "60")
	v.SetDefault(WEBHOOK_DEFAULT_WINDOW, "1m")
	v.SetDefault(WEBHOOK_MAX_BODY_BYTES, "1048576")
}

func load() *viper.Viper {
	once.Do(func() {
		v := viper.New()
		v.AutomaticEnv()
		defaults(v)
		if file := v.GetString(CONFIG_FILE); file != "" {
			v.SetConfigFile(file)
			if err := v.ReadInConfig(); err != nil {
				slog.Error("Failed to read config file", "file", file, "error", err)
			}
		}
		settings = v
	})
	return settings
}

func GetSystemSettingString(settingKey string) string {
	return strings.TrimSpace(load().GetString(settingKey))
}

func GetSystemSettingInteger(settingKey string) int {
	return load().GetInt(settingKey)
}

func GetSystemSettingBool(settingKey string) bool {
	return load().GetBool(settingKey)
}

// GetSystemSettingDuration parses the setting as a Go duration, returning 0 when unset or invalid.
func GetSystemSettingDuration(settingKey string) time.Duration {
	val := GetSystemSettingString(settingKey)
	if val == "" {
		return 0
	}
	dur, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("Invalid duration setting", "key", settingKey, "value", val, "error", err)
		return 0
	}
	return dur
}

// Set overrides a setting at runtime, used by the CLI flags and tests.
func Set(settingKey string, value any) {
	load().Set(settingKey, value)
}

// ReadConfigFile merges the settings in file over the environment, for the --config flag.
func ReadConfigFile(file string) error {
	v := load()
	v.SetConfigFile(file)
	return v.MergeInConfig()
}
