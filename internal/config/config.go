package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var AppConfig Config

func InitConfig() {
	// .env is optional, real environment wins
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("Failed to load .env file: %v", err)
	}

	viper.AutomaticEnv()

	// Default config
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("RPC_PORT", "50051")
	viper.SetDefault("LIBP2P_PORT", 4001)
	viper.SetDefault("LIBP2P_BOOT_NODES", "")
	viper.SetDefault("ENABLE_P2P", true)
	viper.SetDefault("ENABLE_FAUCET", false)
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_DIR", "/app/db")
	viper.SetDefault("JWT_SECRET", "")
	viper.SetDefault("ESCROW_PRIVATE_KEY", "")
	viper.SetDefault("ESCROW_ADMIN", "")
	viper.SetDefault("ESCROW_TOKEN", "")
	viper.SetDefault("MAX_BATCH_SIZE", 100)
	viper.SetDefault("MAX_TIME_LOCK", "720h")
	viper.SetDefault("RATE_LIMIT_WINDOW", "3600s")
	viper.SetDefault("RATE_LIMIT_MAX_OPS", 10)
	viper.SetDefault("RATE_LIMIT_COOLDOWN", "60s")
	viper.SetDefault("RATE_LIMIT_WHITELIST", "")
	viper.SetDefault("ADDRESS_STATE_TTL", "24h")
	viper.SetDefault("JANITOR_INTERVAL", "10m")

	logLevel, err := logrus.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}

	AppConfig = Config{
		HTTPPort:           viper.GetString("HTTP_PORT"),
		RPCPort:            viper.GetString("RPC_PORT"),
		Libp2pPort:         viper.GetInt("LIBP2P_PORT"),
		Libp2pBootNodes:    viper.GetString("LIBP2P_BOOT_NODES"),
		EnableP2P:          viper.GetBool("ENABLE_P2P"),
		EnableFaucet:       viper.GetBool("ENABLE_FAUCET"),
		DbDir:              viper.GetString("DB_DIR"),
		LogLevel:           logLevel,
		JwtSecret:          viper.GetString("JWT_SECRET"),
		EscrowPrivKey:      viper.GetString("ESCROW_PRIVATE_KEY"),
		EscrowAdmin:        viper.GetString("ESCROW_ADMIN"),
		EscrowToken:        viper.GetString("ESCROW_TOKEN"),
		MaxBatchSize:       viper.GetInt("MAX_BATCH_SIZE"),
		MaxTimeLock:        viper.GetDuration("MAX_TIME_LOCK"),
		RateLimitWindow:    viper.GetDuration("RATE_LIMIT_WINDOW"),
		RateLimitMaxOps:    viper.GetInt("RATE_LIMIT_MAX_OPS"),
		RateLimitCooldown:  viper.GetDuration("RATE_LIMIT_COOLDOWN"),
		RateLimitWhitelist: splitList(viper.GetString("RATE_LIMIT_WHITELIST")),
		AddressStateTTL:    viper.GetDuration("ADDRESS_STATE_TTL"),
		JanitorInterval:    viper.GetDuration("JANITOR_INTERVAL"),
	}

	if AppConfig.MaxBatchSize <= 0 || AppConfig.MaxBatchSize > 100 {
		logrus.Warnf("MAX_BATCH_SIZE %d out of range, set to 100", AppConfig.MaxBatchSize)
		AppConfig.MaxBatchSize = 100
	}

	if AppConfig.JwtSecret == "" {
		logrus.Warnf("JWT_SECRET is empty, mutating HTTP routes will reject every request")
	}

	logrus.Infof("Init config, DbDir %s, RateLimitWindow %v, RateLimitMaxOps %d, RateLimitCooldown %v",
		AppConfig.DbDir, AppConfig.RateLimitWindow, AppConfig.RateLimitMaxOps, AppConfig.RateLimitCooldown)

	// logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(AppConfig.LogLevel)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

type Config struct {
	HTTPPort           string
	RPCPort            string
	Libp2pPort         int
	Libp2pBootNodes    string
	EnableP2P          bool
	EnableFaucet       bool
	DbDir              string
	LogLevel           logrus.Level
	JwtSecret          string
	EscrowPrivKey      string
	EscrowAdmin        string
	EscrowToken        string
	MaxBatchSize       int
	MaxTimeLock        time.Duration
	RateLimitWindow    time.Duration
	RateLimitMaxOps    int
	RateLimitCooldown  time.Duration
	RateLimitWhitelist []string
	AddressStateTTL    time.Duration
	JanitorInterval    time.Duration
}
