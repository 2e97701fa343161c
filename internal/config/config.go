package config

import (
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

var AppConfig Config

func InitConfig() {
	viper.AutomaticEnv()

	// Default config
	viper.SetDefault("HTTP_PORT", "8080")
	viper.SetDefault("BTC_RPC", "http://localhost:8332")
	viper.SetDefault("BTC_RPC_USER", "")
	viper.SetDefault("BTC_RPC_PASS", "")
	viper.SetDefault("BTC_NETWORK_TYPE", "")
	viper.SetDefault("BTC_FEE_RATE", 0)
	viper.SetDefault("L2_RPC", "http://localhost:8545")
	viper.SetDefault("L2_CHAIN_ID", int64(1))
	viper.SetDefault("VAULT_REGISTRY_CONTRACT", "")
	viper.SetDefault("DEPOSITOR_ETH_ADDRESS", "")
	viper.SetDefault("DEPOSITOR_PRIVATE_KEY", "")
	viper.SetDefault("BTC_PRIVATE_KEY", "")
	viper.SetDefault("CHANGE_ADDRESS", "")
	viper.SetDefault("PROVIDER_URL", "http://localhost:9060")
	viper.SetDefault("PROVIDER_POLL_INTERVAL", "5s")
	viper.SetDefault("PROVIDER_POLL_TIMEOUT", "10m")
	viper.SetDefault("REGISTRATION_TIMEOUT", "3m")
	viper.SetDefault("VERIFY_TIMEOUT", "10m")
	viper.SetDefault("STATUS_POLL_INTERVAL", "5s")
	viper.SetDefault("PARAMS_CACHE_TTL", "5m")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("DB_DIR", "/app/db")

	logLevel, err := logrus.ParseLevel(strings.ToLower(viper.GetString("LOG_LEVEL")))
	if err != nil {
		logrus.Fatalf("Invalid log level: %v", err)
	}

	AppConfig = Config{
		HTTPPort:             viper.GetString("HTTP_PORT"),
		BTCRPC:               viper.GetString("BTC_RPC"),
		BTCRPC_USER:          viper.GetString("BTC_RPC_USER"),
		BTCRPC_PASS:          viper.GetString("BTC_RPC_PASS"),
		BTCNetworkType:       viper.GetString("BTC_NETWORK_TYPE"),
		BTCFeeRate:           viper.GetUint64("BTC_FEE_RATE"),
		L2RPC:                viper.GetString("L2_RPC"),
		L2ChainId:            big.NewInt(viper.GetInt64("L2_CHAIN_ID")),
		VaultRegistry:        viper.GetString("VAULT_REGISTRY_CONTRACT"),
		DepositorEthAddress:  viper.GetString("DEPOSITOR_ETH_ADDRESS"),
		DepositorPriKey:      viper.GetString("DEPOSITOR_PRIVATE_KEY"),
		BTCPriKey:            viper.GetString("BTC_PRIVATE_KEY"),
		ChangeAddress:        viper.GetString("CHANGE_ADDRESS"),
		ProviderURL:          viper.GetString("PROVIDER_URL"),
		ProviderPollInterval: viper.GetDuration("PROVIDER_POLL_INTERVAL"),
		ProviderPollTimeout:  viper.GetDuration("PROVIDER_POLL_TIMEOUT"),
		RegistrationTimeout:  viper.GetDuration("REGISTRATION_TIMEOUT"),
		VerifyTimeout:        viper.GetDuration("VERIFY_TIMEOUT"),
		StatusPollInterval:   viper.GetDuration("STATUS_POLL_INTERVAL"),
		ParamsCacheTTL:       viper.GetDuration("PARAMS_CACHE_TTL"),
		DbDir:                viper.GetString("DB_DIR"),
		LogLevel:             logLevel,
	}

	logrus.Infof("Init config, network %q, provider %s, registry %s",
		AppConfig.BTCNetworkType, AppConfig.ProviderURL, AppConfig.VaultRegistry)

	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(AppConfig.LogLevel)
}

type Config struct {
	HTTPPort             string
	BTCRPC               string
	BTCRPC_USER          string
	BTCRPC_PASS          string
	BTCNetworkType       string
	BTCFeeRate           uint64
	L2RPC                string
	L2ChainId            *big.Int
	VaultRegistry        string
	DepositorEthAddress  string
	DepositorPriKey      string
	BTCPriKey            string
	ChangeAddress        string
	ProviderURL          string
	ProviderPollInterval time.Duration
	ProviderPollTimeout  time.Duration
	RegistrationTimeout  time.Duration
	VerifyTimeout        time.Duration
	StatusPollInterval   time.Duration
	ParamsCacheTTL       time.Duration
	DbDir                string
	LogLevel             logrus.Level
}

// ChainParams maps the configured network name to btcd chain parameters.
// Empty means mainnet.
func (c *Config) ChainParams() *chaincfg.Params {
	switch c.BTCNetworkType {
	case "", "mainnet":
		return &chaincfg.MainNetParams
	case "regtest":
		return &chaincfg.RegressionNetParams
	case "testnet3":
		return &chaincfg.TestNet3Params
	case "signet":
		return &chaincfg.SigNetParams
	default:
		logrus.Fatalf("Unknown bitcoin network type %q", c.BTCNetworkType)
		return nil
	}
}
