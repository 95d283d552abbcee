package config

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"votechain/models"
)

const EnvPrefix = "VOTECHAIN"

type Config struct {
	RegistryAddress string
	RPCURL          string
	ChainID         int64
	WalletKeys      []string
	Port            int
	LogLevel        string
	DevSeed         string
}

func (c Config) String() string {
	return fmt.Sprintf(
		"RegistryAddress: %s | RPCURL: %s | ChainID: %d | WalletKeys: %d | Port: %d | LogLevel: %s | DevSeed: %s",
		c.RegistryAddress,
		c.RPCURL,
		c.ChainID,
		len(c.WalletKeys),
		c.Port,
		c.LogLevel,
		c.DevSeed,
	)
}

// Flags declares the command line flags; names match the viper keys.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("votechain", pflag.ContinueOnError)
	fs.String("registry.address", "", "Election registry contract address")
	fs.String("rpc.url", "http://127.0.0.1:8545", "Ethereum JSON-RPC endpoint")
	fs.Int64("chain.id", 1337, "Chain id used to sign transactions")
	fs.StringSlice("wallet.keys", nil, "Hex private keys exposed as wallet accounts")
	fs.Int("server.port", 8080, "Server port")
	fs.String("log.level", "info", "Log level")
	fs.String("dev.seed", "", "JSON seed file; enables the in-memory contract backend")
	fs.String("config", "", "Optional config file")
	return fs
}

// InitConfig resolves configuration from flags, VOTECHAIN_* env and an optional file.
func InitConfig(args []string) (*Config, error) {
	fs := Flags()
	if err := fs.Parse(args); err != nil {
		return nil, errors.Wrap(err, "failed to parse flags")
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, errors.Wrap(err, "failed to bind flags")
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	cfg := &Config{
		RegistryAddress: strings.TrimSpace(v.GetString("registry.address")),
		RPCURL:          v.GetString("rpc.url"),
		ChainID:         v.GetInt64("chain.id"),
		WalletKeys:      v.GetStringSlice("wallet.keys"),
		Port:            v.GetInt("server.port"),
		LogLevel:        v.GetString("log.level"),
		DevSeed:         v.GetString("dev.seed"),
	}
	return cfg, nil
}

// Registry returns the configured registry address. A missing or malformed
// address is a configuration error and must stop any contract call.
func (c Config) Registry() (common.Address, error) {
	if c.RegistryAddress == "" || !common.IsHexAddress(c.RegistryAddress) {
		return common.Address{}, models.ConfigError("registry.address")
	}
	addr := common.HexToAddress(c.RegistryAddress)
	if addr == (common.Address{}) {
		return common.Address{}, models.ConfigError("registry.address")
	}
	return addr, nil
}

func (c Config) Chain() *big.Int {
	return big.NewInt(c.ChainID)
}
