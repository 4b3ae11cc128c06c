package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "ONEVOTE"

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Store   StoreConfig   `mapstructure:"store"`
	MySQL   MySQLConfig   `mapstructure:"mysql"`
	Redis   RedisConfig   `mapstructure:"redis"`
	Kafka   KafkaConfig   `mapstructure:"kafka"`
	ETCD    ETCDConfig    `mapstructure:"etcd"`
	Lock    LockConfig    `mapstructure:"lock"`
	Auth    AuthConfig    `mapstructure:"auth"`
	GraphQL GraphQLConfig `mapstructure:"graphql"`
	Audit   AuditConfig   `mapstructure:"audit"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin模式: debug / release / test
}

// StoreConfig 选择持久化后端
type StoreConfig struct {
	Backend string        `mapstructure:"backend"` // mysql / memory
	Timeout time.Duration `mapstructure:"timeout"`
}

type MySQLConfig struct {
	Master       string `mapstructure:"master"`
	Slave        string `mapstructure:"slave"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// 数据缓存Redis
	DataAddress string        `mapstructure:"data_address"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	MaxRetries  int           `mapstructure:"max_retries"`
	Timeout     time.Duration `mapstructure:"timeout"`
	CacheTTL    time.Duration `mapstructure:"cache_ttl"`

	// Redlock使用的Redis节点
	LockAddresses []string `mapstructure:"lock_addresses"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ETCDConfig struct {
	Endpoints   []string      `mapstructure:"endpoints"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
}

// LockConfig 分布式锁配置
type LockConfig struct {
	Backend    string        `mapstructure:"backend"` // etcd / redis / none
	Timeout    time.Duration `mapstructure:"timeout"`
	RetryCount int           `mapstructure:"retry_count"`
}

type AuthConfig struct {
	JWTSecret  string        `mapstructure:"jwt_secret"`
	TokenTTL   time.Duration `mapstructure:"token_ttl"`
	BcryptCost int           `mapstructure:"bcrypt_cost"`
}

type GraphQLConfig struct {
	Path string `mapstructure:"path"`
}

// AuditConfig 票数核对任务配置
type AuditConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.mode", "release")
	v.SetDefault("store.backend", "mysql")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("mysql.master", "")
	v.SetDefault("mysql.slave", "")
	v.SetDefault("mysql.max_open_conns", 20)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.timeout", 2*time.Second)
	v.SetDefault("redis.cache_ttl", time.Minute)
	v.SetDefault("kafka.topic", "onevote.votes")
	v.SetDefault("kafka.group_id", "onevote-audit")
	v.SetDefault("etcd.dial_timeout", 5*time.Second)
	v.SetDefault("lock.backend", "none")
	v.SetDefault("lock.timeout", 10*time.Second)
	v.SetDefault("lock.retry_count", 3)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", 30000*time.Second)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("graphql.path", "/graphql")
	v.SetDefault("audit.interval", time.Minute)
}

// LoadConfig 加载配置文件
// 先读取.env，再读取YAML配置，环境变量(ONEVOTE_前缀)优先级最高
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取.env文件失败: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret 未设置")
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("auth.token_ttl 必须大于0")
	}

	switch c.Store.Backend {
	case "memory":
	case "mysql":
		if c.MySQL.Master == "" {
			return errors.New("mysql.master 未设置")
		}
	default:
		return fmt.Errorf("未知的存储后端: %q", c.Store.Backend)
	}

	switch c.Lock.Backend {
	case "none":
	case "etcd":
		if len(c.ETCD.Endpoints) == 0 {
			return errors.New("etcd.endpoints 未设置")
		}
	case "redis":
		if len(c.Redis.LockAddresses) == 0 {
			return errors.New("redis.lock_addresses 未设置")
		}
	default:
		return fmt.Errorf("未知的锁后端: %q", c.Lock.Backend)
	}

	if c.Kafka.Enabled && (len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "") {
		return errors.New("kafka已启用但未配置brokers或topic")
	}

	return nil
}
