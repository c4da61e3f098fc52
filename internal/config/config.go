package config

import (
	"log"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	RedemptionResult string `mapstructure:"redemption_result"`
	SettlementResult string `mapstructure:"settlement_result"`
}

type BusinessConfig struct {
	TokenTTLMinutes            int    `mapstructure:"token_ttl_minutes"`             // 令牌默认有效期（政策表缺省时的兜底值）
	EventCouponGovernmentRatio int    `mapstructure:"event_coupon_government_ratio"` // 政策表初始化用的默认补贴比例
	MaxRetryCount              int    `mapstructure:"max_retry_count"`               // 发件箱最大重试次数
	RedeemMaxRetries           int    `mapstructure:"redeem_max_retries"`            // 乐观锁冲突时核销事务的内部重试次数
	QRSigningSecret            string `mapstructure:"qr_signing_secret"`             // 二维码载荷 HMAC 签名密钥
	SweepIntervalSeconds       int    `mapstructure:"sweep_interval_seconds"`        // 过期令牌清理间隔
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
