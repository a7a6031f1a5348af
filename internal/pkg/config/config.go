package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

var GlobalConfig *Config

// Config 全局配置
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Crypto       CryptoConfig       `mapstructure:"crypto"`
	Log          LogConfig          `mapstructure:"log"`
	Engine       EngineConfig       `mapstructure:"engine"`
	Health       HealthConfig       `mapstructure:"health"`
	Traffic      TrafficConfig      `mapstructure:"traffic"`
	Installer    InstallerConfig    `mapstructure:"installer"`
	Metrics      MetricsConfig      `mapstructure:"metrics"`
	Notification NotificationConfig `mapstructure:"notification"`
	Inventory    InventoryConfig    `mapstructure:"inventory"`
	DB           interface{}        // 数据库连接,运行时注入
}

// ServerConfig 服务配置
type ServerConfig struct {
	Name string `mapstructure:"name"`
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"`
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"` // 秒
	LogLevel        string `mapstructure:"log_level"`         // SQL日志级别: silent/error/warn/info
	AutoMigrate     bool   `mapstructure:"auto_migrate"`      // 启动时自动建表
}

// AuthConfig 认证配置
type AuthConfig struct {
	JWT      JWTConfig       `mapstructure:"jwt"`
	Accounts []AccountConfig `mapstructure:"accounts"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret             string `mapstructure:"secret"`
	AccessTokenExpire  int    `mapstructure:"access_token_expire"`  // 秒
	RefreshTokenExpire int    `mapstructure:"refresh_token_expire"` // 秒
}

// AccountConfig 服务账号配置
// 调用方(CI/运维工具)在配置中声明, 密钥只存bcrypt哈希
type AccountConfig struct {
	Name       string `mapstructure:"name"`
	SecretHash string `mapstructure:"secret_hash"`
	Role       string `mapstructure:"role"` // admin / deployer / viewer
}

// CryptoConfig 加密配置
type CryptoConfig struct {
	AESKey string `mapstructure:"aes_key"` // 32字节, 用于解密配置中的敏感字段
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, console
	Output     string `mapstructure:"output"` // stdout, file
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // MB
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// EngineConfig 编排引擎配置
type EngineConfig struct {
	RequestTimeout  string `mapstructure:"request_timeout"`  // 单次发布请求全局超时
	RollbackTimeout string `mapstructure:"rollback_timeout"` // 回滚阶段预算(不随请求取消)
	DrainGrace      string `mapstructure:"drain_grace"`      // 摘流后等待在途请求结束的时间
	BatchSize       int    `mapstructure:"batch_size"`       // 滚动发布默认批次大小
	StaleRunAfter   string `mapstructure:"stale_run_after"`  // 超过该时长仍running的请求视为孤儿
	StaleRunCron    string `mapstructure:"stale_run_cron"`   // 孤儿请求清理任务
	RetentionDays   int    `mapstructure:"retention_days"`   // 发布记录保留天数, 0不清理
	RetentionCron   string `mapstructure:"retention_cron"`   // 记录清理任务
}

// HealthConfig 健康检查默认配置, 请求可按需覆盖
type HealthConfig struct {
	Scheme           string `mapstructure:"scheme"` // http / https
	Path             string `mapstructure:"path"`
	Port             int    `mapstructure:"port"`              // 0表示复用目标地址中的端口
	Timeout          string `mapstructure:"timeout"`           // 单次探测超时
	Retries          int    `mapstructure:"retries"`           // 失败重试次数
	Backoff          string `mapstructure:"backoff"`           // fixed / exponential
	BackoffBase      string `mapstructure:"backoff_base"`      // 重试间隔基数
	SuccessThreshold int    `mapstructure:"success_threshold"` // 连续成功次数(防抖)
}

// TrafficConfig 流量控制配置
type TrafficConfig struct {
	Driver   string `mapstructure:"driver"`   // nginx / mock
	Endpoint string `mapstructure:"endpoint"` // 反向代理控制API地址
	Upstream string `mapstructure:"upstream"` // 默认upstream名称
	Token    string `mapstructure:"token"`
	Timeout  string `mapstructure:"timeout"`
}

// InstallerConfig 制品安装配置
type InstallerConfig struct {
	Driver            string `mapstructure:"driver"` // ssh / mock
	User              string `mapstructure:"user"`
	Port              int    `mapstructure:"port"`
	PrivateKeyFile    string `mapstructure:"private_key_file"`
	Password          string `mapstructure:"password"`
	PasswordEncrypted string `mapstructure:"password_encrypted"` // AES加密后的密码, 与password二选一
	Command           string `mapstructure:"command"`            // 安装钩子命令, 支持{artifact}/{version}占位
	Timeout           string `mapstructure:"timeout"`
}

// MetricsConfig 金丝雀观察的错误率数据源配置
type MetricsConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Path     string `mapstructure:"path"`
	Token    string `mapstructure:"token"`
	Timeout  string `mapstructure:"timeout"`
	Retries  int    `mapstructure:"retries"`
}

// NotificationConfig 通知配置
type NotificationConfig struct {
	Enabled     bool   `mapstructure:"enabled"`      // 是否启用
	Provider    string `mapstructure:"provider"`     // 通知渠道
	LarkWebhook string `mapstructure:"lark_webhook"` // Lark Webhook
}

// InventoryConfig 目标清单配置
type InventoryConfig struct {
	File     string `mapstructure:"file"`      // targets.yaml路径
	SyncCron string `mapstructure:"sync_cron"` // 定时重新同步
}

// Load 加载配置
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// 设置配置文件路径
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// 读取环境变量
	v.AutomaticEnv()

	// 读取配置文件
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	// 解析配置
	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// 设置全局配置
	GlobalConfig = config

	return config, nil
}

// GetDSN 获取数据库DSN
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.Username,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// ParseDuration 解析时长配置, 解析失败或为空时返回默认值
func ParseDuration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

// GetRequestTimeout 发布请求全局超时
func (c *EngineConfig) GetRequestTimeout() time.Duration {
	return ParseDuration(c.RequestTimeout, 30*time.Minute)
}

// GetRollbackTimeout 回滚阶段预算
func (c *EngineConfig) GetRollbackTimeout() time.Duration {
	return ParseDuration(c.RollbackTimeout, 10*time.Minute)
}

// GetDrainGrace 摘流等待时长
func (c *EngineConfig) GetDrainGrace() time.Duration {
	return ParseDuration(c.DrainGrace, 15*time.Second)
}

// GetBatchSize 滚动发布默认批次
func (c *EngineConfig) GetBatchSize() int {
	if c.BatchSize < 1 {
		return 1
	}
	return c.BatchSize
}

// GetStaleRunAfter 孤儿请求判定时长
func (c *EngineConfig) GetStaleRunAfter() time.Duration {
	return ParseDuration(c.StaleRunAfter, 2*time.Hour)
}
