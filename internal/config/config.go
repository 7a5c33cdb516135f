package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ServerConfig 定义 HTTP 服务器的监听配置参数
type ServerConfig struct {
	Host string // 监听地址，默认 "0.0.0.0"
	Port int    // 监听端口，默认 8080
}

// MailboxConfig 定义邮箱分配的核心业务配置
type MailboxConfig struct {
	AllowedDomains []string      // 允许创建邮箱的域名列表
	DefaultTTL     time.Duration // 游客邮箱默认生存时间
	DefaultQuota   int           // 新用户默认邮箱配额
}

// VerificationConfig 定义验证码生成配置
type VerificationConfig struct {
	Secret string // 参与验证码哈希的固定密钥
	Mode   string // 算法模式: "hmac"（默认）或 "legacy"
}

// TokenConfig 定义 API 令牌配置
type TokenConfig struct {
	MaxUsage int64 // 单令牌调用次数上限，0 表示不限
}

// BillingConfig 定义外部账单门户的访问配置
type BillingConfig struct {
	BaseURL      string        // 门户 API 基础地址
	UserAgent    string        // 请求时携带的客户端标识
	RequestDelay time.Duration // 同步任务相邻邮箱之间的固定间隔
	SyncInterval time.Duration // 调度器触发全量同步的周期
	HTTPTimeout  time.Duration // 单次门户请求超时
}

// AutomationConfig 定义自动化端点的鉴权配置
type AutomationConfig struct {
	Secret      string // Bearer 口令，调度器之外的调用方必须携带
	SchedulerUA string // 可信内部调度器的 User-Agent 标识，匹配则免鉴权
}

// LogConfig 定义日志系统配置
type LogConfig struct {
	Level       string // 日志级别: debug, info, warn, error
	Development bool   // 开发模式: 启用彩色输出和详细堆栈信息
}

// DatabaseConfig 定义数据库连接配置（支持 MySQL 和 PostgreSQL）
type DatabaseConfig struct {
	Type            string        // 数据库类型: "mysql" 或 "postgres"，留空使用内存存储
	DSN             string        // 数据库连接字符串
	MaxOpenConns    int           // 最大打开连接数，默认 25
	MaxIdleConns    int           // 最大空闲连接数，默认 5
	ConnMaxLifetime time.Duration // 连接最大生命周期，默认 5 分钟
}

// RedisConfig 定义 Redis 缓存服务配置
type RedisConfig struct {
	Address  string // Redis 服务地址，留空禁用缓存
	Password string // Redis 认证密码，留空表示无密码
	DB       int    // Redis 数据库编号，默认 0
}

// SMTPConfig 定义 SMTP 邮件接收服务器的配置
type SMTPConfig struct {
	BindAddr string // SMTP 服务监听地址，格式 "host:port"，默认 ":25"
	Domain   string // SMTP 服务器域名，用于 HELO/EHLO 响应
}

// Config 是系统核心配置的根结构体，包含所有子系统的配置
type Config struct {
	Server       ServerConfig
	Mailbox      MailboxConfig
	Verification VerificationConfig
	Token        TokenConfig
	Billing      BillingConfig
	Automation   AutomationConfig
	Log          LogConfig
	Database     DatabaseConfig
	Redis        RedisConfig
	SMTP         SMTPConfig
}

// Load 从环境变量和 .env 文件加载系统配置
//
// 配置加载优先级（从高到低）：
//  1. 系统环境变量（最高优先级）
//  2. .env 文件（如果存在）
//  3. 默认值
//
// 环境变量前缀: TEMPBOX_
// 例如: TEMPBOX_SERVER_HOST, TEMPBOX_AUTOMATION_SECRET
func Load() (*Config, error) {
	// 尝试加载 .env 文件（静默失败，因为 .env 文件是可选的）
	loadEnvFile()

	viper.SetEnvPrefix("tempbox")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("mailbox.allowed_domains", "temp.box")
	viper.SetDefault("mailbox.default_ttl", "24h")
	viper.SetDefault("mailbox.default_quota", 5)
	viper.SetDefault("verification.secret", "change-me-in-production")
	viper.SetDefault("verification.mode", "hmac")
	viper.SetDefault("token.max_usage", 0)
	viper.SetDefault("billing.base_url", "")
	viper.SetDefault("billing.user_agent", "tempbox-credit-sync/1.0")
	viper.SetDefault("billing.request_delay", "2s")
	viper.SetDefault("billing.sync_interval", "6h")
	viper.SetDefault("billing.http_timeout", "15s")
	viper.SetDefault("automation.secret", "change-me-in-production")
	viper.SetDefault("automation.scheduler_ua", "tempbox-scheduler")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.development", false)
	viper.SetDefault("database.type", "") // 默认为空，使用内存存储
	viper.SetDefault("database.dsn", "")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", "5m")
	viper.SetDefault("redis.address", "")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("smtp.bind_addr", ":25")
	viper.SetDefault("smtp.domain", "temp.box")

	domainList := parseDomains(viper.GetString("mailbox.allowed_domains"))
	if len(domainList) == 0 {
		return nil, fmt.Errorf("mailbox.allowed_domains must not be empty")
	}

	defaultTTL, err := time.ParseDuration(viper.GetString("mailbox.default_ttl"))
	if err != nil {
		return nil, fmt.Errorf("invalid mailbox.default_ttl: %w", err)
	}

	defaultQuota := viper.GetInt("mailbox.default_quota")
	if defaultQuota < 0 {
		return nil, fmt.Errorf("mailbox.default_quota must not be negative")
	}

	verifySecret := viper.GetString("verification.secret")
	if verifySecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: verification secret cannot be the default value. Please set TEMPBOX_VERIFICATION_SECRET environment variable")
	}

	verifyMode := strings.ToLower(viper.GetString("verification.mode"))
	if verifyMode != "hmac" && verifyMode != "legacy" {
		return nil, fmt.Errorf("invalid verification.mode: %q (supported: hmac, legacy)", verifyMode)
	}

	automationSecret := viper.GetString("automation.secret")
	if automationSecret == "change-me-in-production" {
		return nil, fmt.Errorf("SECURITY ERROR: automation secret cannot be the default value. Please set TEMPBOX_AUTOMATION_SECRET environment variable")
	}

	requestDelay, err := time.ParseDuration(viper.GetString("billing.request_delay"))
	if err != nil {
		return nil, fmt.Errorf("invalid billing.request_delay: %w", err)
	}

	syncInterval, err := time.ParseDuration(viper.GetString("billing.sync_interval"))
	if err != nil {
		return nil, fmt.Errorf("invalid billing.sync_interval: %w", err)
	}

	httpTimeout, err := time.ParseDuration(viper.GetString("billing.http_timeout"))
	if err != nil {
		httpTimeout = 15 * time.Second
	}

	connMaxLifetime, err := time.ParseDuration(viper.GetString("database.conn_max_lifetime"))
	if err != nil {
		connMaxLifetime = 5 * time.Minute
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: viper.GetString("server.host"),
			Port: viper.GetInt("server.port"),
		},
		Mailbox: MailboxConfig{
			AllowedDomains: domainList,
			DefaultTTL:     defaultTTL,
			DefaultQuota:   defaultQuota,
		},
		Verification: VerificationConfig{
			Secret: verifySecret,
			Mode:   verifyMode,
		},
		Token: TokenConfig{
			MaxUsage: viper.GetInt64("token.max_usage"),
		},
		Billing: BillingConfig{
			BaseURL:      strings.TrimRight(viper.GetString("billing.base_url"), "/"),
			UserAgent:    viper.GetString("billing.user_agent"),
			RequestDelay: requestDelay,
			SyncInterval: syncInterval,
			HTTPTimeout:  httpTimeout,
		},
		Automation: AutomationConfig{
			Secret:      automationSecret,
			SchedulerUA: viper.GetString("automation.scheduler_ua"),
		},
		Log: LogConfig{
			Level:       viper.GetString("log.level"),
			Development: viper.GetBool("log.development"),
		},
		Database: DatabaseConfig{
			Type:            viper.GetString("database.type"),
			DSN:             viper.GetString("database.dsn"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: connMaxLifetime,
		},
		Redis: RedisConfig{
			Address:  viper.GetString("redis.address"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		SMTP: SMTPConfig{
			BindAddr: viper.GetString("smtp.bind_addr"),
			Domain:   viper.GetString("smtp.domain"),
		},
	}

	return cfg, nil
}

// parseDomains 将逗号分隔的域名字符串解析为小写域名数组
func parseDomains(value string) []string {
	out := parseList(value)
	for i := range out {
		out[i] = strings.ToLower(out[i])
	}
	return out
}

// parseList 将逗号分隔的字符串解析为字符串切片，已去除空白字符
func parseList(value string) []string {
	parts := strings.Split(value, ",")
	items := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}

// loadEnvFile 尝试加载 .env 文件
//
// 加载顺序：当前目录的 .env，然后是父目录的 .env
// （用于从 backend/ 子目录运行的情况）。文件不存在时静默失败。
func loadEnvFile() {
	if err := godotenv.Load(".env"); err == nil {
		return
	}

	parentEnv := filepath.Join("..", ".env")
	if _, err := os.Stat(parentEnv); err == nil {
		_ = godotenv.Load(parentEnv)
	}
}
