package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig          `mapstructure:"server"`
	Database   DatabaseConfig        `mapstructure:"database"`
	Redis      RedisConfig           `mapstructure:"redis"`
	JWT        JWTConfig             `mapstructure:"jwt"`
	CORS       CORSConfig            `mapstructure:"cors"`
	Billing    BillingConfig         `mapstructure:"billing"`
	Tiers      map[string]TierConfig `mapstructure:"tiers"`
	Features   []FeatureConfig       `mapstructure:"features"`
	Companions []CompanionSeed       `mapstructure:"companions"`
	AntiAbuse  AntiAbuseConfig       `mapstructure:"anti_abuse"`
	Queue      QueueConfig           `mapstructure:"queue"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type BillingConfig struct {
	WebhookSecret    string      `mapstructure:"webhook_secret"`
	GracePeriodDays  int         `mapstructure:"grace_period_days"` // past_due 宽限期（天）
	SignupBonus      int         `mapstructure:"signup_bonus"`      // 注册赠送积分（受防滥用门控）
	MonthlyCycleDays int         `mapstructure:"monthly_cycle_days"`
	Trial            TrialConfig `mapstructure:"trial"`
}

type TrialConfig struct {
	DurationHours  int  `mapstructure:"duration_hours"`  // 试用时长（小时）
	Credits        int  `mapstructure:"credits"`         // 试用赠送积分
	RevokeLeftover bool `mapstructure:"revoke_leftover"` // 到期后是否回收剩余试用积分
}

type TierConfig struct {
	MonthlyCredits int            `mapstructure:"monthly_credits"` // 每月积分额度（不滚存）
	Price          float64        `mapstructure:"price"`
	FeatureLimits  map[string]int `mapstructure:"feature_limits"` // 功能 -> 每日次数上限，0 表示不限
}

type FeatureConfig struct {
	Name string `mapstructure:"name"`
	Cost int    `mapstructure:"cost"` // 单次调用消耗积分
}

type CompanionSeed struct {
	Name         string `mapstructure:"name"`
	Tagline      string `mapstructure:"tagline"`
	RequiredPlan string `mapstructure:"required_plan"`
	SortOrder    int    `mapstructure:"sort_order"`
}

type AntiAbuseConfig struct {
	MaxGrantsPerIP          int `mapstructure:"max_grants_per_ip"`
	MaxGrantsPerFingerprint int `mapstructure:"max_grants_per_fingerprint"`
}

type QueueConfig struct {
	BillingQueue string `mapstructure:"billing_queue"`
	MaxWorkers   int    `mapstructure:"max_workers"`
}

// FeatureCost 查询功能单次消耗，未配置的功能返回 false
func (c *Config) FeatureCost(name string) (int, bool) {
	for _, f := range c.Features {
		if f.Name == name {
			return f.Cost, true
		}
	}
	return 0, false
}

// FeatureLimit 查询某套餐下功能的每日上限，0 表示不限
func (c *Config) FeatureLimit(plan, feature string) int {
	tier, ok := c.Tiers[plan]
	if !ok {
		return 0
	}
	return tier.FeatureLimits[feature]
}

// MonthlyCredits 查询某套餐的每月积分额度
func (c *Config) MonthlyCredits(plan string) int {
	tier, ok := c.Tiers[plan]
	if !ok {
		return 0
	}
	return tier.MonthlyCredits
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	// 检查 config.local.yaml 是否存在
	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
