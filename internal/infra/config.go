package infra

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"hliquity_mirror/internal/domain"
	"hliquity_mirror/pkg/quant"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultUserAgent identifies the mirror to snapshot providers
	DefaultUserAgent = "hliquity-mirror/1.0"
)

// Deployment는 체인별 프로토콜 상수를 담습니다.
type Deployment struct {
	ChainID   uint64         `yaml:"chain_id" toml:"chain_id"`
	Overrides ParamOverrides `yaml:"params" toml:"params"`

	// Params is Overrides resolved against domain.DefaultParams by LoadConfig.
	Params domain.Params `yaml:"-" toml:"-"`
}

// ParamOverrides는 설정 파일에 명시된 상수만 담습니다. nil이면 기본값을 사용합니다.
type ParamOverrides struct {
	MinimumCollateralRatio  *quant.Decimal `yaml:"minimum_collateral_ratio" toml:"minimum_collateral_ratio"`
	CriticalCollateralRatio *quant.Decimal `yaml:"critical_collateral_ratio" toml:"critical_collateral_ratio"`
	LiquidationReserve      *quant.Decimal `yaml:"liquidation_reserve" toml:"liquidation_reserve"`
	MinimumNetDebt          *quant.Decimal `yaml:"minimum_net_debt" toml:"minimum_net_debt"`
	MinimumBorrowingRate    *quant.Decimal `yaml:"minimum_borrowing_rate" toml:"minimum_borrowing_rate"`
	MaximumBorrowingRate    *quant.Decimal `yaml:"maximum_borrowing_rate" toml:"maximum_borrowing_rate"`
	MinimumRedemptionRate   *quant.Decimal `yaml:"minimum_redemption_rate" toml:"minimum_redemption_rate"`
	MinuteDecayFactor       *quant.Decimal `yaml:"minute_decay_factor" toml:"minute_decay_factor"`
	Beta                    *quant.Decimal `yaml:"beta" toml:"beta"`
}

// Resolve fills every constant the file left out from DefaultParams.
// An explicit zero is kept.
func (o ParamOverrides) Resolve() domain.Params {
	p := domain.DefaultParams()
	set := func(dst *quant.Decimal, v *quant.Decimal) {
		if v != nil {
			*dst = *v
		}
	}
	set(&p.MinimumCollateralRatio, o.MinimumCollateralRatio)
	set(&p.CriticalCollateralRatio, o.CriticalCollateralRatio)
	set(&p.LiquidationReserve, o.LiquidationReserve)
	set(&p.MinimumNetDebt, o.MinimumNetDebt)
	set(&p.MinimumBorrowingRate, o.MinimumBorrowingRate)
	set(&p.MaximumBorrowingRate, o.MaximumBorrowingRate)
	set(&p.MinimumRedemptionRate, o.MinimumRedemptionRate)
	set(&p.MinuteDecayFactor, o.MinuteDecayFactor)
	set(&p.Beta, o.Beta)
	return p
}

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 배포 관련 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name" toml:"name"`
		Version string `yaml:"version" toml:"version"`
	} `yaml:"app" toml:"app"`

	// Chain selects the active entry of Deployments.
	Chain       string                `yaml:"chain" toml:"chain"`
	Deployments map[string]Deployment `yaml:"deployments" toml:"deployments"`

	Source struct {
		URL            string `yaml:"url" toml:"url"`
		Account        string `yaml:"account" toml:"account"`
		Frontend       string `yaml:"frontend" toml:"frontend"`
		PollIntervalMS int    `yaml:"poll_interval_ms" toml:"poll_interval_ms"`
		TimeoutSec     int    `yaml:"timeout_sec" toml:"timeout_sec"`
		MaxRetries     int    `yaml:"max_retries" toml:"max_retries"`

		// MaxRequestsPerSec caps outbound requests including retries. Zero means unlimited.
		MaxRequestsPerSec float64 `yaml:"max_requests_per_sec" toml:"max_requests_per_sec"`
	} `yaml:"source" toml:"source"`

	Engine struct {
		InboxSize          int    `yaml:"inbox_size" toml:"inbox_size"`
		RefreshIntervalSec int    `yaml:"refresh_interval_sec" toml:"refresh_interval_sec"`
		DumpPath           string `yaml:"dump_path" toml:"dump_path"`
	} `yaml:"engine" toml:"engine"`

	Journal struct {
		Enabled bool   `yaml:"enabled" toml:"enabled"`
		Path    string `yaml:"path" toml:"path"`
		// RetentionHours: 이 시간보다 오래된 변경 기록은 삭제됩니다. 0이면 영구 보관.
		RetentionHours int `yaml:"retention_hours" toml:"retention_hours"`
	} `yaml:"journal" toml:"journal"`

	// Cache는 최신 상태를 Redis에 미러링합니다 (선택 사항).
	Cache struct {
		Enabled   bool   `yaml:"enabled" toml:"enabled"`
		URL       string `yaml:"url" toml:"url"`
		KeyPrefix string `yaml:"key_prefix" toml:"key_prefix"`
		TTLSec    int    `yaml:"ttl_sec" toml:"ttl_sec"`
	} `yaml:"cache" toml:"cache"`

	HTTP struct {
		Addr string `yaml:"addr" toml:"addr"`
	} `yaml:"http" toml:"http"`

	Logging struct {
		Level string `yaml:"level" toml:"level"`
		File  string `yaml:"file" toml:"file"`
	} `yaml:"logging" toml:"logging"`
}

// LoadConfig는 설정 파일을 읽고 파싱합니다. 확장자가 .toml이면 TOML, 그 외에는 YAML입니다.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	// 환경 변수 오버라이드 지원 (기본값보다 먼저 적용해야 암묵적 mainnet 배포가 생성됩니다)
	overrideWithEnv(&cfg)

	applyDefaults(&cfg)

	// 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// ActiveDeployment returns the deployment selected by Chain.
func (c *Config) ActiveDeployment() (Deployment, error) {
	d, ok := c.Deployments[c.Chain]
	if !ok {
		return Deployment{}, &domain.ConfigError{Field: "chain", Err: fmt.Errorf("no deployment named %q", c.Chain)}
	}
	return d, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	d, err := c.ActiveDeployment()
	if err != nil {
		return err
	}
	if err := d.Params.Validate(); err != nil {
		return fmt.Errorf("deployment %s: %w", c.Chain, err)
	}

	if c.Source.URL == "" || (!strings.HasPrefix(c.Source.URL, "http://") && !strings.HasPrefix(c.Source.URL, "https://")) {
		return &domain.ConfigError{Field: "source.url", Err: fmt.Errorf("invalid snapshot source URL: %q", c.Source.URL)}
	}
	if c.Source.PollIntervalMS <= 0 {
		return &domain.ConfigError{Field: "source.poll_interval_ms", Err: errors.New("must be positive")}
	}
	if c.Engine.InboxSize <= 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("must be positive")}
	}
	if c.Journal.Enabled && c.Journal.Path == "" {
		return &domain.ConfigError{Field: "journal.path", Err: errors.New("required when the journal is enabled")}
	}

	if c.Journal.RetentionHours < 0 {
		return &domain.ConfigError{Field: "journal.retention_hours", Err: errors.New("must not be negative")}
	}
	if c.Source.MaxRequestsPerSec < 0 {
		return &domain.ConfigError{Field: "source.max_requests_per_sec", Err: errors.New("must not be negative")}
	}
	if c.Cache.Enabled && !strings.HasPrefix(c.Cache.URL, "redis://") && !strings.HasPrefix(c.Cache.URL, "rediss://") {
		return &domain.ConfigError{Field: "cache.url", Err: fmt.Errorf("invalid redis URL: %q", c.Cache.URL)}
	}

	return nil
}

func applyDefaults(cfg *Config) {
	if cfg.Chain == "" {
		cfg.Chain = "mainnet"
	}
	if cfg.Deployments == nil {
		cfg.Deployments = map[string]Deployment{}
	}
	if _, ok := cfg.Deployments[cfg.Chain]; !ok && cfg.Chain == "mainnet" {
		cfg.Deployments[cfg.Chain] = Deployment{}
	}
	for name, d := range cfg.Deployments {
		d.Params = d.Overrides.Resolve()
		cfg.Deployments[name] = d
	}

	if cfg.Source.PollIntervalMS == 0 {
		cfg.Source.PollIntervalMS = 4000
	}
	if cfg.Source.TimeoutSec == 0 {
		cfg.Source.TimeoutSec = 10
	}
	if cfg.Source.MaxRetries == 0 {
		cfg.Source.MaxRetries = 3
	}
	if cfg.Engine.InboxSize == 0 {
		cfg.Engine.InboxSize = 256
	}
	if cfg.Engine.RefreshIntervalSec == 0 {
		cfg.Engine.RefreshIntervalSec = 60
	}
	if cfg.Engine.DumpPath == "" {
		cfg.Engine.DumpPath = "panic_dump.json"
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "hliquity"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join("logs", "app.log")
	}
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) {
	if chain := os.Getenv("MIRROR_CHAIN"); chain != "" {
		cfg.Chain = chain
	}
	if url := os.Getenv("MIRROR_SOURCE_URL"); url != "" {
		cfg.Source.URL = url
	}
	if account := os.Getenv("MIRROR_ACCOUNT"); account != "" {
		cfg.Source.Account = account
	}
	if url := os.Getenv("MIRROR_CACHE_URL"); url != "" {
		cfg.Cache.URL = url
	}
	if addr := os.Getenv("MIRROR_HTTP_ADDR"); addr != "" {
		cfg.HTTP.Addr = addr
	}
	if level := os.Getenv("MIRROR_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}
	if ms := os.Getenv("MIRROR_POLL_INTERVAL_MS"); ms != "" {
		if v, err := strconv.Atoi(ms); err == nil {
			cfg.Source.PollIntervalMS = v
		}
	}
}
