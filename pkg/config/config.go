package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	xutil "FinRank/pkg/util"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Host            string        `yaml:"host"`
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		CORS            bool          `yaml:"cors"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
		Output string `yaml:"output"`
	} `yaml:"log"`
	Store struct {
		Driver string `yaml:"driver"` // redis or sqlite
		Redis  struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Retry struct {
			Max        int           `yaml:"max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
		} `yaml:"retry"`
	} `yaml:"store"`
	Intake struct {
		Type          string        `yaml:"type"` // kafka or redis
		OutcomesTopic string        `yaml:"outcomes_topic"`
		Workers       int           `yaml:"workers"`
		RetryLimit    int           `yaml:"retry_limit"`
		RetryDelay    time.Duration `yaml:"retry_delay"`
	} `yaml:"intake"`
	Kafka struct {
		Brokers       []string `yaml:"brokers"`
		IntentsTopic  string   `yaml:"intents_topic"`
		RankingsTopic string   `yaml:"rankings_topic"`
		AuditTopic    string   `yaml:"audit_topic"`
		RequiredAcks  int      `yaml:"required_acks"`
		Compression   string   `yaml:"compression"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts"`
			Linger       time.Duration `yaml:"linger"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout"`
			ReadTimeout  time.Duration `yaml:"read_timeout"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id"`
			Workers    int           `yaml:"workers"`
			BufferSize int           `yaml:"buffer_size"`
			RetryMax   int           `yaml:"retry_max"`
			BackoffMin time.Duration `yaml:"backoff_min"`
			BackoffMax time.Duration `yaml:"backoff_max"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port"`
		Database         string        `yaml:"database"`
		User             string        `yaml:"user"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout"`
		ReadTimeout      time.Duration `yaml:"read_timeout"`
		WriteTimeout     time.Duration `yaml:"write_timeout"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time"`
	} `yaml:"clickhouse"`
	MarketData struct {
		APIKey         string        `yaml:"api_key"`
		BaseURL        string        `yaml:"base_url"`
		WebSocketURL   string        `yaml:"websocket_url"`
		Symbols        []string      `yaml:"symbols"`
		Timeframe      string        `yaml:"timeframe"`
		HistoryBars    int           `yaml:"history_bars"`
		RequestTimeout time.Duration `yaml:"request_timeout"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		PingInterval   time.Duration `yaml:"ping_interval"`
	} `yaml:"marketdata"`
	News struct {
		Enabled        bool          `yaml:"enabled"`
		MarketAuxKey   string        `yaml:"marketaux_api_key"`
		NewsDataKey    string        `yaml:"newsdata_api_key"`
		FetchTimeout   time.Duration `yaml:"fetch_timeout"`
		LLMBaseURL     string        `yaml:"llm_base_url"`
		LLMAPIKey      string        `yaml:"llm_api_key"`
		LLMModel       string        `yaml:"llm_model"`
		LLMTimeout     time.Duration `yaml:"llm_timeout"`
		CacheTTL       time.Duration `yaml:"cache_ttl"`
		HeadlinesLimit int           `yaml:"headlines_limit"`
	} `yaml:"news"`
	Engine struct {
		Workers             int           `yaml:"workers"`
		EvalTimeout         time.Duration `yaml:"eval_timeout"`
		TimeDeltaMode       string        `yaml:"time_delta_mode"` // additive, multiplicative, balanced
		TimeDeltaIncrement  float64       `yaml:"time_delta_increment"`
		TimeDeltaMultiplier float64       `yaml:"time_delta_multiplier"`
		TimeDeltaBalance    float64       `yaml:"time_delta_balance"`
		InitialScore        float64       `yaml:"initial_score"`
		SuggestionLimit     int           `yaml:"suggestion_limit"`
		ProfitThreshold1    float64       `yaml:"profit_threshold_1"`
		ProfitThreshold2    float64       `yaml:"profit_threshold_2"`
		ProfitMultiplier1   float64       `yaml:"profit_multiplier_1"`
		ProfitMultiplier2   float64       `yaml:"profit_multiplier_2"`
		LossThreshold1      float64       `yaml:"loss_threshold_1"`
		LossThreshold2      float64       `yaml:"loss_threshold_2"`
		LossMultiplier1     float64       `yaml:"loss_multiplier_1"`
		LossMultiplier2     float64       `yaml:"loss_multiplier_2"`
		SimInitialCash      float64       `yaml:"sim_initial_cash"`
		SimTradeFraction    float64       `yaml:"sim_trade_fraction"`
		RankCoefficients    []float64     `yaml:"rank_coefficients"`
	} `yaml:"engine"`
	Portfolio struct {
		LiquidityLimit       float64 `yaml:"liquidity_limit"`
		AssetAllocationLimit float64 `yaml:"asset_allocation_limit"`
		StopLoss             float64 `yaml:"stop_loss"`
		TakeProfit           float64 `yaml:"take_profit"`
		AllowPartial         bool    `yaml:"allow_partial"`
		BaseOrderValue       float64 `yaml:"base_order_value"`
		ScoreNorm            float64 `yaml:"score_norm"`
		LotStep              float64 `yaml:"lot_step"`
	} `yaml:"portfolio"`
	Scheduler struct {
		Enabled bool   `yaml:"enabled"`
		Cron    string `yaml:"cron"`
	} `yaml:"scheduler"`
	Broker struct {
		Mode        string  `yaml:"mode"` // paper or external
		InitialCash float64 `yaml:"initial_cash"`
	} `yaml:"broker"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Validate required fields
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
// A .env file in the working directory is read first when present.
func LoadWithEnv(path string) (*Config, error) {
	_ = godotenv.Load()

	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	// Override with environment variables
	c.Server.Port = xutil.ParseIntDefault(os.Getenv("SERVER_PORT"), c.Server.Port)
	if v := os.Getenv("MARKETDATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Store.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := os.Getenv("MARKETAUX_API_KEY"); v != "" {
		c.News.MarketAuxKey = v
	}
	if v := os.Getenv("NEWSDATA_API_KEY"); v != "" {
		c.News.NewsDataKey = v
	}
	if v := os.Getenv("DEEPSEEK_API_KEY"); v != "" {
		c.News.LLMAPIKey = v
	}

	return c, nil
}

// Validate checks if the configuration is valid. Out-of-range engine
// values fail here rather than at first use.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Store.Driver != "redis" && c.Store.Driver != "sqlite" {
		return fmt.Errorf("store.driver must be 'redis' or 'sqlite', got '%s'", c.Store.Driver)
	}
	if c.Intake.Type != "" && c.Intake.Type != "kafka" && c.Intake.Type != "redis" {
		return fmt.Errorf("intake.type must be 'kafka' or 'redis', got '%s'", c.Intake.Type)
	}
	if len(c.MarketData.Symbols) == 0 {
		return fmt.Errorf("marketdata.symbols cannot be empty")
	}
	if c.Broker.Mode != "" && c.Broker.Mode != "paper" && c.Broker.Mode != "external" {
		return fmt.Errorf("broker.mode must be 'paper' or 'external', got '%s'", c.Broker.Mode)
	}
	if err := c.validateEngine(); err != nil {
		return err
	}
	return c.validatePortfolio()
}

func (c *Config) validateEngine() error {
	e := &c.Engine
	switch e.TimeDeltaMode {
	case "additive", "multiplicative", "balanced":
	default:
		return fmt.Errorf("engine.time_delta_mode must be additive, multiplicative or balanced, got '%s'", e.TimeDeltaMode)
	}
	if e.TimeDeltaMode == "additive" || e.TimeDeltaMode == "balanced" {
		if e.TimeDeltaIncrement <= 0 {
			return fmt.Errorf("engine.time_delta_increment must be > 0, got %v", e.TimeDeltaIncrement)
		}
	}
	if e.TimeDeltaMode == "multiplicative" && e.TimeDeltaMultiplier <= 1 {
		return fmt.Errorf("engine.time_delta_multiplier must be > 1, got %v", e.TimeDeltaMultiplier)
	}
	if e.TimeDeltaMode == "balanced" && (e.TimeDeltaBalance <= 0 || e.TimeDeltaBalance >= 1) {
		return fmt.Errorf("engine.time_delta_balance must be in (0,1), got %v", e.TimeDeltaBalance)
	}
	if e.SuggestionLimit <= 0 {
		return fmt.Errorf("engine.suggestion_limit must be > 0, got %d", e.SuggestionLimit)
	}
	if e.ProfitThreshold1 <= 0 || e.ProfitThreshold2 <= e.ProfitThreshold1 {
		return fmt.Errorf("engine profit thresholds must satisfy 0 < t1 < t2, got %v, %v", e.ProfitThreshold1, e.ProfitThreshold2)
	}
	if e.LossThreshold1 <= 0 || e.LossThreshold2 <= e.LossThreshold1 {
		return fmt.Errorf("engine loss thresholds must satisfy 0 < t1 < t2, got %v, %v", e.LossThreshold1, e.LossThreshold2)
	}
	for name, m := range map[string]float64{
		"profit_multiplier_1": e.ProfitMultiplier1,
		"profit_multiplier_2": e.ProfitMultiplier2,
		"loss_multiplier_1":   e.LossMultiplier1,
		"loss_multiplier_2":   e.LossMultiplier2,
	} {
		if m <= 0 {
			return fmt.Errorf("engine.%s must be > 0, got %v", name, m)
		}
		// In multiplicative mode the effective factor is multiplier*tier
		// and must grow a correct call.
		if e.TimeDeltaMode == "multiplicative" && e.TimeDeltaMultiplier*m <= 1 {
			return fmt.Errorf("engine.%s: time_delta_multiplier*%v must be > 1", name, m)
		}
	}
	if e.SimInitialCash < 0 {
		return fmt.Errorf("engine.sim_initial_cash cannot be negative, got %v", e.SimInitialCash)
	}
	if e.SimTradeFraction < 0 || e.SimTradeFraction > 1 {
		return fmt.Errorf("engine.sim_trade_fraction must be in [0,1], got %v", e.SimTradeFraction)
	}
	if len(e.RankCoefficients) == 0 {
		return fmt.Errorf("engine.rank_coefficients cannot be empty")
	}
	prev := 1.0
	for i, coeff := range e.RankCoefficients {
		if coeff <= 0 || coeff > 1 {
			return fmt.Errorf("engine.rank_coefficients[%d] must be in (0,1], got %v", i, coeff)
		}
		if coeff > prev {
			return fmt.Errorf("engine.rank_coefficients must be non-increasing, index %d (%v) exceeds %v", i, coeff, prev)
		}
		prev = coeff
	}
	return nil
}

func (c *Config) validatePortfolio() error {
	p := &c.Portfolio
	if p.LiquidityLimit < 0 {
		return fmt.Errorf("portfolio.liquidity_limit cannot be negative, got %v", p.LiquidityLimit)
	}
	if p.AssetAllocationLimit <= 0 || p.AssetAllocationLimit > 1 {
		return fmt.Errorf("portfolio.asset_allocation_limit must be in (0,1], got %v", p.AssetAllocationLimit)
	}
	if p.StopLoss <= 0 || p.TakeProfit <= 0 {
		return fmt.Errorf("portfolio stop_loss and take_profit must be > 0, got %v, %v", p.StopLoss, p.TakeProfit)
	}
	if p.BaseOrderValue <= 0 {
		return fmt.Errorf("portfolio.base_order_value must be > 0, got %v", p.BaseOrderValue)
	}
	if p.LotStep < 0 {
		return fmt.Errorf("portfolio.lot_step cannot be negative, got %v", p.LotStep)
	}
	return nil
}
