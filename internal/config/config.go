package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Config 描述了编排核心在启动阶段需要加载的全部配置。
type Config struct {
	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	LLM       LLMConfig       `json:"llm"`
	Web3      Web3Config      `json:"web3"`
	Planner   PlannerConfig   `json:"planner"`
	Intel     IntelConfig     `json:"intel"`
	Licensing LicensingConfig `json:"licensing"`
	RabbitMQ  RabbitMQConfig  `json:"rabbitmq"`
	Alerting  AlertingConfig  `json:"alerting"`
	Logging   LoggingConfig   `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// StorageConfig 统一描述任务与情报存储后端。
type StorageConfig struct {
	TaskStore  TaskStoreConfig  `json:"task_store"`
	IntelStore IntelStoreConfig `json:"intel_store"`
}

// TaskStoreConfig 选择任务仓储实现：memory 或 mysql。
type TaskStoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// IntelStoreConfig 选择情报存储实现：memory 或 redis。
type IntelStoreConfig struct {
	Driver    string `json:"driver"`
	Address   string `json:"address"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	Namespace string `json:"namespace"`
}

// LLMConfig 用于配置大模型推理的调用方式。
type LLMConfig struct {
	Provider string `json:"provider"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url"`
	Model    string `json:"model"`
}

// Web3Config 包含访问区块链节点所需的信息。
type Web3Config struct {
	Chain      string `json:"chain"`
	ChainsFile string `json:"chains_file"`
	PrivateKey string `json:"private_key"`
	Address    string `json:"address"`
}

// PlannerConfig 描述交易规划服务的接入信息。
type PlannerConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// IntelConfig 描述市场情报数据源的接入信息。
type IntelConfig struct {
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// LicensingConfig 选择许可协作实现：memory 或 registry。
type LicensingConfig struct {
	Driver  string `json:"driver"`
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// RabbitMQConfig 描述广播事件外发的 RabbitMQ 接入信息。
type RabbitMQConfig struct {
	Enabled  bool   `json:"enabled"`
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

// AlertingConfig 控制智能体错误的外发告警。
type AlertingConfig struct {
	Enabled         bool   `json:"enabled"`
	SlackWebhookURL string `json:"slack_webhook_url"`
	SlackChannel    string `json:"slack_channel"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// HTTPTimeout 是外部 HTTP 依赖的统一超时。
const HTTPTimeout = 30 * time.Second

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Storage.TaskStore.Driver == "" {
		c.Storage.TaskStore.Driver = "memory"
	}
	if c.Storage.IntelStore.Driver == "" {
		c.Storage.IntelStore.Driver = "memory"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "openai"
	}

	if c.Web3.Chain == "" {
		c.Web3.Chain = "ethereum"
	}
	if c.Web3.ChainsFile == "" {
		c.Web3.ChainsFile = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Web3.ChainsFile) {
		c.Web3.ChainsFile = filepath.Join(baseDir, c.Web3.ChainsFile)
	}

	if c.Licensing.Driver == "" {
		c.Licensing.Driver = "memory"
	}

	if c.RabbitMQ.Exchange == "" {
		c.RabbitMQ.Exchange = "ava.events"
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}
