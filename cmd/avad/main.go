package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"AVA-Chain/internal/agent"
	"AVA-Chain/internal/agent/executor"
	"AVA-Chain/internal/agent/observer"
	"AVA-Chain/internal/agent/taskmanager"
	"AVA-Chain/internal/api"
	"AVA-Chain/internal/bus"
	"AVA-Chain/internal/config"
	"AVA-Chain/internal/license"
	"AVA-Chain/internal/llm"
	"AVA-Chain/internal/llm/openai"
	"AVA-Chain/internal/memory"
	"AVA-Chain/internal/observability/alerting"
	"AVA-Chain/internal/task"
	"AVA-Chain/internal/txplan"
	"AVA-Chain/internal/web3"
	"AVA-Chain/internal/web3/ethereum"
	"AVA-Chain/pkg/logger"
)

// main 是 AVA 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("avad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("AVA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "config.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}); err != nil {
		return err
	}
	defer logger.Sync()

	// 任务仓储。
	taskRepo, err := createTaskRepository(cfg)
	if err != nil {
		return err
	}
	defer taskRepo.Close()

	// 情报存储。
	intelStore, err := createIntelStore(cfg)
	if err != nil {
		return err
	}
	defer intelStore.Close()

	// 许可协作方。
	licenseClient, err := createLicenseClient(cfg)
	if err != nil {
		return err
	}

	// 大模型客户端。LLM 缺席时智能体降级运行。
	llmClient := createLLMClient(cfg)

	// 链上客户端。未配置私钥时执行者只能处理非链上任务。
	chainClient, chainID, err := createChainClient(ctx, cfg)
	if err != nil {
		return err
	}
	if chainClient != nil {
		defer chainClient.Close()
	}

	// 交易规划服务。
	var planner txplan.Planner
	if cfg.Planner.BaseURL != "" {
		planner, err = txplan.NewHTTPClient(txplan.Config{
			BaseURL: cfg.Planner.BaseURL,
			APIKey:  cfg.Planner.APIKey,
			Timeout: config.HTTPTimeout,
		})
		if err != nil {
			return err
		}
	}

	// 市场情报数据源。
	var dataSource observer.DataSource
	if cfg.Intel.BaseURL != "" {
		dataSource, err = observer.NewHTTPDataSource(observer.HTTPDataSourceConfig{
			BaseURL: cfg.Intel.BaseURL,
			APIKey:  cfg.Intel.APIKey,
			Timeout: config.HTTPTimeout,
		})
		if err != nil {
			return err
		}
	}

	// 事件总线与智能体拓扑。
	eventBus := bus.New()

	caps := agent.Capabilities{
		Bus:     eventBus,
		Memory:  intelStore,
		License: licenseClient,
	}

	observerOpts := make([]observer.Option, 0, 2)
	if chainClient != nil {
		observerOpts = append(observerOpts, observer.WithChain(chainClient))
	}
	if dataSource != nil {
		observerOpts = append(observerOpts, observer.WithDataSource(dataSource))
	}
	observerAgent := observer.New(caps, llmClient, observerOpts...)

	manager := taskmanager.New(caps, taskRepo, llmClient)

	executorAgent := executor.New(caps, llmClient, planner, chainClient, executor.Config{
		ChainID: chainID,
		Address: cfg.Web3.Address,
	})

	registry := agent.NewRegistry(eventBus)
	registry.AttachDefault(observerAgent, manager, executorAgent)
	defer registry.Close()

	// 可选的智能体错误告警。
	if cfg.Alerting.Enabled && cfg.Alerting.SlackWebhookURL != "" {
		dispatcher := alerting.NewFanout(&alerting.SlackNotifier{
			Sender:    alerting.NewWebhookSlackSender(cfg.Alerting.SlackWebhookURL),
			ChannelID: cfg.Alerting.SlackChannel,
		})
		detach := alerting.AttachToBus(eventBus, dispatcher)
		defer detach()
	}

	// 可选的 RabbitMQ 广播桥。
	if cfg.RabbitMQ.Enabled {
		bridge, err := bus.NewRabbitMQBridge(bus.RabbitMQBridgeConfig{
			URL:      cfg.RabbitMQ.URL,
			Exchange: cfg.RabbitMQ.Exchange,
		})
		if err != nil {
			return err
		}
		defer bridge.Close()
		bridge.Attach(eventBus,
			bus.ChannelTaskUpdate,
			bus.ChannelAgentMessage,
			bus.ChannelAgentError,
			bus.ChannelAgentAction,
		)
	}

	server := api.NewServer(cfg.Server.Address, manager, taskRepo)
	logger.L().Info("avad 启动", "address", cfg.Server.Address)
	return server.Start(ctx)
}

func createTaskRepository(cfg *config.Config) (task.Repository, error) {
	switch cfg.Storage.TaskStore.Driver {
	case "", "memory":
		return task.NewMemoryRepository(), nil
	case "mysql":
		return task.NewMySQLRepository(cfg.Storage.TaskStore.DSN)
	default:
		return nil, fmt.Errorf("不支持的任务存储驱动: %s", cfg.Storage.TaskStore.Driver)
	}
}

func createIntelStore(cfg *config.Config) (memory.Store, error) {
	switch cfg.Storage.IntelStore.Driver {
	case "", "memory":
		return memory.NewInMemoryStore(), nil
	case "redis":
		return memory.NewRedisStore(memory.RedisConfig{
			Address:   cfg.Storage.IntelStore.Address,
			Password:  cfg.Storage.IntelStore.Password,
			DB:        cfg.Storage.IntelStore.DB,
			Namespace: cfg.Storage.IntelStore.Namespace,
		})
	default:
		return nil, fmt.Errorf("不支持的情报存储驱动: %s", cfg.Storage.IntelStore.Driver)
	}
}

func createLicenseClient(cfg *config.Config) (license.Client, error) {
	switch cfg.Licensing.Driver {
	case "", "memory":
		return license.NewMemoryClient(), nil
	case "registry":
		return license.NewRegistryClient(license.RegistryConfig{
			BaseURL: cfg.Licensing.BaseURL,
			APIKey:  cfg.Licensing.APIKey,
			Timeout: config.HTTPTimeout,
		})
	default:
		return nil, fmt.Errorf("不支持的许可驱动: %s", cfg.Licensing.Driver)
	}
}

func createLLMClient(cfg *config.Config) llm.Client {
	if cfg.LLM.APIKey == "" {
		logger.L().Warn("未配置 LLM API Key，智能体以降级模式运行")
		return nil
	}
	client, err := openai.NewClient(openai.Config{
		APIKey:  cfg.LLM.APIKey,
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
	})
	if err != nil {
		logger.L().Warn("初始化 LLM 客户端失败，智能体以降级模式运行", "error", err.Error())
		return nil
	}
	return client
}

func createChainClient(ctx context.Context, cfg *config.Config) (web3.Client, int64, error) {
	if cfg.Web3.PrivateKey == "" {
		logger.L().Warn("未配置链上私钥，执行者不具备上链能力")
		return nil, 0, nil
	}

	defs, err := web3.LoadChainDefinitions(cfg.Web3.ChainsFile)
	if err != nil {
		return nil, 0, err
	}
	def, ok := defs.Chains[cfg.Web3.Chain]
	if !ok {
		return nil, 0, fmt.Errorf("链配置中不存在 %s", cfg.Web3.Chain)
	}

	dialCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client, err := ethereum.NewClient(dialCtx, ethereum.Config{
		Name:       cfg.Web3.Chain,
		RPCURL:     def.RPCURL,
		PrivateKey: cfg.Web3.PrivateKey,
	})
	if err != nil {
		return nil, 0, err
	}
	return client, def.ChainID, nil
}
