package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"

	"github.com/any-hub/any-cache/internal/cache"
	"github.com/any-hub/any-cache/internal/config"
	"github.com/any-hub/any-cache/internal/handler"
	"github.com/any-hub/any-cache/internal/logging"
	"github.com/any-hub/any-cache/internal/server"
	"github.com/any-hub/any-cache/internal/server/routes"
	"github.com/any-hub/any-cache/internal/version"
	"github.com/any-hub/any-cache/internal/watch"
	"github.com/any-hub/any-cache/internal/worker"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["document_root"] = cfg.Global.DocumentRoot
		fields["workers"] = cfg.Cache.Workers
		fields["upload_mode"] = cfg.Cache.UploadMode()
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 启动顺序为“配置 → worker 池 → Fiber server”，关闭时先排空 server 再停止 worker，
	// 保证所有响应流归还引用后才销毁条目。
	svc, err := newService(cfg, logger)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化服务失败: %v\n", err)
		return 1
	}

	fields := logging.BaseFields("startup", opts.configPath)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["document_root"] = cfg.Global.DocumentRoot
	fields["workers"] = svc.pool.Len()
	fields["worker_select"] = cfg.Cache.WorkerSelect
	fields["upload_mode"] = cfg.Cache.UploadMode()
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := svc.serve(ctx); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("any-cache", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVarP(&configFlag, "config", "c", "", "配置文件路径（默认 ./config.toml，可被 ANY_CACHE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVarP(&showVer, "version", "v", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv("ANY_CACHE_CONFIG")
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

// service 持有一次运行所需的全部组件。
type service struct {
	cfg     *config.Config
	logger  *logrus.Logger
	root    *server.Root
	pool    *worker.Pool
	app     *fiber.App
	watcher *watch.Watcher
}

func newService(cfg *config.Config, logger *logrus.Logger) (*service, error) {
	root, err := server.NewRoot(cfg.Global.DocumentRoot)
	if err != nil {
		return nil, err
	}

	strategy, err := worker.ParseStrategy(cfg.Cache.WorkerSelect)
	if err != nil {
		return nil, err
	}

	pool := worker.New(worker.Options{
		Workers:      cfg.Cache.Workers,
		Strategy:     strategy,
		TickInterval: cfg.Cache.TickInterval.DurationValue(),
		Logger:       logger,
		Cache: []cache.Option{
			cache.WithChunkSize(cfg.Cache.ChunkSize),
			cache.WithIdleTimeout(cfg.Cache.IdleTimeout.DurationValue()),
			cache.WithTempDir(cfg.Global.TempDir),
			cache.WithMaxURILength(cfg.Cache.MaxURILength),
		},
	})

	app, err := server.NewApp(server.AppOptions{
		Logger: logger,
		Handler: handler.New(handler.Options{
			Logger:        logger,
			Pool:          pool,
			Root:          root,
			EnableUploads: cfg.Cache.EnableUploads,
		}),
		ListenPort: cfg.Global.ListenPort,
		BodyLimit:  int(cfg.Cache.MaxUploadSize),
	})
	if err != nil {
		return nil, err
	}
	routes.RegisterCacheRoutes(app, pool)

	svc := &service{cfg: cfg, logger: logger, root: root, pool: pool, app: app}
	if cfg.Cache.WatchRoot {
		svc.watcher, err = watch.New(root, pool, logger)
		if err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// start 启动 worker 与文件监听，返回的函数按相反顺序停止它们。
// worker 不随 ctx 取消而退出，只能由返回的函数停止。
func (s *service) start(ctx context.Context) func() error {
	s.pool.Start(context.WithoutCancel(ctx))

	watchCtx, cancelWatch := context.WithCancel(ctx)
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if s.watcher == nil {
			return
		}
		if err := s.watcher.Run(watchCtx); err != nil {
			s.logger.WithError(err).WithField("action", "watch").Error("watcher_stopped")
		}
	}()

	return func() error {
		cancelWatch()
		<-watchDone
		return s.pool.Stop()
	}
}

// serve 监听端口直到 ctx 取消，随后依次关闭 HTTP 服务与 worker。
func (s *service) serve(ctx context.Context) error {
	stopWorkers := s.start(ctx)
	port := s.cfg.Global.ListenPort

	listenErr := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"action": "listen",
			"port":   port,
		}).Info("Fiber 服务启动")
		listenErr <- s.app.Listen(fmt.Sprintf(":%d", port), fiber.ListenConfig{DisableStartupMessage: true})
	}()

	var err error
	select {
	case err = <-listenErr:
	case <-ctx.Done():
		s.logger.WithField("action", "shutdown").Info("收到退出信号，开始关闭")
		err = s.app.ShutdownWithTimeout(s.cfg.Global.ShutdownTimeout.DurationValue())
	}

	err = errors.Join(err, stopWorkers())
	s.logger.WithField("action", "shutdown").Info("服务已停止")
	return err
}
