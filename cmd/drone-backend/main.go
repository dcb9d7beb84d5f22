package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"drone-relay/auth"
	"drone-relay/config"
	"drone-relay/control"
	dlog "drone-relay/log"
	"drone-relay/metrics"
	"drone-relay/orchestrator"
	"drone-relay/ports"
	"drone-relay/registry"
)

const Version = "1.0"

func main() {
	fs := pflag.NewFlagSet("drone-backend", pflag.ExitOnError)
	fs.SetOutput(os.Stdout)
	configPathFlag := fs.String("config_path", "configs/config.yaml", "配置文件路径（YAML）。如果是目录，则默认读取该目录下的 config.yaml")
	versionFlag := fs.Bool("version", false, "输出版本并退出")
	hashFlag := fs.String("hash-password", "", "输出给定口令的 bcrypt 哈希（用于填写凭据文件）并退出")
	fs.Usage = func() {
		_, _ = fmt.Fprintf(os.Stdout, "drone-backend %s\n\n", Version)
		_, _ = fmt.Fprintln(os.Stdout, "用法：")
		_, _ = fmt.Fprintln(os.Stdout, "  drone-backend [--config_path <path>] [--hash-password <secret>] [--version] [--help]")
		_, _ = fmt.Fprintln(os.Stdout, "\n参数：")
		fs.PrintDefaults()
	}
	_ = fs.Parse(os.Args[1:])

	if *versionFlag {
		_, _ = fmt.Fprintln(os.Stdout, Version)
		return
	}
	if *hashFlag != "" {
		h, err := auth.HashSecret(*hashFlag)
		if err != nil {
			_, _ = fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		_, _ = fmt.Fprintln(os.Stdout, h)
		return
	}

	cfg, err := config.Load(resolveConfigPath(*configPathFlag))
	if err != nil {
		panic(err)
	}
	if err := dlog.Init(cfg.Logging); err != nil {
		panic(err)
	}
	if err := run(cfg); err != nil {
		dlog.L().WithError(err).Error("drone-backend exited")
		os.Exit(1)
	}
}

// run 按配置装配端口池、凭据、注册表、编排器与控制面，并阻塞到收到退出信号。
func run(cfg config.Config) error {
	videoRange, err := config.ParsePortRange(cfg.Video.PortRange)
	if err != nil {
		return err
	}
	statusRange, err := config.ParsePortRange(cfg.Status.PortRange)
	if err != nil {
		return err
	}

	videoPool, err := ports.NewPool(ports.KindVideo, videoRange.Start, videoRange.End)
	if err != nil {
		return err
	}
	if cfg.Video.ProbeOnStart {
		blocked := ports.BlockUnavailable(videoPool, cfg.Video.BindHost)
		dlog.With(logrus.Fields{
			"range":   videoRange.String(),
			"blocked": blocked,
			"status":  "video_ports_probed",
		}).Info("视频端口占用检测完成")
	}

	store, err := auth.LoadFileStore(cfg.Auth.CredentialsFile)
	if err != nil {
		return err
	}
	dlog.With(logrus.Fields{
		"relays": store.Len(auth.RoleRelay),
		"pilots": store.Len(auth.RolePilot),
		"status": "credentials_loaded",
	}).Info("凭据加载完成")

	m := metrics.New()
	reg, err := registry.New(registry.Options{
		VideoPool:       videoPool,
		StatusRange:     statusRange,
		BindHost:        cfg.Video.BindHost,
		MaxDatagram:     int(cfg.Video.MaxDatagram.Int64()),
		PeerIdleTimeout: cfg.Video.PeerIdleTimeout,
		Grace:           cfg.Heartbeat.GraceInterval,
		Observer:        m,
	})
	if err != nil {
		return err
	}
	defer reg.Close()
	if err := m.Watch(reg, videoPool); err != nil {
		return err
	}

	orch := orchestrator.New(
		auth.NewService(store, auth.RoleRelay),
		auth.NewService(store, auth.RolePilot),
		reg,
	)
	srv := control.NewServer(cfg, orch, m)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		dlog.L().WithField("status", "shutting_down").Info("收到退出信号，开始关闭")
		return nil
	})
	return g.Wait()
}

func resolveConfigPath(p string) string {
	if p == "" {
		return "configs/config.yaml"
	}
	st, err := os.Stat(p)
	if err != nil {
		return p
	}
	if st.IsDir() {
		return filepath.Join(p, "config.yaml")
	}
	return p
}
