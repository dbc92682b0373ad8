package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AK1699/Cognitest-AI-sub003/internal/config"
	"github.com/AK1699/Cognitest-AI-sub003/internal/httpapi"
	"github.com/AK1699/Cognitest-AI-sub003/internal/logger"
	"github.com/AK1699/Cognitest-AI-sub003/internal/storage/db"
	"github.com/AK1699/Cognitest-AI-sub003/internal/storage/model"
	"github.com/AK1699/Cognitest-AI-sub003/pkg/api"
)

func main() {
	configPath := flag.String("config", "", "配置文件路径")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		os.Stderr.WriteString("加载配置失败: " + err.Error() + "\n")
		os.Exit(1)
	}

	l := logger.New(logger.Options{
		Level:   cfg.Log.Level,
		Writers: cfg.Log.Writer,
	})

	database, err := db.New(db.Options{
		Name:   cfg.Sqlite.Db,
		Prefix: cfg.Sqlite.Prefix,
		Logger: db.NewLogger(l),
	})
	if err != nil {
		l.Err(err, "初始化数据库失败", "db", cfg.Sqlite.Db)
		os.Exit(1)
	}
	if err := db.Migrate(database, &model.Setting{}, &model.RunRecord{}); err != nil {
		l.Err(err, "数据库迁移失败")
		os.Exit(1)
	}

	svc := api.NewService(cfg, database, l)

	srv := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: httpapi.NewServer(svc),
	}

	go func() {
		l.Info("控制面服务已启动", "listen", cfg.Server.Listen, "gateway", cfg.Gateway.WSURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			l.Err(err, "控制面服务异常退出")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	l.Info("收到退出信号，开始关闭")
	svc.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		l.Err(err, "控制面服务关闭失败")
	}
	l.Info("已退出")
}
