package main

import (
	"clusterhub-service/api"
	_ "clusterhub-service/docs"
	"clusterhub-service/logger"
	"clusterhub-service/service"
	"clusterhub-service/service/config"
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	daprd "github.com/dapr/go-sdk/service/http"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

// 优雅关闭等待时间
const shutdownTimeout = 30 * time.Second

// @title 聚类分析服务 API
// @version 1.0
// @description 数据集聚类任务编排与有效性评估服务，提供数据集管理、聚类运行、结果查询功能
// @BasePath /
func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	logger.InitLogger(cfg.Logging.Level)

	if err := service.Init(cfg); err != nil {
		log.Fatalf("服务初始化失败: %v", err)
	}

	mux := chi.NewRouter()

	// 如果有BASE_CONTEXT，则在该路径下挂载所有路由
	if cfg.Server.BaseContext != "" {
		mux.Route(cfg.Server.BaseContext, func(r chi.Router) {
			subMux := r.(*chi.Mux)
			api.InitRoute(subMux)
			r.Handle("/metrics", promhttp.Handler())
			r.Handle("/swagger*", httpSwagger.WrapHandler)
		})
	} else {
		api.InitRoute(mux)
		mux.Handle("/metrics", promhttp.Handler())
		mux.Handle("/swagger*", httpSwagger.WrapHandler)
	}

	s := daprd.NewServiceWithMux(":"+strconv.Itoa(cfg.Server.Port), mux)

	go func() {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
		<-stop
		log.Println("收到退出信号，开始关闭服务")
		if err := s.GracefulStop(); err != nil {
			log.Printf("停止HTTP服务失败: %v", err)
		}
	}()

	if err := s.Start(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := service.Shutdown(ctx); err != nil {
		log.Printf("关闭服务出现错误: %v", err)
	}
	log.Println("服务已关闭")
}
