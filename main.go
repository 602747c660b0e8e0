// @title CareerMap 后端 API
// @version 1.0
// @description 职业评估与学习路线图异步生成服务。

// @host localhost:8080
// @BasePath /api
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

package main

import (
	"careermap_backend/internal/app"
	"careermap_backend/internal/config"
	"careermap_backend/pkg/logger"
	"context"
	"flag"
	"log"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// 命令行参数
	mode := flag.String("mode", app.ModeAll, "运行模式：all / api / worker")
	migrateOnly := flag.Bool("migrate-only", false, "只执行数据库迁移，完成后退出")
	migrate := flag.Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
	syncEmbeddings := flag.Bool("sync-embeddings", false, "重建资源向量索引后退出")
	flag.Parse()

	// .env 不存在时忽略，使用进程环境变量
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using process environment")
	}

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	switch *mode {
	case app.ModeAll, app.ModeAPI, app.ModeWorker:
	default:
		log.Fatalf("Unknown mode %q", *mode)
	}

	cfg.Mode = *mode
	cfg.ForceMigrate = *migrate || *migrateOnly
	cfg.MigrateOnly = *migrateOnly
	cfg.SyncEmbeddings = *syncEmbeddings

	application := app.NewApp(cfg)

	// 迁移完成后直接退出
	if *migrateOnly {
		logger.Log.Info("Database migration finished, exiting")
		application.Close()
		return
	}

	if *syncEmbeddings {
		err := application.SyncEmbeddings(context.Background())
		application.Close()
		if err != nil {
			logger.Log.Fatal("Embedding sync failed", zap.Error(err))
		}
		return
	}

	application.Run()
}
