// Package main 是 compkit 命令行入口。
package main

import (
	"context"
	"os"
	"time"

	"github.com/rushteam/compkit/cmd/compkit/app"
)

var version = "dev"

func main() {
	application, err := app.New(version)
	if err != nil {
		app.ExitOnError(err)
	}

	ctx, cancel := app.ContextWithSignals(context.Background())
	defer cancel()

	err = application.Execute(ctx, os.Args[1:])

	// 信号 ctx 可能已取消，关闭使用独立的超时
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if shutdownErr := application.Shutdown(shutdownCtx); shutdownErr != nil {
		application.Logger().Errorf("shutdown: %v", shutdownErr)
	}
	app.ExitOnError(err)
}
