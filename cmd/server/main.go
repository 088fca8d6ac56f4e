package main

import (
	"context"
	"log"

	"github.com/vkarpenko/filevault/internal/server"
	"github.com/vkarpenko/filevault/internal/server/config"
)

func main() {
	ctx := context.Background()

	cfg := config.LoadConfig()

	app, err := server.NewApp(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}

	app.Run(ctx)
}
