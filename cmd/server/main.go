package main

import (
	"context"
	"log"
	"os"

	"github.com/dmitrijs2005/audiodesc/internal/app"
	"github.com/dmitrijs2005/audiodesc/internal/config"
)

func main() {

	ctx := context.Background()
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.ValidateServer(); err != nil {
		log.Fatalf("config: %v", err)
	}

	a, err := app.NewApp(ctx, cfg, os.Stdout)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.RunServer(ctx); err != nil {
		log.Printf("%v", err)
	}

}
