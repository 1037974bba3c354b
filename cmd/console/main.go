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
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	// logs go to stderr so they do not interleave with answers
	a, err := app.NewApp(ctx, cfg, os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer a.Close()

	if err := a.RunConsole(ctx, os.Stdin, os.Stdout); err != nil {
		log.Printf("%v", err)
	}

}
