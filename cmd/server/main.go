package main

import (
	"context"
	"log"

	"riftvale/server/internal/app"
)

func main() {
	if err := app.Run(context.Background(), app.ConfigFromEnv()); err != nil {
		log.Fatalf("%v", err)
	}
}
