package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joss/agentdeck/internal/api"
	"github.com/joss/agentdeck/internal/config"
	"github.com/joss/agentdeck/internal/render"
)

const requestTimeout = 15 * time.Second

func apiClient() *api.Client {
	return api.NewClient(config.Env().ServerURL)
}

func renderer() *render.Renderer {
	return render.New(pretty)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func exitOnError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
