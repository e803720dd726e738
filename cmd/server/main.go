package main

import (
	_ "github.com/eleven-am/aria-assistant/docs"
	"github.com/eleven-am/aria-assistant/internal/bootstrap"
)

// @title Aria Assistant API
// @version 1.0.0
// @description Local host for the Aria voice assistant: widget state, voice connection control and health

// @host localhost:8080
// @BasePath /

func main() {
	bootstrap.Run()
}
