// Package main provides the assistant control CLI.
package main

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
)

var (
	app    = kingpin.New("ariactl", "Aria voice assistant control client")
	server = app.Flag("server", "Assistant host address").Default("http://localhost:8080").Envar("ARIA_SERVER").String()

	statusCmd = app.Command("status", "Show the widget snapshot")
	healthCmd = app.Command("health", "Show host readiness and session statistics")

	openCmd  = app.Command("open", "Open the assistant panel")
	closeCmd = app.Command("close", "Disconnect and close the assistant panel")

	toggleCmd  = app.Command("toggle", "Connect or disconnect the voice session")
	toggleOpen = toggleCmd.Flag("open", "Open the panel first").Bool()

	watchCmd  = app.Command("watch", "Stream state and visualizer events")
	watchBars = watchCmd.Flag("bars", "Render visualizer frames as bars").Bool()
)

var stdout io.Writer = os.Stdout

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := newClient(*server)

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case healthCmd.FullCommand():
		err = readiness(ctx, client)
	case openCmd.FullCommand():
		err = open(ctx, client)
	case closeCmd.FullCommand():
		err = closePanel(ctx, client)
	case toggleCmd.FullCommand():
		err = toggle(ctx, client, *toggleOpen)
	case watchCmd.FullCommand():
		err = watch(ctx, client, stdout, *watchBars)
	}
	app.FatalIfError(err, "%s", command)
}
