package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jgivc/fetchbridge/internal/app"
)

func main() {
	cfgFileName := flag.String("c", "config.yml", "Path to config file")
	flag.Parse()

	app := app.New(*cfgFileName)
	go app.Start()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)

	for sig := range c {
		switch sig {
		case syscall.SIGUSR1:
			// Manual reconnect once the backoff schedule gave up.
			go app.Reconnect()
		case syscall.SIGUSR2:
			go app.Toggle()
		default:
			fmt.Println("Received termination signal. Shutting down...")
			app.Stop()
			fmt.Println("done")

			return
		}
	}
}
