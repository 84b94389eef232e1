package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// We should send our own log output to stderr.
	flag.Set("logtostderr", "true")
	flag.Parse()

	cli := newStxCli()

	// INT and TERM cancel the running command, it shuts the runtime down before returning.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		cli.stop()
	}()

	err := cli.run(os.Args)
	cli.stop()
	if err != nil {
		os.Exit(1)
	}
}
