package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/codegangsta/cli"
	log "github.com/golang/glog"
	"github.com/syntax-framework/stx"
	"github.com/syntax-framework/stx/config"
	"github.com/syntax-framework/stx/descriptor"
	"github.com/syntax-framework/stx/dom"
	"github.com/syntax-framework/stx/engine"
	"github.com/syntax-framework/stx/pubsub"
)

const usage = `Runs Syntax components outside of the browser.

   render  hydrates a page with a component, fires events and prints the result
   push    sends one event to the live server
   listen  prints the envelopes the live server streams for a topic`

// stxCli holds the state shared by the subcommands
type stxCli struct {
	app    *cli.App
	ctx    context.Context
	cancel context.CancelFunc
}

// newStxCli creates a new stxCli object.
func newStxCli() *stxCli {
	s := &stxCli{}
	s.ctx, s.cancel = context.WithCancel(context.Background())

	app := cli.NewApp()
	app.Name = "stx"
	app.Usage = usage
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "Configuration file, defaults are used when the file does not exist",
			Value: "config.yaml",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "render",
			Aliases:   []string{"r"},
			Usage:     "Mounts a component on a page and prints the rendered page.",
			ArgsUsage: " ",
			Flags: []cli.Flag{
				cli.StringFlag{
					Name:  "descriptor, d",
					Usage: "Compiled component descriptor (json)",
				},
				cli.StringFlag{
					Name:  "page, p",
					Usage: "Html page the component is mounted on",
				},
				cli.StringFlag{
					Name:  "selector, s",
					Usage: "Mounts the component on every element matching the selector, the page root otherwise",
				},
				cli.StringSliceFlag{
					Name:  "call",
					Usage: "Exported function to invoke after mounting, repeatable",
				},
				cli.StringSliceFlag{
					Name:  "dispatch",
					Usage: "Event to fire after mounting as selector@event, repeatable",
				},
			},
			Action: s.cmdRender,
		},
		{
			Name:      "push",
			Usage:     "Pushes an event to the live server.",
			ArgsUsage: "topic event [payload]",
			Action:    s.cmdPush,
		},
		{
			Name:      "listen",
			Aliases:   []string{"l"},
			Usage:     "Listens a topic until interrupted.",
			ArgsUsage: "topic",
			Action:    s.cmdListen,
		},
	}
	s.app = app
	return s
}

// run starts a command specified by users.
func (s *stxCli) run(args []string) error {
	return s.app.Run(args)
}

// stop cancels the running command.
func (s *stxCli) stop() {
	s.cancel()
}

func (s *stxCli) getConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		log.Errorf("Invalid configuration: %v", err)
		return nil, err
	}
	return cfg, nil
}

// cmdRender implements the "render" subcommand.
func (s *stxCli) cmdRender(c *cli.Context) error {
	cfg, err := s.getConfig(c)
	if err != nil {
		return err
	}

	source, err := os.ReadFile(c.String("page"))
	if err != nil {
		log.Errorf("Couldn't read the page: %v", err)
		return err
	}
	doc, err := dom.Parse(string(source), c.String("page"))
	if err != nil {
		log.Errorf("Couldn't parse the page: %v", err)
		return err
	}

	data, err := os.ReadFile(c.String("descriptor"))
	if err != nil {
		log.Errorf("Couldn't read the descriptor: %v", err)
		return err
	}
	desc, err := stx.Load(data)
	if err != nil {
		log.Errorf("Invalid descriptor: %v", err)
		return err
	}

	runtime := stx.New(cfg, doc, nil)
	defer runtime.Shutdown()

	var instances []*engine.Instance
	if selector := c.String("selector"); selector != "" {
		if err = runtime.Register(selector, desc); err != nil {
			log.Errorf("Couldn't register the component: %v", err)
			return err
		}
		// failed mounts were already logged, the others are still rendered
		instances, _ = runtime.Mount()
	} else {
		instance, err := runtime.Instantiate(doc.Root(), desc)
		if err != nil {
			log.Errorf("Couldn't mount the component: %v", err)
			return err
		}
		instances = append(instances, instance)
	}
	log.Infof("Mounted %d instance(s) of %s", len(instances), desc.File)
	runtime.Loop.Drain()

	for _, name := range c.StringSlice("call") {
		for _, instance := range instances {
			exports, _ := instance.API().(map[string]descriptor.Expression)
			fn, exists := exports[name]
			if !exists {
				log.Warningf("The component does not export %q", name)
				continue
			}
			result, err := fn()
			if err != nil {
				log.Errorf("Call %s failed: %v", name, err)
				continue
			}
			log.Infof("Call %s = %v", name, result)
		}
		runtime.Loop.Drain()
	}

	for _, arg := range c.StringSlice("dispatch") {
		at := strings.LastIndex(arg, "@")
		if at <= 0 || at == len(arg)-1 {
			log.Errorf("Invalid dispatch %q, expected selector@event", arg)
			continue
		}
		selector, event := arg[:at], arg[at+1:]
		targets, err := doc.FindAll(doc.Root(), selector)
		if err != nil {
			log.Errorf("Invalid selector %q: %v", selector, err)
			continue
		}
		for _, target := range targets {
			target.Dispatch(&dom.Event{Type: event, Target: target})
		}
		runtime.Loop.Drain()
	}

	html, err := doc.Render()
	if err != nil {
		log.Errorf("Couldn't render the page: %v", err)
		return err
	}
	fmt.Println(html)
	return nil
}

// cmdPush implements the "push" subcommand.
func (s *stxCli) cmdPush(c *cli.Context) error {
	if c.NArg() < 2 {
		log.Errorf("Expected: topic event [payload]")
		return fmt.Errorf("missing arguments")
	}
	cfg, err := s.getConfig(c)
	if err != nil {
		return err
	}

	var payload interface{}
	if raw := c.Args().Get(2); raw != "" {
		if err = json.Unmarshal([]byte(raw), &payload); err != nil {
			// not json, sent as a string
			payload = raw
		}
	}

	runtime := stx.New(cfg, nil, nil)
	defer runtime.Shutdown()

	channel, err := runtime.Channel(c.Args().Get(0), nil)
	if err != nil {
		log.Errorf("Couldn't open the channel: %v", err)
		return err
	}
	if err = channel.Push(s.ctx, c.Args().Get(1), payload); err != nil {
		log.Errorf("Push failed: %v", err)
		return err
	}
	log.Infof("Pushed %s to %s", c.Args().Get(1), channel.Topic())
	return nil
}

// cmdListen implements the "listen" subcommand.
func (s *stxCli) cmdListen(c *cli.Context) error {
	if c.NArg() < 1 {
		log.Errorf("Expected: topic")
		return fmt.Errorf("missing topic")
	}
	cfg, err := s.getConfig(c)
	if err != nil {
		return err
	}

	runtime := stx.New(cfg, nil, nil)
	defer runtime.Shutdown()

	channel, err := runtime.Channel(c.Args().First(), nil)
	if err != nil {
		log.Errorf("Couldn't open the channel: %v", err)
		return err
	}
	channel.On(pubsub.Wildcard, func(envelope *pubsub.Envelope) {
		line, err := json.Marshal(envelope)
		if err != nil {
			log.Errorf("Couldn't print the envelope: %v", err)
			return
		}
		fmt.Println(string(line))
	})
	log.Infof("Listening %s on %s", channel.Topic(), cfg.LiveURL())

	if err = runtime.Run(s.ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
