package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/go-plugr/plugr/app"
	"github.com/go-plugr/plugr/log"
	"github.com/go-plugr/plugr/sandbox"
)

var confPath = flag.String("conf", "", "path to the runtime configuration file, eg: -conf config.yaml")

func main() {
	// Sandbox workers are this same binary re-exec'd; they must not boot
	// the runtime.
	if sandbox.IsWorker() {
		sandbox.WorkerMain()
		return
	}
	flag.Parse()

	cfg := app.DefaultConfig()
	if *confPath != "" {
		loaded, err := app.LoadConfig(*confPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "plugr: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	mgr, err := app.NewManager(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "plugr: %v\n", err)
		os.Exit(1)
	}
	defer mgr.Close()

	n, err := mgr.LoadAll(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "plugr: load plugins: %v\n", err)
		os.Exit(1)
	}
	log.Infof("loaded %d plugins", n)

	for _, info := range mgr.List() {
		fmt.Printf("%-24s %-12s %s\n", info.PluginID, info.State, info.InstalledVersion)
	}
}
