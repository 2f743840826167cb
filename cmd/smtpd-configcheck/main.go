// Command smtpd-configcheck parses a YAML configuration file and reports
// whether it would produce a usable smtpd.Engine, without ever accepting
// a connection. Intended for use in deploy pipelines and pre-commit hooks,
// validating config on disk before a restart picks it up.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/relaysmtp/smtpd"
	"github.com/relaysmtp/smtpd/config"
)

var configFile = flag.String("config", "", "path to the YAML configuration file")

func main() {
	flag.Parse()

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "missing -config")
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		os.Exit(1)
	}

	opts, err := cfg.ToOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error building options: %v\n", err)
		os.Exit(1)
	}

	// ToOptions leaves Handler unset; a no-op BaseHandler is enough to
	// exercise Options.validate() and the rest of engine construction.
	opts.Handler = smtpd.BaseHandler{}

	if _, err := smtpd.NewEngine(opts); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("configuration OK")
}
