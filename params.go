package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/alessio/shellescape"

	"github.com/mdrohmann/fluxible-plugin-fetchr/fetchr"
)

type commandParams struct {
	configPath string
	host       string
	port       int
	basePath   string
	redisURL   string
	filters    fetchr.RegexFilters
	debug      bool

	// overrides holds only the flags that were given explicitly, keyed the way the config
	// file names them, so that unset flags do not mask file or environment values.
	overrides map[string]any
}

func (c *commandParams) Read(args []string) bool {
	fs := flag.NewFlagSet("", flag.ExitOnError)
	fs.StringVar(&c.configPath, "config", "", "path of a TOML config file")
	fs.StringVar(&c.host, "host", "", "external hostname of the server, used in the startup banner")
	fs.IntVar(&c.port, "port", 0, "port that the server will listen on")
	fs.StringVar(&c.basePath, "base-path", "", "path the fetchr middleware is mounted at")
	fs.StringVar(&c.redisURL, "redis", "", "Redis URL for the kv service; in-memory if not set")
	fs.Var(&c.filters.MustMatch, "expose", "regex pattern(s) of services to expose over HTTP")
	fs.Var(&c.filters.MustNotMatch, "hide", "regex pattern(s) of services not to expose over HTTP")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")

	if err := fs.Parse(args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		fs.Usage()
		return false
	}

	c.overrides = make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			c.overrides["server.host"] = c.host
		case "port":
			c.overrides["server.port"] = c.port
		case "debug":
			c.overrides["server.debug"] = c.debug
		case "base-path":
			c.overrides["fetchr.path"] = c.basePath
		case "redis":
			c.overrides["redis.url"] = c.redisURL
		case "expose":
			c.overrides["fetchr.expose"] = c.filters.MustMatch.Patterns()
		case "hide":
			c.overrides["fetchr.hide"] = c.filters.MustNotMatch.Patterns()
		}
	})
	return true
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}
