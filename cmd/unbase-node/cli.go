package main

import "flag"

// Options holds CLI options for the node.
type Options struct {
	ConfigPath  string
	PrintConfig bool
}

// ParseFlags parses CLI flags from args and returns Options.
func ParseFlags(args []string) Options {
	fs := flag.NewFlagSet("unbase-node", flag.ExitOnError)
	var opts Options
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to YAML config file")
	fs.BoolVar(&opts.PrintConfig, "print-config", false, "Print the effective configuration as YAML and exit")
	_ = fs.Parse(args)
	return opts
}
