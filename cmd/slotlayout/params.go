package main

import (
	"flag"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const layoutFileKey = "layout-file"

func buildFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("slotlayout", flag.ContinueOnError)

	fs.String(layoutFileKey, "", "Path to the JSON field declaration file")

	return fs
}

// getViper returns the viper environment for the tool: flags first, with
// SLOTLAYOUT_* environment variables as fallback.
func getViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("slotlayout")
	v.AutomaticEnv()

	fs := buildFlagSet()
	pflag.CommandLine.AddGoFlagSet(fs)
	pflag.Parse()
	if err := v.BindPFlags(pflag.CommandLine); err != nil {
		return nil, err
	}

	return v, nil
}
