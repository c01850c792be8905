package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/danmuck/airlink/internal/config"
	"github.com/danmuck/airlink/internal/observability"
	"github.com/rs/zerolog/log"
)

const defaultPath = "cmd/airlinkctl/config.toml"

func main() {
	observability.InitLogger("configgen")

	kind := flag.String("kind", "airlinkctl", "config kind: airlinkctl")
	output := flag.String("output", "", "output path for config template")
	validate := flag.Bool("validate", false, "validate an existing config file")
	input := flag.String("input", "", "config path for validation (defaults to "+defaultPath+")")
	force := flag.Bool("force", false, "overwrite existing config file")
	flag.Parse()

	if _, err := config.Template(*kind); err != nil {
		fmt.Fprintf(os.Stderr, "configgen: %v (known: %v)\n", err, config.Kinds)
		os.Exit(2)
	}

	if *validate {
		path := *input
		if path == "" {
			path = defaultPath
		}
		cfg, err := config.LoadClientConfig(path)
		if err != nil {
			log.Fatal().Err(err).Msg("config invalid")
		}
		log.Info().Str("kind", *kind).Str("path", path).Str("target", cfg.Target).Msg("validated config")
		return
	}

	target := *output
	if target == "" {
		target = defaultPath
	}
	if err := config.WriteTemplate(target, *kind, *force); err != nil {
		log.Fatal().Err(err).Msg("write template failed")
	}
	log.Info().Str("kind", *kind).Str("path", target).Msg("wrote config template")
}
