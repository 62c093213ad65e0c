package cli

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/mricon/grokmirror-go/internal/config"
	"github.com/mricon/grokmirror-go/internal/gitutil"
	"github.com/mricon/grokmirror-go/internal/logx"
	"github.com/mricon/grokmirror-go/internal/objstore"
)

// commonFlags is embedded by every subcommand to give it the "-c <config>
// -v" surface every grokmirror command shares (spec.md §6).
type commonFlags struct {
	configPath string
	verbose    int
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.configPath, "config", "c", "", "location of the configuration file (required)")
	fs.CountVarP(&c.verbose, "verbose", "v", "increase logging verbosity, may be repeated")
}

// deps bundles the dependencies every subcommand needs, built once from
// the parsed -c/-v flags.
type deps struct {
	Cfg *config.Config
	Git *gitutil.Invoker
	Log zerolog.Logger
	Obj *objstore.Store
}

func (c *commonFlags) build() (*deps, error) {
	if c.configPath == "" {
		return nil, fmt.Errorf("-c/--config is required")
	}
	log := logx.New(os.Stderr, c.verbose)

	cfg, err := config.Load(c.configPath)
	if err != nil {
		return nil, err
	}
	for _, k := range cfg.UnknownKeys {
		log.Warn().Str("key", k).Msg("unrecognized configuration key")
	}

	git, err := gitutil.New(log)
	if err != nil {
		return nil, err
	}
	obj := objstore.New(git, log)

	return &deps{Cfg: cfg, Git: git, Log: log, Obj: obj}, nil
}
