package main

import (
	"errors"

	altsrc "github.com/urfave/cli-altsrc/v3"
	"github.com/urfave/cli-altsrc/v3/toml"
	"github.com/urfave/cli/v3"
)

const (
	// DefaultListenAddress is used when -listen-address is unset.
	DefaultListenAddress = ":25188"
)

// flags defines the daemon's CLI flags. listen-address can also be set via
// an environment variable or the application's configuration file;
// pretty-log is read from the command line only.
func flags(configFilePath altsrc.StringSourcer) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "pretty-log",
			Usage: "human-readable console logging, instead of JSON",
		},
		&cli.StringFlag{
			Name:  "listen-address",
			Usage: "address to accept Epoxy connections on",
			Value: DefaultListenAddress,
			Sources: cli.NewValueSourceChain(
				cli.EnvVar("EPOXYD_LISTEN_ADDRESS"),
				toml.TOML("epoxyd.listen_address", configFilePath),
			),
			Validator: validateAddress,
		},
	}
}

func validateAddress(addr string) error {
	if addr == "" {
		return errors.New("must not be empty")
	}
	return nil
}
