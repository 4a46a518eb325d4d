package main

import (
	"os"
	"runtime/debug"

	"github.com/ralt/pkgconv/internal/cli"
	"github.com/sirupsen/logrus"
)

// version is set at link time with -ldflags "-X main.version=..."
var version = ""

func buildVersion() string {
	if version != "" {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:          true,
		DisableLevelTruncation: true,
	})

	rootCmd := cli.NewRootCmd()
	rootCmd.Version = buildVersion()
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(cli.ExitCode(err))
	}
}
