// Package logcfg finds the smplog configuration shared by the binaries.
package logcfg

import (
	"os"

	logs "github.com/danmuck/smplog"
)

// EnvConfigPath names a config file that takes precedence over the
// working-directory candidates.
const EnvConfigPath = "SMPLOG_CONFIG"

var searchPaths = []string{
	"./smplog.config.toml",
	"./local/smplog.config.toml",
}

// Candidates lists the files Load tries, in order. explicit (usually a
// -log-config flag) comes first when set.
func Candidates(explicit string) []string {
	var out []string
	if explicit != "" {
		out = append(out, explicit)
	}
	if env := os.Getenv(EnvConfigPath); env != "" {
		out = append(out, env)
	}
	return append(out, searchPaths...)
}

// Load returns the first readable config and the file it came from, or the
// smplog defaults and "".
func Load(explicit string) (logs.Config, string) {
	for _, path := range Candidates(explicit) {
		if cfg, err := logs.ConfigFromFile(path); err == nil {
			return cfg, path
		}
	}
	return logs.DefaultConfig(), ""
}

// Configure applies Load to the global logger.
func Configure(explicit string) {
	cfg, source := Load(explicit)
	logs.Configure(cfg)
	if source != "" {
		logs.Debugf("logging configured from %s", source)
	} else if explicit != "" {
		logs.Warnf("log config %s unreadable, using defaults", explicit)
	}
}
