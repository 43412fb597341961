package util

import (
	"strings"
	"time"

	"github.com/ValentinKolb/sandclock/lib/clock/engines/sand"
	"github.com/ValentinKolb/sandclock/lib/common"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupClockFlags adds the engine and logging flags to a command
func SetupClockFlags(cmd *cobra.Command, defaultTimeout time.Duration) {
	key := "timeout"
	cmd.PersistentFlags().Duration(key, defaultTimeout, WrapString("Inactivity after which a key times out (e.g. 3s, 500ms)"))

	key = "refresh"
	cmd.PersistentFlags().Duration(key, time.Second, WrapString("How often the clock scans for timed out keys. A timeout is reported at most one refresh interval late"))

	key = "workers"
	cmd.PersistentFlags().Int(key, 4, WrapString("Number of goroutines delivering events to the handler"))

	key = "name"
	cmd.PersistentFlags().String(key, "default", WrapString("Name of the clock, used in logs and as metrics label"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "log-format"
	cmd.PersistentFlags().String(key, "text", WrapString("Format of the log output (text, console, json)"))
}

// InitConfig loads .env files and configures viper to read SANDCLOCK_<FLAG> environment variables
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("sandclock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// ProcessClockConfig binds the flags of cmd to viper and initializes the loggers
func ProcessClockConfig(cmd *cobra.Command) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	return common.InitLoggers(viper.GetString("log-level"), viper.GetString("log-format"))
}

// GetClockOptions reads the engine options from viper
func GetClockOptions() *sand.Options {
	opts := sand.DefaultOptions()
	opts.TimeoutDuration = viper.GetDuration("timeout")
	opts.RefreshInterval = viper.GetDuration("refresh")
	opts.Workers = viper.GetInt("workers")
	opts.Name = viper.GetString("name")
	return opts
}
