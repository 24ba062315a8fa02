package cmds

import (
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"livetv-guide/config"
	"livetv-guide/logger"
)

var cfgFile string

func init() {
	cobra.OnInitialize(initConfig)
}

func NewRootCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "livetv-guide",
		Short:         "Live TV channel directory and programme guide",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	rootCmd.AddCommand(NewServeCLI())
	rootCmd.AddCommand(NewSyncCLI())
	rootCmd.AddCommand(NewConfigureCLI())
	rootCmd.AddCommand(NewClearCLI())
	rootCmd.AddCommand(NewChannelsCLI())
	rootCmd.AddCommand(NewNowCLI())
	rootCmd.AddCommand(NewGuideCLI())
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to the YAML configuration file")

	return rootCmd
}

// initConfig layers the configuration file and the environment over the
// defaults, then sets up logging.
func initConfig() {
	var (
		conf *config.Config
		err  error
	)

	if cfgFile != "" {
		conf, err = config.Load(cfgFile)
		cobra.CheckErr(err)
	} else {
		conf = defaultConfig()
	}

	config.ApplyEnv(conf)
	config.SetConfig(conf)

	logger.Configure(logger.Options{
		Level:      conf.Log.Level,
		File:       conf.Log.File,
		MaxSize:    conf.Log.MaxSize,
		MaxBackups: conf.Log.MaxBackups,
		MaxAge:     conf.Log.MaxAge,
		SafeLogs:   conf.Log.SafeLogs,
	})

	// manually set time zone
	if tz := os.Getenv("TZ"); tz != "" {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			logger.Default.Errorf("error loading location '%s': %v", tz, err)
		} else {
			time.Local = loc
		}
	}
}

// defaultConfig reads config.yml from the data directory, writing the
// defaults there first when it does not exist yet.
func defaultConfig() *config.Config {
	dataPath := config.Default().DataPath
	if v := os.Getenv("DATA_PATH"); v != "" {
		dataPath = v
	}
	fPath := filepath.Join(dataPath, "config.yml")

	if _, err := os.Stat(fPath); os.IsNotExist(err) {
		if err := config.CreateDefaultCfg(fPath); err != nil {
			logger.Default.Warnf("Unable to write default configuration to %s: %v", fPath, err)
			return config.Default()
		}
	}

	c, err := config.Load(fPath)
	if err != nil {
		logger.Default.Warnf("Unable to read configuration from %s: %v", fPath, err)
		return config.Default()
	}
	return c
}
