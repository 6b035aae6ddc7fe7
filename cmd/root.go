package cmd

import (
	"github.com/andrewmarklloyd/rasp-water-panel/internal/pkg/config"
	"github.com/spf13/cobra"

	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:   "rasp-water-panel",
	Short: "Control panel for the rasp-water appliance",
	Long: `Control panel for the rasp-water appliance. Keeps the schedule, valve
and log views in sync with the appliance and serves them locally.`,
	Run: func(cmd *cobra.Command, args []string) {
		runPanel()
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the panel",
	Run: func(cmd *cobra.Command, args []string) {
		runPanel()
	},
}

func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(lastKnownCmd)
	rootCmd.AddCommand(backupCmd)
}

func initConfig() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()
	viper.SetDefault("API_URL", config.DefaultAPIURL)
	viper.SetDefault("PORT", config.DefaultPort)
	viper.SetDefault("REQUEST_TIMEOUT", config.DefaultTimeout)
	viper.SetDefault("MQTT_TOPIC_PREFIX", config.DefaultTopicPrefix)
	viper.SetDefault("APP_NAME", "rasp-water-panel")
	viper.ReadInConfig()
}

func loadConfig() config.PanelConfig {
	return config.PanelConfig{
		AppName:        viper.GetString("APP_NAME"),
		APIURL:         viper.GetString("API_URL"),
		Port:           viper.GetString("PORT"),
		RequestTimeout: viper.GetDuration("REQUEST_TIMEOUT"),
		RedisURL:       viper.GetString("REDIS_URL"),
		RedisTLSURL:    viper.GetString("REDIS_TLS_URL"),
		PostgresURL:    viper.GetString("DATABASE_URL"),
		MockMode:       viper.GetBool("MOCK_MODE"),
		MQTTConfig: config.MQTTConfig{
			BrokerURL:   viper.GetString("MQTT_BROKER_URL"),
			User:        viper.GetString("MQTT_USER"),
			Password:    viper.GetString("MQTT_PASSWORD"),
			TopicPrefix: viper.GetString("MQTT_TOPIC_PREFIX"),
		},
		S3Config: config.S3Config{
			AccessKeyID:       viper.GetString("SPACES_AWS_ACCESS_KEY_ID"),
			SecretAccessKey:   viper.GetString("SPACES_AWS_SECRET_ACCESS_KEY"),
			Region:            viper.GetString("SPACES_AWS_REGION"),
			URL:               viper.GetString("SPACES_URL"),
			Bucket:            viper.GetString("SPACES_BUCKET_NAME"),
			RetentionEnabled:  viper.GetBool("DB_RETENTION_ENABLED"),
			MaxRetentionRows:  parseRetentionRowsConfig(viper.GetString("DB_MAX_RETENTION_ROWS")),
			FullBackupEnabled: viper.GetBool("DB_FULL_BACKUP_ENABLED"),
		},
		DatadogConfig: config.DatadogConfig{
			APIKey: viper.GetString("DD_API_KEY"),
			APPKey: viper.GetString("DD_APP_KEY"),
		},
		Version: version,
	}
}
