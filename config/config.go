// api/config/config.go
package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

// Configuration stores all the configurations
type Configuration struct {
	Server        ServerConfiguration
	Neo4j         DatabaseConfiguration
	Redis         RedisConfiguration
	Elasticsearch ElasticsearchConfiguration
	MQTT          MQTTConfiguration
	Policy        PolicyConfiguration
	Enforcement   EnforcementConfiguration
}

// ServerConfiguration stores the port and other web server settings
type ServerConfiguration struct {
	Port string
}

// DatabaseConfiguration stores data for database connection
type DatabaseConfiguration struct {
	URI string
}

// RedisConfiguration stores data for Redis connection
type RedisConfiguration struct {
	Addr            string
	DefaultCacheTTL string
}

// ElasticsearchConfiguration stores data for Elasticsearch connection
type ElasticsearchConfiguration struct {
	URL string
}

// MQTTConfiguration stores the broker settings for the event feed
type MQTTConfiguration struct {
	Broker      string
	ClientID    string
	TopicPrefix string
}

// PolicyConfiguration stores evaluation settings
type PolicyConfiguration struct {
	DefaultAction string
}

// EnforcementConfiguration stores reconciler settings
type EnforcementConfiguration struct {
	Chain             string
	DryRun            bool
	ReconcileInterval string
	DirectiveTimeout  string
	MaxRetries        int
}

var config *Configuration

func InitConfig() error {
	viper.AddConfigPath("config") // path to look for the config file in
	viper.SetConfigName("config") // name of the config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name

	viper.AutomaticEnv() // read in environment variables that match

	// Set default configurations
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("neo4j.uri", "bolt://localhost:7687")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.defaultCacheTTL", "10m")
	viper.SetDefault("elasticsearch.url", "http://localhost:9200")
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.clientID", "warden-core")
	viper.SetDefault("mqtt.topicPrefix", "net/events")
	viper.SetDefault("log.file", "logging/api.log")

	// Evaluation falls back to this action when no policy matches.
	// log_only is allow-with-log: traffic passes but the decision is audited.
	viper.SetDefault("policy.defaultAction", "log_only")

	viper.SetDefault("enforcement.chain", "WARDEN_POLICIES")
	viper.SetDefault("enforcement.dryRun", false)
	viper.SetDefault("enforcement.reconcileInterval", "30s")
	viper.SetDefault("enforcement.directiveTimeout", "5s")
	viper.SetDefault("enforcement.maxRetries", 3)

	viper.SetDefault("events.workers", 4)

	// Trust factor weights per event type. Impacts are summed over the
	// neutral baseline of 50 and clamped to [0,100].
	viper.SetDefault("trust.weights.deviceSeen", 5)
	viper.SetDefault("trust.weights.newDevice", -10)
	viper.SetDefault("trust.weights.cleanWeek", 15)
	viper.SetDefault("trust.weights.dnsThreatPerSeverity", -5)
	viper.SetDefault("trust.weights.confirmedThreatHit", -40)
	viper.SetDefault("trust.weights.riskHigh", -20)
	viper.SetDefault("trust.weights.riskCritical", -40)
	viper.SetDefault("trust.weights.securityAlertPerSeverity", -10)
	viper.SetDefault("trust.factorTTL", "168h")
	viper.SetDefault("trust.cleanWeekWindow", "168h")
	viper.SetDefault("trust.cleanWeekInterval", "24h")

	// Attempt to read the config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Println("No config file found. Using default settings and environment variables.")
		} else {
			return err
		}
	}

	// Unmarshal the configuration into the Configuration struct
	err := viper.Unmarshal(&config)
	if err != nil {
		return err
	}

	return nil
}

// GetConfig returns the loaded configuration
func GetConfig() *Configuration {
	return config
}

// GetString retrieves a string value from the configuration
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt retrieves an integer value from the configuration
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool retrieves a boolean value from the configuration
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration retrieves a duration value from the configuration
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}
