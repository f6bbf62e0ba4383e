package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port        string `mapstructure:"port"`
		MetricsPort string `mapstructure:"metrics_port"`
		LogLevel    string `mapstructure:"log_level"`
	} `mapstructure:"server"`
	Redis struct {
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`
	Database struct {
		Host     string `mapstructure:"host"`
		Port     string `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
	} `mapstructure:"database"`
	Chain struct {
		RPCURL          string `mapstructure:"rpc_url"`
		ToursContract   string `mapstructure:"tours_contract"`
		PollInterval    int    `mapstructure:"poll_interval_seconds"`
		StartBlockLag   int64  `mapstructure:"start_block_lag"`
		ConfirmationLag int64  `mapstructure:"confirmation_lag"`
	} `mapstructure:"chain"`
	Radio struct {
		KeeperSecret       string `mapstructure:"keeper_secret"`
		HeartbeatSeconds   int    `mapstructure:"heartbeat_seconds"`
		QueueWindow        int    `mapstructure:"queue_window"`
		VoiceNoteWindow    int    `mapstructure:"voice_note_window"`
		JWTSecret          string `mapstructure:"jwt_secret"`
		AnnounceNowPlaying bool   `mapstructure:"announce_now_playing"`
	} `mapstructure:"radio"`
	IPFS struct {
		PinataJWT  string `mapstructure:"pinata_jwt"`
		GatewayURL string `mapstructure:"gateway_url"`
	} `mapstructure:"ipfs"`
	Farcaster struct {
		NeynarAPIKey string `mapstructure:"neynar_api_key"`
		SignerUUID   string `mapstructure:"signer_uuid"`
		Channel      string `mapstructure:"channel"`
	} `mapstructure:"farcaster"`
	Storage struct {
		Provider     string `mapstructure:"provider"`
		KeyID        string `mapstructure:"key_id"`
		AppKey       string `mapstructure:"app_key"`
		Endpoint     string `mapstructure:"endpoint"`
		Region       string `mapstructure:"region"`
		BucketMedia  string `mapstructure:"bucket_media"`
		LocalStorage string `mapstructure:"local_path"`
	} `mapstructure:"storage"`
	Services struct {
		GeoContactEmail string `mapstructure:"geo_contact_email"`
	} `mapstructure:"services"`
}

func Load() *Config {
	viper.SetEnvPrefix("TOURS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Register keys
	viper.BindEnv("server.port")
	viper.BindEnv("server.metrics_port")
	viper.BindEnv("server.log_level")

	viper.BindEnv("redis.addr")
	viper.BindEnv("redis.password")
	viper.BindEnv("redis.db")

	viper.BindEnv("database.host")
	viper.BindEnv("database.port")
	viper.BindEnv("database.user")
	viper.BindEnv("database.password")
	viper.BindEnv("database.name")

	viper.BindEnv("chain.rpc_url")
	viper.BindEnv("chain.tours_contract")
	viper.BindEnv("chain.poll_interval_seconds")
	viper.BindEnv("chain.start_block_lag")
	viper.BindEnv("chain.confirmation_lag")

	viper.BindEnv("radio.keeper_secret")
	viper.BindEnv("radio.heartbeat_seconds")
	viper.BindEnv("radio.queue_window")
	viper.BindEnv("radio.voice_note_window")
	viper.BindEnv("radio.jwt_secret")
	viper.BindEnv("radio.announce_now_playing")

	viper.BindEnv("ipfs.pinata_jwt")
	viper.BindEnv("ipfs.gateway_url")

	viper.BindEnv("farcaster.neynar_api_key")
	viper.BindEnv("farcaster.signer_uuid")
	viper.BindEnv("farcaster.channel")

	viper.BindEnv("storage.provider")
	viper.BindEnv("storage.key_id")
	viper.BindEnv("storage.app_key")
	viper.BindEnv("storage.endpoint")
	viper.BindEnv("storage.region")
	viper.BindEnv("storage.bucket_media")
	viper.BindEnv("storage.local_path")

	viper.BindEnv("services.geo_contact_email")

	// Defaults
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("server.metrics_port", ":9091")
	viper.SetDefault("server.log_level", "info")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("chain.poll_interval_seconds", 15)
	viper.SetDefault("chain.start_block_lag", 100)
	viper.SetDefault("chain.confirmation_lag", 2)

	viper.SetDefault("radio.heartbeat_seconds", 30)
	viper.SetDefault("radio.queue_window", 20)
	viper.SetDefault("radio.voice_note_window", 10)
	viper.SetDefault("radio.announce_now_playing", true)

	viper.SetDefault("ipfs.gateway_url", "https://gateway.pinata.cloud/ipfs")

	viper.SetDefault("storage.provider", "local")
	viper.SetDefault("storage.local_path", "./media_mirror")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("../")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Printf("Warning: Config error: %s", err)
		} else {
			log.Println("Info: config.yaml not found, using Environment Variables only.")
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}

	if cfg.Radio.KeeperSecret == "" {
		log.Fatal("Critical: Keeper secret is missing (TOURS_RADIO_KEEPER_SECRET)")
	}

	return &cfg
}
