package config

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/spf13/viper"

	"clipstream/constant"
)

type Config struct {
	App     App           `yaml:"app"`
	Server  Server        `yaml:"server"`
	DB      *sql.DB       `yaml:"db"`
	Queue   *RabbitMQ     `yaml:"rabbitmq"`
	Minio   *minio.Client `yaml:"minio"`
	Storage Storage       `yaml:"storage"`
	Auth    Auth          `yaml:"auth"`
	Encoder Encoder       `yaml:"encoder"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort      string  `yaml:"http_port"`
	RateLimit     float64 `yaml:"rate_limit"`
	RateBurst     int     `yaml:"rate_burst"`
	MaxUploadSize int64   `yaml:"max_upload_size"`
}

type Storage struct {
	Backend       constant.StorageBackend `yaml:"backend"`
	DataDir       string                  `yaml:"data_dir"`
	MinioBucket   string                  `yaml:"minio_bucket"`
	MinioPrefix   string                  `yaml:"minio_prefix"`
	ChunkSize     int                     `yaml:"chunk_size"`
	MaxObjectSize int64                   `yaml:"max_object_size"`
}

type Auth struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

// Encoder is the fixed command template used for streaming playback. No
// request-supplied values are ever appended to Args.
type Encoder struct {
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	ContentType string   `yaml:"content_type"`
}

type RabbitMQ struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

func Load(path string) (*Config, error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.SetDefault("storage.backend", constant.StorageBackendFS.String())
	viper.SetDefault("storage.data_dir", "data/objects")
	viper.SetDefault("storage.chunk_size", 2<<20)
	viper.SetDefault("storage.max_object_size", 512<<20)
	viper.SetDefault("server.rate_limit", 100.0/(15*60))
	viper.SetDefault("server.rate_burst", 100)
	viper.SetDefault("server.max_upload_size", 512<<20)
	viper.SetDefault("auth.token_ttl", "168h")
	viper.SetDefault("encoder.command", "ffmpeg")
	viper.SetDefault("encoder.content_type", "video/mp4")

	err := viper.ReadInConfig()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", viper.GetString("postgresql_host"))
	if err != nil {
		return nil, err
	}

	rabbitmq := &RabbitMQ{
		Host:         viper.GetString("rabbitmq_host"),
		Port:         viper.GetInt("rabbitmq_port"),
		User:         viper.GetString("rabbitmq_user"),
		Pass:         viper.GetString("rabbitmq_pass"),
		Kind:         viper.GetString("rabbitmq_kind"),
		ExchangeName: viper.GetString("rabbitmq_exchange"),
	}

	var minioClient *minio.Client
	if viper.GetString("minio.url") != "" {
		minioClient, err = minio.New(viper.GetString("minio.url"), &minio.Options{
			Creds:  credentials.NewStaticV4(viper.GetString("minio.access_id"), viper.GetString("minio.secret_access_key"), ""),
			Secure: false,
		})
		if err != nil {
			return nil, err
		}
	}

	return &Config{
		App: App{
			Environment: viper.GetString("app.environment"),
			Host:        viper.GetString("app.host"),
			Protocol:    viper.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:      viper.GetString("server.port"),
			RateLimit:     viper.GetFloat64("server.rate_limit"),
			RateBurst:     viper.GetInt("server.rate_burst"),
			MaxUploadSize: viper.GetInt64("server.max_upload_size"),
		},
		Storage: Storage{
			Backend:       constant.StorageBackend(viper.GetString("storage.backend")),
			DataDir:       viper.GetString("storage.data_dir"),
			MinioBucket:   viper.GetString("storage.minio_bucket"),
			MinioPrefix:   viper.GetString("storage.minio_prefix"),
			ChunkSize:     viper.GetInt("storage.chunk_size"),
			MaxObjectSize: viper.GetInt64("storage.max_object_size"),
		},
		Auth: Auth{
			JWTSecret: viper.GetString("auth.jwt_secret"),
			TokenTTL:  viper.GetDuration("auth.token_ttl"),
		},
		Encoder: Encoder{
			Command:     viper.GetString("encoder.command"),
			Args:        viper.GetStringSlice("encoder.args"),
			ContentType: viper.GetString("encoder.content_type"),
		},
		DB:    db,
		Queue: rabbitmq,
		Minio: minioClient,
	}, nil
}
