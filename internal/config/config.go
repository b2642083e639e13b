package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 结构体包含所有应用的配置
type Config struct {
	Server    ServerConfig    `mapstructure:"server"` // `mapstructure` 标签用于Viper绑定结构体
	MySQL     MySQLConfig     `mapstructure:"mysql"`
	Redis     RedisConfig     `mapstructure:"redis"`
	MinIO     MinIOConfig     `mapstructure:"minio"`
	AliyunOSS AliyunOSSConfig `mapstructure:"aliyun_oss"`
	RabbitMQ  RabbitMQConfig  `mapstructure:"rabbitmq"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Share     ShareConfig     `mapstructure:"share"`
	Log       LogConfig       `mapstructure:"log"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"` // development / production
}

// MySQLConfig 数据库配置
type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// MinIOConfig MinIO配置
type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

type AliyunOSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"` // 例如: oss-cn-hangzhou.aliyuncs.com
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	BucketName      string `mapstructure:"bucket_name"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// RabbitMQConfig RabbitMQ配置
type RabbitMQConfig struct {
	Enabled bool   `mapstructure:"enabled"` // 关闭时删除任务退化为进程内定时器
	URL     string `mapstructure:"url"`
}

// JWTConfig JWT配置，用于下载令牌和管理接口认证
type JWTConfig struct {
	SecretKey           string        `mapstructure:"secret_key"`
	DownloadTokenExpiry time.Duration `mapstructure:"download_token_expiry"` // 一次性下载令牌有效期
	Issuer              string        `mapstructure:"issuer"`
}

// StorageConfig 存储后端配置
type StorageConfig struct {
	Type          string `mapstructure:"type"`            // local / minio / aliyun_oss
	RecordStore   string `mapstructure:"record_store"`    // mysql / memory
	LocalBasePath string `mapstructure:"local_base_path"` // local 后端的根目录
	Compress      bool   `mapstructure:"compress"`        // local 后端是否 gzip 落盘
}

// ShareConfig 分享业务配置
type ShareConfig struct {
	BaseURL         string        `mapstructure:"base_url"`         // 生成分享链接的前缀
	MaxUploadSize   int64         `mapstructure:"max_upload_size"`  // 上传大小上限（字节）
	DeleteDelay     time.Duration `mapstructure:"delete_delay"`     // 最后一次浏览后延迟多久删除
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"` // 后台清理扫描间隔
}

// zap日志配置
type LogConfig struct {
	OutputPath string `mapstructure:"output_path"`
	ErrorPath  string `mapstructure:"error_path"`
	Level      string `mapstructure:"level"`
}

var AppConfig *Config // 全局应用配置实例

// LoadConfig 加载配置
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")              // 配置文件名 (不带扩展名)
	viper.SetConfigType("yaml")                // 配置文件类型
	viper.AddConfigPath(".")                   // 在当前目录查找配置文件
	viper.AddConfigPath("./configs")           // 也可以添加其他路径，例如 ./configs/
	viper.AddConfigPath("/etc/go-flashshare/") // 生产环境常见路径

	// 读取环境变量，例如 GO_FLASHSHARE_SERVER_PORT 对应 server.port
	viper.SetEnvPrefix("GO_FLASHSHARE")
	viper.AutomaticEnv()

	// 替换环境变量中的点为下划线，确保 MYSQL_DSN 能映射到 mysql.dsn
	replacer := strings.NewReplacer(".", "_")
	viper.SetEnvKeyReplacer(replacer)

	// 设置默认值 (如果配置文件和环境变量中都没有，则使用这些默认值)
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("storage.type", "local")
	viper.SetDefault("storage.record_store", "mysql")
	viper.SetDefault("storage.local_base_path", "./data/blobs")
	viper.SetDefault("storage.compress", false)
	viper.SetDefault("share.base_url", "http://localhost:8080")
	viper.SetDefault("share.max_upload_size", int64(5)<<30) // 5GB
	viper.SetDefault("share.delete_delay", 30*time.Second)
	viper.SetDefault("share.cleanup_interval", 10*time.Minute)
	viper.SetDefault("jwt.download_token_expiry", 5*time.Minute)
	viper.SetDefault("jwt.issuer", "go-flashshare")
	viper.SetDefault("rabbitmq.enabled", false)
	viper.SetDefault("log.output_path", "logs/app.log")
	viper.SetDefault("log.error_path", "logs/error.log")
	viper.SetDefault("log.level", "info")

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// 配置文件未找到不是致命错误，可以依赖环境变量和默认值
			log.Println("Warning: config file not found, using environment variables or default values.")
		} else {
			// 其他读取错误，例如配置文件格式错误
			return nil, err
		}
	}

	// 将读取到的配置绑定到结构体
	AppConfig = &Config{}
	if err := viper.Unmarshal(AppConfig); err != nil {
		log.Fatalf("Fatal error unmarshaling config: %s \n", err)
		return nil, err
	}

	return AppConfig, nil
}
