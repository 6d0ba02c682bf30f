package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

func getEnv(key, defaultValue string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	return value
}

func loadEnvString(key string, result *string) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	*result = s
}

func loadEnvUint(key string, result *uint) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = uint(n)
}

func loadEnvInt(key string, result *int) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return
	}
	*result = n
}

func loadEnvFloat(key string, result *float64) {
	s, ok := os.LookupEnv(key)

	if !ok {
		return
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return
	}
	*result = f
}

/* Configuration */

/* PgSQL Configuration */
type pgSqlConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Database string `json:"database"`
	SslMode  string `json:"ssl_mode"`
	User     string `json:"user"`
	Password string `json:"password"`
}

func (p pgSqlConfig) ConnStr() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s database=%s sslmode=%s", p.Host, p.Port, p.User, p.Password, p.Database, p.SslMode)
}

func defaultPgSql() pgSqlConfig {
	return pgSqlConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "database",
		User:     "",
		Password: "",
		SslMode:  "disable",
	}
}

func (p *pgSqlConfig) loadFromEnv() {
	loadEnvString("POSTGRES_HOST", &p.Host)
	loadEnvUint("POSTGRES_PORT", &p.Port)
	loadEnvString("POSTGRES_DB_NAME", &p.Database)
	loadEnvString("POSTGRES_SSLMODE", &p.SslMode)
	loadEnvString("POSTGRES_USERNAME", &p.User)
	loadEnvString("POSTGRES_PASSWORD", &p.Password)
}

/* Listen Configuration */

type listenConfig struct {
	Host string `json:"host"`
	Port uint   `json:"port"`
}

func (l listenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

func defaultListenConfig() listenConfig {
	return listenConfig{
		Host: "127.0.0.1",
		Port: 8080,
	}
}

func (l *listenConfig) loadFromEnv() {
	loadEnvString("LISTEN_HOST", &l.Host)
	loadEnvUint("LISTEN_PORT", &l.Port)
}

/* Reddit API Configuration */

type RedditConfig struct {
	ClientID     string
	ClientSecret string
	UserAgent    string
	BaseURL      string
	TokenURL     string
	Timeout      time.Duration
}

func (r *RedditConfig) loadFromEnv() {
	loadEnvString("REDDIT_CLIENT_ID", &r.ClientID)
	loadEnvString("REDDIT_CLIENT_SECRET", &r.ClientSecret)
	loadEnvString("REDDIT_USER_AGENT", &r.UserAgent)
	loadEnvString("REDDIT_BASE_URL", &r.BaseURL)
	loadEnvString("REDDIT_TOKEN_URL", &r.TokenURL)

	if timeoutStr := getEnv("REDDIT_API_TIMEOUT", ""); timeoutStr != "" {
		if seconds, err := strconv.Atoi(timeoutStr); err == nil {
			r.Timeout = time.Duration(seconds) * time.Second
		}
	}
}

func defaultRedditConfig() RedditConfig {
	return RedditConfig{
		ClientID:     "",
		ClientSecret: "",
		UserAgent:    "AuraChat:v2.0:empathy_research",
		BaseURL:      "https://oauth.reddit.com",
		TokenURL:     "https://www.reddit.com/api/v1/access_token",
		Timeout:      30 * time.Second,
	}
}

/* Crawl Configuration */

type CrawlConfig struct {
	Communities        []string
	PostsPerCommunity  int
	CommentsPerPost    int
	MinCommentLength   int
	MaxCommentLength   int
	MinPostScore       int
	MinCommentScore    int
	MinEmpathyKeywords int
	MinCategories      int
	BatchSize          int
	Concurrency        int
	RequestsPerSecond  float64
	FlushThreshold     int
	OutputDir          string
	CheckpointPath     string
	DrainTimeout       time.Duration
}

func (c *CrawlConfig) loadFromEnv() {
	if list := getEnv("CRAWL_COMMUNITIES", ""); list != "" {
		parts := strings.Split(list, ",")
		communities := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				communities = append(communities, trimmed)
			}
		}
		if len(communities) > 0 {
			c.Communities = communities
		}
	}

	loadEnvInt("CRAWL_POSTS_PER_COMMUNITY", &c.PostsPerCommunity)
	loadEnvInt("CRAWL_COMMENTS_PER_POST", &c.CommentsPerPost)
	loadEnvInt("CRAWL_MIN_COMMENT_LENGTH", &c.MinCommentLength)
	loadEnvInt("CRAWL_MAX_COMMENT_LENGTH", &c.MaxCommentLength)
	loadEnvInt("CRAWL_MIN_POST_SCORE", &c.MinPostScore)
	loadEnvInt("CRAWL_MIN_COMMENT_SCORE", &c.MinCommentScore)
	loadEnvInt("CRAWL_MIN_EMPATHY_KEYWORDS", &c.MinEmpathyKeywords)
	loadEnvInt("CRAWL_MIN_CATEGORIES", &c.MinCategories)
	loadEnvInt("CRAWL_BATCH_SIZE", &c.BatchSize)
	loadEnvInt("CRAWL_CONCURRENCY", &c.Concurrency)
	loadEnvFloat("CRAWL_REQUESTS_PER_SECOND", &c.RequestsPerSecond)
	loadEnvInt("CRAWL_FLUSH_THRESHOLD", &c.FlushThreshold)
	loadEnvString("CRAWL_OUTPUT_DIR", &c.OutputDir)
	loadEnvString("CRAWL_CHECKPOINT_PATH", &c.CheckpointPath)

	if drainStr := getEnv("CRAWL_DRAIN_TIMEOUT", ""); drainStr != "" {
		if seconds, err := strconv.Atoi(drainStr); err == nil {
			c.DrainTimeout = time.Duration(seconds) * time.Second
		}
	}
}

// DefaultCommunities is the curated list of support-oriented communities the
// crawler targets when no explicit list is configured.
var DefaultCommunities = []string{
	// Mental health and support
	"therapy", "depression", "Anxiety", "ADHD", "autism",
	"BipolarReddit", "SuicideWatch", "PTSD", "MentalHealth", "askatherapist",
	"RedditorsInRecovery", "StopDrinking", "socialanxiety", "OCD", "BorderlinePDisorder",
	"eating_disorders", "selfharm", "BipolarSOs", "mentalillness", "getting_over_it",

	// Relationship and life support
	"relationship_advice", "breakups", "dating_advice", "AmItheAsshole", "offmychest",
	"TrueOffMyChest", "confessions", "lonely", "ForeverAlone", "MomForAMinute",
	"DadForAMinute", "internetparents", "CasualConversation", "KindVoice", "FreeCompliments",

	// Specialized support and wholesome
	"raisedbynarcissists", "CPTSD", "GriefSupport", "cancer", "ChronicPain",
	"disability", "loseit", "stopgaming", "leaves", "NoFap",
	"wholesomememes", "MadeMeSmile", "HumansBeingBros", "GetMotivated", "decidingtobebetter",
}

func defaultCrawlConfig() CrawlConfig {
	return CrawlConfig{
		Communities:        DefaultCommunities,
		PostsPerCommunity:  500,
		CommentsPerPost:    20,
		MinCommentLength:   20,
		MaxCommentLength:   2000,
		MinPostScore:       5,
		MinCommentScore:    1,
		MinEmpathyKeywords: 2,
		MinCategories:      1,
		BatchSize:          50,
		Concurrency:        8,
		RequestsPerSecond:  1.0,
		FlushThreshold:     1000,
		OutputDir:          "data/raw",
		CheckpointPath:     "data/checkpoints/crawl_checkpoint.json",
		DrainTimeout:       30 * time.Second,
	}
}

type natsConfig struct {
	Host             string
	Port             uint
	Username         string
	Password         string
	JetStreamEnabled bool
	PortMonitoring   uint
}

func (c *natsConfig) loadFromEnv() {
	c.Host = getEnv("NATS_HOST", "localhost")

	// Load port with default 4222
	if portStr := getEnv("NATS_PORT", "4222"); portStr != "" {
		if port, err := strconv.Atoi(portStr); err == nil {
			c.Port = uint(port)
		} else {
			c.Port = 4222
		}
	} else {
		c.Port = 4222
	}

	c.Username = getEnv("NATS_USER", "")
	c.Password = getEnv("NATS_PASSWORD", "")

	// Load JetStream enabled flag
	if jsEnabled := getEnv("NATS_JETSTREAM_ENABLED", "true"); jsEnabled == "true" {
		c.JetStreamEnabled = true
	} else {
		c.JetStreamEnabled = false
	}

	// Load monitoring port
	if portMonitorStr := getEnv("NATS_PORT_MONITORING", "8222"); portMonitorStr != "" {
		if portMonitor, err := strconv.Atoi(portMonitorStr); err == nil {
			c.PortMonitoring = uint(portMonitor)
		} else {
			c.PortMonitoring = 8222
		}
	} else {
		c.PortMonitoring = 8222
	}
}

func (c *natsConfig) URL() string {
	return fmt.Sprintf("nats://%s:%d", c.Host, c.Port)
}

func defaultNatsConfig() natsConfig {
	return natsConfig{
		Host:             "localhost",
		Port:             4222,
		Username:         "",
		Password:         "",
		JetStreamEnabled: true,
		PortMonitoring:   8222,
	}
}

type securityConfig struct {
	BackendApiKey string
}

func (s *securityConfig) loadFromEnv() {
	s.BackendApiKey = getEnv("BACKEND_API_KEY", "")
}

func defaultSecurityConfig() securityConfig {
	return securityConfig{
		BackendApiKey: "",
	}
}

type redisConfig struct {
	Host     string `json:"host"`
	Port     uint   `json:"port"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

func (r *redisConfig) loadFromEnv() {
	loadEnvString("REDIS_HOST", &r.Host)
	loadEnvUint("REDIS_PORT", &r.Port)
	loadEnvString("REDIS_PASSWORD", &r.Password)

	// Load DB number with a default of 0
	if dbStr := getEnv("REDIS_DB", "0"); dbStr != "" {
		if db, err := strconv.Atoi(dbStr); err == nil {
			r.DB = db
		}
	}
	log.Info().Interface("redis", r).Msg("Redis config loaded")
}

func defaultRedisConfig() redisConfig {
	return redisConfig{
		Host:     "localhost",
		Port:     6379,
		Password: "",
		DB:       0,
	}
}

type GCSConfig struct {
	ProjectID       string
	CredentialsFile string
	Bucket          string
}

func (g *GCSConfig) loadFromEnv() {
	g.ProjectID = getEnv("GCS_PROJECT_ID", "")
	g.CredentialsFile = getEnv("GCS_CREDENTIALS_FILE", "")
	g.Bucket = getEnv("GCS_STORAGE_BUCKET", "")
}

func defaultGcsConfig() GCSConfig {
	return GCSConfig{
		ProjectID:       "",
		CredentialsFile: "",
		Bucket:          "",
	}
}

type Config struct {
	Listen   listenConfig
	PgSql    pgSqlConfig
	Security securityConfig
	Nats     natsConfig
	Redis    redisConfig
	GCS      GCSConfig
	Reddit   RedditConfig
	Crawl    CrawlConfig
}

func (c *Config) LoadFromEnv() {
	c.Listen.loadFromEnv()
	c.PgSql.loadFromEnv()
	c.Security.loadFromEnv()
	c.Nats.loadFromEnv()
	c.Redis.loadFromEnv()
	c.GCS.loadFromEnv()
	c.Reddit.loadFromEnv()
	c.Crawl.loadFromEnv()
}

func DefaultConfig() Config {
	return Config{
		Listen:   defaultListenConfig(),
		PgSql:    defaultPgSql(),
		Security: defaultSecurityConfig(),
		Nats:     defaultNatsConfig(),
		Redis:    defaultRedisConfig(),
		GCS:      defaultGcsConfig(),
		Reddit:   defaultRedditConfig(),
		Crawl:    defaultCrawlConfig(),
	}
}
