package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"aggregator/infra/feed"
	"aggregator/service"
)

const (
	TransportWebSocket = "ws"
	TransportKafka     = "kafka"
	TransportJournal   = "journal"
)

// Feed describes one exchange connection.
type Feed struct {
	Name      string
	Transport string
	URL       string
	Init      string
	Decoder   string
	Topic     string
}

// Config is the whole process configuration.
type Config struct {
	GRPCAddr string
	WSAddr   string

	Depth       int
	Mode        service.Mode
	SendBuffer  int
	SendTimeout time.Duration

	CheckpointDir      string
	CheckpointInterval time.Duration

	KafkaBrokers  []string
	KafkaTopic    string
	KafkaInterval time.Duration
	KafkaGroup    string

	// JournalDir records raw payloads of live feeds when set, and is
	// where journal-transport feeds replay from.
	JournalDir  string
	JournalPace bool
	// JournalRetention drops recorded segments older than this; 0 keeps all.
	JournalRetention time.Duration

	// StdinForward sends every stdin line to every writable feed.
	StdinForward bool

	Feeds []Feed
}

// presets are the feeds the aggregator knows out of the box.
var presets = map[string]Feed{
	"binance": {
		Name:      "binance",
		Transport: TransportWebSocket,
		URL:       "wss://stream.binance.us:9443/ws/ethbtc@depth20@100ms",
		Decoder:   feed.DecoderPlain,
	},
	"bitstamp": {
		Name:      "bitstamp",
		Transport: TransportWebSocket,
		URL:       "wss://ws.bitstamp.net",
		Init:      `{"event":"bts:subscribe","data":{"channel":"order_book_ethbtc"}}`,
		Decoder:   feed.DecoderEnvelope,
	},
}

// Load reads the optional env files (".env" when none are given) and
// then the process environment. Variables already set win over files.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("config: load env file: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the environment alone.
func FromEnv() (Config, error) {
	var (
		cfg Config
		err error
	)

	cfg.GRPCAddr = str("AGG_GRPC_ADDR", "[::1]:10000")
	cfg.WSAddr = str("AGG_WS_ADDR", "")

	if cfg.Depth, err = integer("AGG_DEPTH", 0); err != nil {
		return Config{}, err
	}
	if cfg.Mode, err = service.ParseMode(os.Getenv("AGG_STREAM_MODE")); err != nil {
		return Config{}, fmt.Errorf("config: AGG_STREAM_MODE: %w", err)
	}
	if cfg.SendBuffer, err = integer("AGG_SEND_BUFFER", 4); err != nil {
		return Config{}, err
	}
	if cfg.SendTimeout, err = duration("AGG_SEND_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}

	cfg.CheckpointDir = str("AGG_CHECKPOINT_DIR", "")
	if cfg.CheckpointInterval, err = duration("AGG_CHECKPOINT_INTERVAL", 2*time.Second); err != nil {
		return Config{}, err
	}

	cfg.KafkaBrokers = list("AGG_KAFKA_BROKERS")
	cfg.KafkaTopic = str("AGG_KAFKA_TOPIC", "orderbook.summary")
	cfg.KafkaGroup = str("AGG_KAFKA_GROUP", "aggregator")
	if cfg.KafkaInterval, err = duration("AGG_KAFKA_INTERVAL", 250*time.Millisecond); err != nil {
		return Config{}, err
	}

	cfg.JournalDir = str("AGG_JOURNAL_DIR", "")
	if cfg.JournalPace, err = boolean("AGG_JOURNAL_PACE", true); err != nil {
		return Config{}, err
	}
	if cfg.JournalRetention, err = duration("AGG_JOURNAL_RETENTION", 24*time.Hour); err != nil {
		return Config{}, err
	}

	if cfg.StdinForward, err = boolean("AGG_STDIN_FORWARD", false); err != nil {
		return Config{}, err
	}

	names := list("AGG_FEEDS")
	if _, set := os.LookupEnv("AGG_FEEDS"); !set {
		names = []string{"binance", "bitstamp"}
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.ToLower(name)
		if seen[name] {
			return Config{}, fmt.Errorf("config: feed %q listed twice", name)
		}
		seen[name] = true

		f, err := feedFromEnv(name)
		if err != nil {
			return Config{}, err
		}
		if f.Transport == TransportJournal && cfg.JournalDir == "" {
			return Config{}, fmt.Errorf("config: feed %s: journal transport needs AGG_JOURNAL_DIR", name)
		}
		cfg.Feeds = append(cfg.Feeds, f)
	}
	return cfg, nil
}

func feedFromEnv(name string) (Feed, error) {
	f, ok := presets[name]
	if !ok {
		f = Feed{Name: name, Transport: TransportWebSocket, Decoder: feed.DecoderPlain}
	}

	prefix := "AGG_FEED_" + strings.ToUpper(name) + "_"
	f.URL = str(prefix+"URL", f.URL)
	f.Init = str(prefix+"INIT", f.Init)
	f.Decoder = strings.ToLower(str(prefix+"DECODER", f.Decoder))
	f.Transport = strings.ToLower(str(prefix+"TRANSPORT", f.Transport))
	f.Topic = str(prefix+"TOPIC", f.Topic)

	if _, err := feed.NewDecoder(f.Decoder); err != nil {
		return Feed{}, fmt.Errorf("config: feed %s: %w", name, err)
	}
	switch f.Transport {
	case TransportWebSocket:
		if f.URL == "" {
			return Feed{}, fmt.Errorf("config: feed %s: %sURL is required", name, prefix)
		}
	case TransportKafka:
		if f.Topic == "" {
			return Feed{}, fmt.Errorf("config: feed %s: %sTOPIC is required", name, prefix)
		}
	case TransportJournal:
	default:
		return Feed{}, fmt.Errorf("config: feed %s: unknown transport %q", name, f.Transport)
	}
	return f, nil
}

// -------------------- env helpers --------------------

func str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func list(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func integer(key string, def int) (int, error) {
	v := str(key, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("config: %s=%q is not a non-negative integer", key, v)
	}
	return n, nil
}

func boolean(key string, def bool) (bool, error) {
	v := str(key, "")
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s=%q is not a boolean", key, v)
	}
	return b, nil
}

func duration(key string, def time.Duration) (time.Duration, error) {
	v := str(key, "")
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("config: %s=%q is not a duration", key, v)
	}
	return d, nil
}
