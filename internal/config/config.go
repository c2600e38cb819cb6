// Package config holds the reader's runtime settings.
//
// Values resolve in this order, later sources winning: struct defaults, a
// .env file, READER_* environment variables, command-line flags. The struct
// is embedded in the kong command tree so flags and environment lookups are
// resolved by the same parser.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/FocuswithJustin/JuniperReader/core/reader"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// EnvFile is the dotenv file read from the working directory.
const EnvFile = ".env"

// Config is the complete runtime configuration.
type Config struct {
	LogLevel  string `name:"log-level" env:"READER_LOG_LEVEL" default:"info" enum:"debug,info,warn,error" help:"Log level (debug, info, warn, error)"`
	LogFormat string `name:"log-format" env:"READER_LOG_FORMAT" default:"json" enum:"json,text" help:"Log format (json, text)"`

	SelectionWait time.Duration `name:"selection-wait" env:"READER_SELECTION_WAIT" default:"1s" help:"Quiet window before a dragged selection turns the page"`

	Style StyleConfig `embed:"" prefix:"style-" envprefix:"READER_STYLE_"`

	StorePath string `name:"store" env:"READER_STORE" default:"annotations.db" help:"SQLite annotation database"`
	UploadDir string `name:"uploads" env:"READER_UPLOADS" default:"uploads" help:"Directory for uploaded books"`

	Addr           string        `name:"addr" env:"READER_ADDR" default:"127.0.0.1:8080" help:"Bridge listen address"`
	SessionTTL     time.Duration `name:"session-ttl" env:"READER_SESSION_TTL" default:"30m" help:"How long an opened book stays cached"`
	AllowedOrigins []string      `name:"allowed-origin" env:"READER_ALLOWED_ORIGINS" default:"*" help:"Origins allowed to open a bridge session"`
}

// StyleConfig is the typographic part of Config.
type StyleConfig struct {
	FontSize        float64 `name:"font-size" env:"FONT_SIZE" default:"1.2" help:"Font size in em"`
	Spacing         float64 `name:"spacing" env:"SPACING" default:"1.5" help:"Line height"`
	FontColor       string  `name:"font-color" env:"FONT_COLOR" default:"#66ccff" help:"Text color"`
	BackgroundColor string  `name:"background" env:"BACKGROUND" default:"#000000" help:"Background color"`
	Justify         bool    `name:"justify" env:"JUSTIFY" default:"true" negatable:"" help:"Justify paragraphs"`
	Hyphenate       bool    `name:"hyphenate" env:"HYPHENATE" default:"true" negatable:"" help:"Hyphenate paragraphs"`
	TopMargin       int     `name:"top-margin" env:"TOP_MARGIN" default:"100" help:"Top margin in pixels"`
	BottomMargin    int     `name:"bottom-margin" env:"BOTTOM_MARGIN" default:"100" help:"Bottom margin in pixels"`
	SideMargin      int     `name:"side-margin" env:"SIDE_MARGIN" default:"5" help:"Column gap in percent"`
	Scroll          bool    `name:"scroll" env:"SCROLL" help:"Scrolled instead of paginated flow"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	s := reader.DefaultStyle()
	return Config{
		LogLevel:       "info",
		LogFormat:      "json",
		SelectionWait:  time.Second,
		Style:          FromStyle(s),
		StorePath:      "annotations.db",
		UploadDir:      "uploads",
		Addr:           "127.0.0.1:8080",
		SessionTTL:     30 * time.Minute,
		AllowedOrigins: []string{"*"},
	}
}

// LoadEnv reads a dotenv file into the process environment. Variables
// that are already set keep their value. A missing file is not an error.
func LoadEnv(path string) error {
	if path == "" {
		path = EnvFile
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Validate checks values the parser cannot.
func (c Config) Validate() error {
	if c.SelectionWait < 0 {
		return fmt.Errorf("selection wait must not be negative: %v", c.SelectionWait)
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("session ttl must be positive: %v", c.SessionTTL)
	}
	if c.Style.FontSize <= 0 {
		return fmt.Errorf("font size must be positive: %v", c.Style.FontSize)
	}
	if c.Style.SideMargin < 0 || c.Style.SideMargin > 50 {
		return fmt.Errorf("side margin out of range: %d", c.Style.SideMargin)
	}
	return nil
}

// InitLogging configures the global logger from the config.
func (c Config) InitLogging() {
	logging.InitLogger(logging.ParseLevel(c.LogLevel), logging.ParseFormat(c.LogFormat))
}

// ReaderStyle converts the style settings for the orchestrator.
func (c Config) ReaderStyle() reader.Style {
	s := c.Style
	return reader.Style{
		FontSize:        s.FontSize,
		Spacing:         s.Spacing,
		FontColor:       s.FontColor,
		BackgroundColor: s.BackgroundColor,
		Justify:         s.Justify,
		Hyphenate:       s.Hyphenate,
		TopMargin:       s.TopMargin,
		BottomMargin:    s.BottomMargin,
		SideMargin:      s.SideMargin,
		Scroll:          s.Scroll,
	}
}

// FromStyle is the inverse of Config.ReaderStyle.
func FromStyle(s reader.Style) StyleConfig {
	return StyleConfig{
		FontSize:        s.FontSize,
		Spacing:         s.Spacing,
		FontColor:       s.FontColor,
		BackgroundColor: s.BackgroundColor,
		Justify:         s.Justify,
		Hyphenate:       s.Hyphenate,
		TopMargin:       s.TopMargin,
		BottomMargin:    s.BottomMargin,
		SideMargin:      s.SideMargin,
		Scroll:          s.Scroll,
	}
}
