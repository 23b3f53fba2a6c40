package config

import (
	"context"
	"errors"

	"github.com/sethvargo/go-envconfig"
)

type DiscordConfig struct {
	Token   string `env:"DISCORD_TOKEN, required"`
	GuildID string `env:"DISCORD_GUILD_ID"`
	// RunBotGlobally registers the slash commands for every guild the bot is
	// in instead of only GuildID.
	RunBotGlobally bool `env:"DISCORD_RUN_BOT_GLOBALLY"`
}

var ErrNoGuild = errors.New("refusing to run the bot without a guild ID unless DISCORD_RUN_BOT_GLOBALLY is set to true")

func NewDiscordConfigFromEnv() (*DiscordConfig, error) {
	var cfg DiscordConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.GuildID == "" && !cfg.RunBotGlobally {
		return nil, ErrNoGuild
	}
	return &cfg, nil
}

// CommandGuildID is the guild commands are registered in; empty means global.
func (c *DiscordConfig) CommandGuildID() string {
	if c.RunBotGlobally {
		return ""
	}
	return c.GuildID
}
