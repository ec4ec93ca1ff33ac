package main

import (
	"os"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"scriptlab/internal/api"
	"scriptlab/internal/config"
)

const defaultAccount = "local"

type commandContext struct {
	configFlag  *string
	serverFlag  *string
	tokenFlag   *string
	accountFlag *string
	logLevel    *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag, serverFlag, tokenFlag, accountFlag *string) *commandContext {
	return &commandContext{
		configFlag:  configFlag,
		serverFlag:  serverFlag,
		tokenFlag:   tokenFlag,
		accountFlag: accountFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(c.configPath())
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) configValue() *config.Config {
	cfg, _ := c.ensureConfig()
	return cfg
}

func (c *commandContext) configPath() string {
	return flagValue(c.configFlag)
}

// client builds an API client. Explicit flags win over configuration, then
// SCRIPTLAB_ACCOUNT, then the local default account.
func (c *commandContext) client() *api.Client {
	cfg := c.configValue()

	server := flagValue(c.serverFlag)
	if server == "" && cfg != nil {
		server = api.BaseURLFor(cfg.API.Bind)
	}
	if server == "" {
		server = "http://127.0.0.1:7490"
	}

	token := flagValue(c.tokenFlag)
	if token == "" && cfg != nil {
		token = cfg.API.Token
	}

	account := flagValue(c.accountFlag)
	if account == "" {
		account = strings.TrimSpace(os.Getenv("SCRIPTLAB_ACCOUNT"))
	}
	if account == "" {
		account = defaultAccount
	}
	return api.NewClient(server, token, account)
}

func (c *commandContext) resolvedLogLevel(cfg *config.Config) string {
	if level := flagValue(c.logLevel); level != "" {
		return level
	}
	if cfg != nil {
		return cfg.Logging.Level
	}
	return ""
}

func flagValue(flag *string) string {
	if flag == nil {
		return ""
	}
	return strings.TrimSpace(*flag)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
