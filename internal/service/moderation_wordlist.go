package service

import (
	"fmt"

	"github.com/spf13/viper"
)

// ModerationWordlist is the external, operator-editable companion to the
// moderation gate's built-in skip patterns and blocked-word fallback — the
// maritime-domain vocabulary an operator wants to tune without a redeploy
// (greeting phrases to skip, additional blocked terms beyond the narrow
// built-in list).
type ModerationWordlist struct {
	Greetings    []string `mapstructure:"greetings"`
	BlockedWords []string `mapstructure:"blocked_words"`
}

// LoadModerationWordlist reads a YAML config file (name, without extension,
// and the directories to search) into a ModerationWordlist. A missing file
// is not an error — the moderation gate's built-in defaults still apply.
func LoadModerationWordlist(configName string, searchPaths ...string) (*ModerationWordlist, error) {
	v := viper.New()
	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}

	var wl ModerationWordlist
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return &wl, nil
		}
		return nil, fmt.Errorf("service.LoadModerationWordlist: %w", err)
	}
	if err := v.Unmarshal(&wl); err != nil {
		return nil, fmt.Errorf("service.LoadModerationWordlist: unmarshal: %w", err)
	}
	return &wl, nil
}

// ApplyWordlist extends the gate's skip patterns and blocked-word list with
// operator-supplied entries on top of the built-in defaults.
func (g *ModerationGate) ApplyWordlist(wl *ModerationWordlist) {
	if wl == nil {
		return
	}
	for _, greeting := range wl.Greetings {
		g.extraSkipWords = append(g.extraSkipWords, greeting)
	}
	g.extraBlockedWords = append(g.extraBlockedWords, wl.BlockedWords...)
}
