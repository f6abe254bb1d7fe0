package util

import (
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the inspected environment variables.
const EnvPrefix = "GMESH"

// InitViper sets up env var handling for a viper. Settings are not inherited
// by subtrees, so this must also run on every viper returned by GetSubViper.
func InitViper(v *viper.Viper) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.SetEnvPrefix(EnvPrefix)
	v.SetTypeByDefaultValue(true)
	v.AutomaticEnv()
}

// GetSubViper returns the subtree of v rooted at key, initialized for env
// var handling. Sub returns nil when the key has no children yet, callers
// still get a usable viper in that case.
func GetSubViper(v *viper.Viper, key string) *viper.Viper {
	sub := v.Sub(key)
	if sub == nil {
		sub = viper.New()
	}
	InitViper(sub)
	return sub
}
