package common

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/couchbase/scanmerge/secondary/logging"
)

// LoadConfigFile reads a yaml, json or toml file and returns SystemConfig
// overridden with the parameters found in it. Nested sections are flattened
// into the dotted key form, so
//
//	queryport:
//	  merge:
//	    scan:
//	      queue_size: 512
//
// sets "queryport.merge.scan.queue_size". Environment variables override the
// file; the name is SCANMERGE_ followed by the upper-cased key with '.'
// replaced by '_', eg SCANMERGE_KVSTORE_PARTITIONS.
func LoadConfigFile(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config %v: %w", path, err)
	}
	return fromViper(v)
}

// LoadConfigEnv returns SystemConfig overridden by SCANMERGE_ environment
// variables only.
func LoadConfigEnv() (Config, error) {
	return fromViper(viper.New())
}

func fromViper(v *viper.Viper) (Config, error) {
	v.SetEnvPrefix("SCANMERGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key := range SystemConfig {
		// keys absent from the file are only visible once bound.
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
	}

	settings := make(map[string]interface{})
	for key := range SystemConfig {
		lkey := strings.ToLower(key)
		if !v.IsSet(lkey) {
			continue
		}
		switch SystemConfig[key].DefaultVal.(type) {
		case int:
			settings[key] = v.GetInt(lkey)
		case bool:
			settings[key] = v.GetBool(lkey)
		case string:
			settings[key] = v.GetString(lkey)
		default:
			settings[key] = v.Get(lkey)
		}
	}
	for _, key := range v.AllKeys() {
		if _, ok := lookupKey(key); !ok {
			logging.Warnf("LoadConfig: ignoring unknown parameter %q", key)
		}
	}

	config := SystemConfig.Clone()
	if err := config.Update(settings); err != nil {
		return nil, err
	}
	return config, nil
}

// viper lower-cases every key, SystemConfig keys are camel-cased in places.
func lookupKey(lkey string) (string, bool) {
	for key := range SystemConfig {
		if strings.ToLower(key) == lkey {
			return key, true
		}
	}
	return "", false
}
