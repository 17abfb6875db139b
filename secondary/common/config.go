// Config is key, value map for system level and component configuration.
// Key is a string and represents a config parameter, and corresponding
// value is an interface{} that can be consumed using accessor methods
// based on the context of config-value.
//
// Config maps are immutable and newer versions can be created using accessor
// methods.
//
// Shape of config-parameter, the key string, is sequence of alpha-numeric
// characters separated by one or more '.' , eg,
//      "queryport.merge.scan.queue_size"

package common

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/couchbase/scanmerge/secondary/logging"
)

// default size of the ants pool that executes partition fetches.
var kvstore_workerPoolSize = runtime.GOMAXPROCS(0) * 4

// Threadsafe config holder object
type ConfigHolder struct {
	ptr atomic.Pointer[Config]
}

func (h *ConfigHolder) Store(conf Config) {
	h.ptr.Store(&conf)
}

func (h *ConfigHolder) Load() Config {
	if conf := h.ptr.Load(); conf != nil {
		return *conf
	}
	return nil
}

// Config is a key, value map with key always being a string
// represents a config-parameter.
type Config map[string]ConfigValue

// ConfigValue for each parameter.
type ConfigValue struct {
	Value         interface{}
	Help          string
	DefaultVal    interface{}
	Immutable     bool
	Casesensitive bool
}

// SystemConfig is default configuration for the merge engine, the
// key-value store backing the partition scans and the command line.
var SystemConfig = Config{
	// merge engine
	"queryport.merge.scan.queue_size": ConfigValue{
		256,
		"capacity of each message queue between a partition feed and the merger. " +
			"In unsorted mode all feeds share one queue of this size.",
		256,
		false, // mutable
		false, // case-insensitive
	},
	"queryport.merge.scan.poll_timeout": ConfigValue{
		350, // in milli-second
		"in milli-second, how long the merger waits on a queue before " +
			"re-checking the stop signal and request cancellation.",
		350,
		false, // mutable
		false, // case-insensitive
	},
	"queryport.merge.scan.batch_size": ConfigValue{
		128,
		"number of rows fetched from a partition per scan batch.",
		128,
		false, // mutable
		false, // case-insensitive
	},
	"queryport.merge.log_level": ConfigValue{
		"info",
		"merge engine logging level",
		"info",
		false, // mutable
		false, // case-insensitive
	},
	// key-value store
	"kvstore.partitions": ConfigValue{
		4,
		"number of hash partitions a table is split into on load.",
		4,
		true,  // immutable
		false, // case-insensitive
	},
	"kvstore.inMemory": ConfigValue{
		false,
		"run the badger store in memory, nothing is persisted.",
		false,
		true,  // immutable
		false, // case-insensitive
	},
	"kvstore.workerPoolSize": ConfigValue{
		kvstore_workerPoolSize,
		"maximum number of partition fetches executing concurrently.",
		kvstore_workerPoolSize,
		false, // mutable
		false, // case-insensitive
	},
	"kvstore.retry.maxElapsed": ConfigValue{
		2000, // in milli-second
		"in milli-second, upper bound on the time a transient fetch failure " +
			"is retried before it is reported to the merger.",
		2000,
		false, // mutable
		false, // case-insensitive
	},
	"kvstore.compression": ConfigValue{
		"snappy",
		"compression applied to stored rows, snappy or none.",
		"snappy",
		true,  // immutable
		false, // case-insensitive
	},
}

// NewConfig from another
// Config object or from map[string]interface{} object
// or from []byte slice, a byte-slice of JSON string.
func NewConfig(data interface{}) (Config, error) {
	config := make(Config)
	err := config.Update(data)
	return config, err
}

// Update config object with data, can be a Config, map[string]interface{},
// []byte.
func (config Config) Update(data interface{}) error {
	fmsg := "CONF[] skipping setting key %q value '%v': %v"
	switch v := data.(type) {
	case Config: // Clone
		for key, value := range v {
			config.Set(key, value)
		}

	case []byte: // parse JSON
		m := make(map[string]interface{})
		if err := json.Unmarshal(v, &m); err != nil {
			return err
		}
		return config.Update(m)

	case map[string]interface{}: // transform
		for key, value := range v {
			if cv, ok := SystemConfig[key]; ok { // valid config.
				if _, ok := config[key]; !ok {
					config[key] = cv // copy by value
				}
				if err := config.SetValue(key, value); err != nil {
					logging.Warnf(fmsg, key, value, err)
				}

			} else {
				logging.Errorf("invalid config param %q", key)
			}
		}

	default:
		return nil
	}
	return nil
}

// Clone a new config object.
func (config Config) Clone() Config {
	clone := make(Config)
	for key, value := range config {
		clone[key] = value
	}
	return clone
}

// Override will clone `config` object and update parameters with
// values from `others` instance. Will skip immutable fields.
func (config Config) Override(others ...Config) Config {
	newconfig := config.Clone()
	for _, other := range others {
		for key, cv := range other {
			if newconfig[key].Immutable { // skip immutables.
				continue
			}
			ocv, ok := newconfig[key]
			if !ok {
				ocv = cv
			} else {
				ocv.Value = cv.Value
			}
			newconfig[key] = ocv
		}
	}
	return newconfig
}

// SectionConfig will create a new config object with parameters
// starting with `prefix`. If `trim` is true, then config
// parameter will be trimmed with the prefix string.
func (config Config) SectionConfig(prefix string, trim bool) Config {
	section := make(Config)
	for key, value := range config {
		if strings.HasPrefix(key, prefix) {
			if trim {
				section[strings.TrimPrefix(key, prefix)] = value
			} else {
				section[key] = value
			}
		}
	}
	return section
}

// Set ConfigValue for parameter. Mutates the config object.
func (config Config) Set(key string, cv ConfigValue) Config {
	config[key] = cv
	return config
}

// SetValue config parameter with value. Mutates the config object.
func (config Config) SetValue(key string, value interface{}) error {
	cv, ok := config[key]
	if !ok {
		return errors.New("invalid config parameter")
	}

	if value == nil {
		return errors.New("config value is nil")
	}

	defType := reflect.TypeOf(cv.DefaultVal)
	valType := reflect.TypeOf(value)

	if valType.ConvertibleTo(defType) && valType.Kind() != reflect.String {
		v := reflect.ValueOf(value)
		v = reflect.Indirect(v)
		value = v.Convert(defType).Interface()
		valType = defType
	}

	if valType.Kind() == reflect.String && cv.Casesensitive == false {
		value = strings.ToLower(value.(string))
	}

	if defType != reflect.TypeOf(value) {
		return fmt.Errorf("%v: Value type mismatch, %v != %v (%v)",
			key, valType, defType, value)
	}

	cv.Value = value
	config[key] = cv

	return nil
}

// Map will return key value map from the config
func (config Config) Map() map[string]interface{} {
	kvs := make(map[string]interface{})
	for key, value := range config {
		kvs[key] = value.Value
	}
	return kvs
}

// Json will marshal config into JSON string.
func (config Config) Json() []byte {
	bytes, _ := json.Marshal(config.Map())
	return bytes
}

func (config Config) String() string {
	return string(config.Json())
}

// Int assumes config value is an integer and returns the same.
func (cv ConfigValue) Int() int {
	if val, ok := cv.Value.(int); ok {
		return val
	} else if val, ok := cv.Value.(float64); ok {
		return int(val)
	}
	panic(fmt.Sprintf("not support Int() on %#v", cv))
}

// Duration assumes config value is an integer count of milli-seconds.
func (cv ConfigValue) Duration() time.Duration {
	return time.Duration(cv.Int()) * time.Millisecond
}

// String assumes config value is a string and returns the same.
func (cv ConfigValue) String() string {
	return cv.Value.(string)
}

// Bool assumes config value is a Bool and returns the same.
func (cv ConfigValue) Bool() bool {
	return cv.Value.(bool)
}
