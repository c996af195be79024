package aperturecfg

import (
	"sort"

	"github.com/kioku/aperture/pkg/aperrors"
	"github.com/kioku/aperture/pkg/engine"
	"github.com/kioku/aperture/pkg/invocation"
)

// URLConfigFor builds the engine's URLConfig for a named API from the
// global config's per-API section.
func (cfg *GlobalConfig) URLConfigFor(api string) engine.URLConfig {
	apiCfg := cfg.APIs[api]
	return engine.URLConfig{
		EnvURLs:         apiCfg.EnvironmentURLs,
		BaseURLOverride: apiCfg.BaseURL,
	}
}

// InvocationRetryDefaults builds invocation.RetryDefaults from the global
// config's retry section.
func (cfg *GlobalConfig) InvocationRetryDefaults() invocation.RetryDefaults {
	base, max := cfg.RetryDefaults.Parsed()
	return invocation.RetryDefaults{
		MaxAttempts: cfg.RetryDefaults.MaxAttempts,
		BaseDelay:   base,
		MaxDelay:    max,
	}
}

// AddAPI registers a new API entry, failing if the name is already in use.
func (cfg *GlobalConfig) AddAPI(name string, apiCfg APIConfig) error {
	if err := ValidateAPIName(name); err != nil {
		return err
	}
	if cfg.APIs == nil {
		cfg.APIs = map[string]APIConfig{}
	}
	if _, exists := cfg.APIs[name]; exists {
		return &aperrors.ConfigError{Reason: "API already registered: " + name}
	}
	cfg.APIs[name] = apiCfg
	return nil
}

// RemoveAPI deletes an API entry, failing if it does not exist.
func (cfg *GlobalConfig) RemoveAPI(name string) error {
	if _, exists := cfg.APIs[name]; !exists {
		return &aperrors.ConfigError{Reason: "no such API: " + name}
	}
	delete(cfg.APIs, name)
	return nil
}

// ListAPIs returns registered API names in sorted order.
func (cfg *GlobalConfig) ListAPIs() []string {
	names := make([]string, 0, len(cfg.APIs))
	for name := range cfg.APIs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SetURL sets (or clears, when url is empty) the base-URL override for an
// API, or one of its named environment URLs when env is non-empty.
func (cfg *GlobalConfig) SetURL(api, env, url string) error {
	apiCfg, ok := cfg.APIs[api]
	if !ok {
		return &aperrors.ConfigError{Reason: "no such API: " + api}
	}
	if env == "" {
		apiCfg.BaseURL = url
	} else {
		if apiCfg.EnvironmentURLs == nil {
			apiCfg.EnvironmentURLs = map[string]string{}
		}
		apiCfg.EnvironmentURLs[env] = url
	}
	cfg.APIs[api] = apiCfg
	return nil
}

// ListURLs returns the base URL and environment URL map for an API.
func (cfg *GlobalConfig) ListURLs(api string) (baseURL string, envURLs map[string]string, err error) {
	apiCfg, ok := cfg.APIs[api]
	if !ok {
		return "", nil, &aperrors.ConfigError{Reason: "no such API: " + api}
	}
	return apiCfg.BaseURL, apiCfg.EnvironmentURLs, nil
}

// SetSecret binds a security scheme name to an environment variable name
// for an API, recorded for documentation purposes; the engine reads the
// environment variable itself at request time via x-aperture-secret.
func (cfg *GlobalConfig) SetSecret(api, scheme, envVar string) error {
	apiCfg, ok := cfg.APIs[api]
	if !ok {
		return &aperrors.ConfigError{Reason: "no such API: " + api}
	}
	if apiCfg.Secrets == nil {
		apiCfg.Secrets = map[string]string{}
	}
	apiCfg.Secrets[scheme] = envVar
	cfg.APIs[api] = apiCfg
	return nil
}

// ListSecrets returns the scheme-to-env-var bindings recorded for an API.
func (cfg *GlobalConfig) ListSecrets(api string) (map[string]string, error) {
	apiCfg, ok := cfg.APIs[api]
	if !ok {
		return nil, &aperrors.ConfigError{Reason: "no such API: " + api}
	}
	return apiCfg.Secrets, nil
}
