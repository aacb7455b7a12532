package ratelimit

import (
	"net/http"
	"strings"
)

// unlimited lists method+path pairs that are never throttled.
var unlimited = map[string]bool{
	http.MethodGet + " /health": true,
}

// MatchEndpoint returns the configuration for path and method, or nil when none applies.
// Exact paths win over prefixes; a config path ending in "/" covers everything below it,
// so "/jobs/" matches "/jobs/{id}". The longest matching prefix is chosen.
func MatchEndpoint(path string, method string, configs []EndpointConfig) *EndpointConfig {
	if unlimited[method+" "+path] {
		return &EndpointConfig{}
	}

	var best *EndpointConfig
	for i := range configs {
		cfg := &configs[i]
		if cfg.Method != method {
			continue
		}
		if cfg.Path == path {
			return cfg
		}
		if strings.HasSuffix(cfg.Path, "/") && strings.HasPrefix(path, cfg.Path) {
			if best == nil || len(cfg.Path) > len(best.Path) {
				best = cfg
			}
		}
	}
	return best
}
