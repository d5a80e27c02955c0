package config

// mergeConfigs merges override configuration into base
func mergeConfigs(base, override *Config) *Config {
	result := *base

	if override.Version != "" {
		result.Version = override.Version
	}
	if override.APIURL != "" {
		result.APIURL = override.APIURL
	}
	if override.HubURL != "" {
		result.HubURL = override.HubURL
	}
	if override.Production {
		result.Production = true
	}

	if override.Auth != nil {
		merged := AuthConfig{}
		if result.Auth != nil {
			merged = *result.Auth
		}
		if override.Auth.AccessToken != "" {
			merged.AccessToken = override.Auth.AccessToken
		}
		result.Auth = &merged
	}

	if override.Hub != nil {
		merged := mergeHub(result.Hub, override.Hub)
		result.Hub = &merged
	}

	if override.Dashboard != nil {
		merged := DashboardConfig{}
		if result.Dashboard != nil {
			merged = *result.Dashboard
		}
		if override.Dashboard.RecentMovements != 0 {
			merged.RecentMovements = override.Dashboard.RecentMovements
		}
		if override.Dashboard.LowStockThreshold != 0 {
			merged.LowStockThreshold = override.Dashboard.LowStockThreshold
		}
		result.Dashboard = &merged
	}

	if override.Metrics != nil {
		merged := MetricsConfig{}
		if result.Metrics != nil {
			merged = *result.Metrics
		}
		if override.Metrics.Listen != "" {
			merged.Listen = override.Metrics.Listen
		}
		result.Metrics = &merged
	}

	// Merge extensions
	if override.Extensions != nil {
		extensions := make(map[string]interface{}, len(result.Extensions)+len(override.Extensions))
		for key, value := range result.Extensions {
			extensions[key] = value
		}
		for key, value := range override.Extensions {
			// If both base and override have the same extension key, merge them
			if baseMap, ok := extensions[key].(map[string]interface{}); ok {
				if overrideMap, ok := value.(map[string]interface{}); ok {
					mergedMap := make(map[string]interface{}, len(baseMap)+len(overrideMap))
					for k, v := range baseMap {
						mergedMap[k] = v
					}
					for k, v := range overrideMap {
						mergedMap[k] = v
					}
					extensions[key] = mergedMap
					continue
				}
			}
			// Otherwise just replace
			extensions[key] = value
		}
		result.Extensions = extensions
	}

	return &result
}

func mergeHub(base, override *HubConfig) HubConfig {
	result := HubConfig{}
	if base != nil {
		result = *base
	}

	if override.Transport != "" {
		result.Transport = override.Transport
	}
	if override.ReconnectDelay != "" {
		result.ReconnectDelay = override.ReconnectDelay
	}
	if len(override.ReconnectPolicy) > 0 {
		result.ReconnectPolicy = append([]string(nil), override.ReconnectPolicy...)
	}
	if override.KeepAliveInterval != "" {
		result.KeepAliveInterval = override.KeepAliveInterval
	}
	if override.ServerTimeout != "" {
		result.ServerTimeout = override.ServerTimeout
	}
	if override.SkipNegotiation {
		result.SkipNegotiation = true
	}
	if override.ValidateMessages != nil {
		v := *override.ValidateMessages
		result.ValidateMessages = &v
	}

	return result
}
