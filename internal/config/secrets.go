package config

// RedactedConfig returns a copy of cfg with credentials replaced by "***".
// Use this when logging the active configuration.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	redact(&out.Redis.Password)

	redact(&out.Postgres.DSN)
	redact(&out.Postgres.Password)

	redact(&out.S3.AccessKey)
	redact(&out.S3.SecretKey)

	redact(&out.Server.APIKey)

	redact(&out.Notify.TelegramToken)
	redact(&out.Notify.DiscordWebhookURL)
	redact(&out.Notify.Email.Password)

	// Copy slices and maps so callers cannot mutate the original through the
	// redacted copy.
	out.Exchanges.Enabled = cloneStrings(cfg.Exchanges.Enabled)
	out.Depth.Symbols = cloneStrings(cfg.Depth.Symbols)
	out.Statistics.StableAssets = cloneStrings(cfg.Statistics.StableAssets)
	out.Server.CORSOrigins = cloneStrings(cfg.Server.CORSOrigins)
	out.Notify.Email.To = cloneStrings(cfg.Notify.Email.To)
	if cfg.Router.MinProfit != nil {
		out.Router.MinProfit = make(map[string]float64, len(cfg.Router.MinProfit))
		for k, v := range cfg.Router.MinProfit {
			out.Router.MinProfit[k] = v
		}
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
