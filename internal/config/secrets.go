package config

import "slices"

const redacted = "***"

// RedactedConfig returns a copy of cfg that is safe to log or print: secret
// fields become "***" and shared slices are cloned so mutating the copy
// cannot touch the original.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Notify.Events = slices.Clone(cfg.Notify.Events)
	out.Server.CORSOrigins = slices.Clone(cfg.Server.CORSOrigins)

	secrets := []*string{
		&out.Kalshi.PrivateKeyPEM,
		&out.Kalshi.SealedKeyPassword,
		&out.Server.APIKey,
		&out.Postgres.DSN,
		&out.Postgres.Password,
		&out.Redis.Password,
		&out.S3.AccessKey,
		&out.S3.SecretKey,
		&out.Notify.TelegramToken,
		&out.Notify.DiscordWebhookURL,
	}
	for _, s := range secrets {
		if *s != "" {
			*s = redacted
		}
	}
	return out
}
