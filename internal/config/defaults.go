package config

const (
	defaultConfigPath              = "~/.config/tunedrop/config.toml"
	defaultDataDir                 = "~/.local/share/tunedrop"
	defaultLogDir                  = "~/.local/share/tunedrop/logs"
	defaultListenAddr              = ":0"
	defaultCodeLength              = 6
	defaultPairingTimeoutSeconds   = 300
	defaultHandshakeTimeoutSeconds = 15
	defaultKeepaliveSeconds        = 20
	defaultMaxAttempts             = 3
	defaultConcurrency             = 1
	defaultUploadTimeoutSeconds    = 600
	defaultRetryBackoffMillis      = 1000
	defaultLogFormat               = "console"
	defaultLogLevel                = "warn"
	defaultNotifyRequestTimeout    = 10

	maxConcurrency = 8
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		Pairing: Pairing{
			ListenAddr:              defaultListenAddr,
			CodeLength:              defaultCodeLength,
			TimeoutSeconds:          defaultPairingTimeoutSeconds,
			HandshakeTimeoutSeconds: defaultHandshakeTimeoutSeconds,
			KeepaliveSeconds:        defaultKeepaliveSeconds,
			MaxAttempts:             defaultMaxAttempts,
		},
		Transfer: Transfer{
			Concurrency:          defaultConcurrency,
			UploadTimeoutSeconds: defaultUploadTimeoutSeconds,
			RetryBackoffMillis:   defaultRetryBackoffMillis,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
	}
}
