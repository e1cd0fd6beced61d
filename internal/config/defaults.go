package config

const (
	defaultLogDir    = "~/.local/share/fovwatch/logs"
	defaultLedgerDir = "~/.local/share/fovwatch/ledger"

	// defaultCompletionPollInterval mirrors the instrument software's
	// 30-second completion check cadence.
	defaultCompletionPollInterval = 30

	// defaultZeroSizeTimeout is how long a FOV file may sit at zero bytes
	// before the FOV is declared unrecoverable. The instrument flushes
	// bin files within about an hour of the create event at worst.
	defaultZeroSizeTimeout = 7800

	defaultCallbackCommandTimeout = 1800

	defaultNotifyRequestTimeout = 10

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LogDir:    defaultLogDir,
			LedgerDir: defaultLedgerDir,
		},
		Watcher: Watcher{
			CompletionPollInterval: defaultCompletionPollInterval,
			ZeroSizeTimeout:        defaultZeroSizeTimeout,
		},
		Callbacks: Callbacks{
			CommandTimeout: defaultCallbackCommandTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
