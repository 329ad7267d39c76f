package config

const (
	defaultConfigPath          = "~/.config/tailor/config.toml"
	envConfigPath              = "TAILOR_CONFIG"
	envWorkspaceRoot           = "TAILOR_WORKSPACE_ROOT"
	envStateDir                = "TAILOR_STATE_DIR"
	defaultWorkspaceRoot       = "~/.local/share/tailor/workspace"
	defaultStateDir            = "~/.local/share/tailor"
	defaultLogDirName          = "logs"
	defaultLogFormat           = "console"
	defaultLogLevel            = "info"
	defaultLogRetentionDays    = 30
	defaultRenderFormat        = "docx"
	defaultStyle               = "professional"
	defaultPollInterval        = 5
	defaultErrorRetryInterval  = 10
	defaultRetryBudget         = 3
	defaultMaxParallel         = 4
	defaultStallTimeout        = 3600
	defaultLockTimeout         = 10
	defaultOutputSettleSeconds = 0
	defaultNtfyTimeout         = 10
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceRoot: defaultWorkspaceRoot,
			StateDir:      defaultStateDir,
		},
		Pipeline: Pipeline{
			RenderDocuments: false,
			RenderFormat:    defaultRenderFormat,
			DefaultStyle:    defaultStyle,
		},
		Workflow: Workflow{
			PollInterval:        defaultPollInterval,
			ErrorRetryInterval:  defaultErrorRetryInterval,
			RetryBudget:         defaultRetryBudget,
			MaxParallel:         defaultMaxParallel,
			StallTimeout:        defaultStallTimeout,
			FailStalled:         false,
			OutputSettleSeconds: defaultOutputSettleSeconds,
			WatchFilesystem:     true,
			LockTimeout:         defaultLockTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
	}
}
