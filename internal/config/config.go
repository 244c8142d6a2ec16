package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds the launch-time defaults for the browser child and the
// session controller. User config is overridden by project config,
// field by field.
type Config struct {
	// MonkeyPath is the path to the browser child binary.
	MonkeyPath string `json:"monkey_path,omitempty"`

	// WrapperArgs are prepended to argv before MonkeyPath (e.g. a sandbox
	// wrapper): argv = wrapper_args... + [monkey_path] + launch_options.
	WrapperArgs []string `json:"wrapper_args,omitempty"`

	// LaunchOptions are appended to argv after MonkeyPath.
	LaunchOptions []string `json:"launch_options,omitempty"`

	// Language overlays the LANGUAGE environment variable for the child.
	Language string `json:"language,omitempty"`

	// WaitLoadedTimeoutMS is loaded and merged (default 15000) but not read
	// by the plan runner or the REPL, which pass their own fixed timeouts to
	// wait_loaded, redraw, and wait_for_log.
	WaitLoadedTimeoutMS int `json:"wait_loaded_timeout_ms,omitempty"`

	// WaitUntilDeadTimeoutMS is loaded and merged (default 30000) but not
	// read by the plan runner or the REPL; wait_until_dead gets its timeout
	// from the caller.
	WaitUntilDeadTimeoutMS int `json:"wait_until_dead_timeout_ms,omitempty"`

	// AuthDBPath, if set, persists the authentication database (bcrypt-hashed
	// passwords) across runs.
	AuthDBPath string `json:"auth_db_path,omitempty"`

	// UsePTY launches the browser child under a pty instead of a plain pipe.
	UsePTY bool `json:"use_pty,omitempty"`
}

type Manager struct {
	userConfig    *Config
	projectConfig *Config
	merged        *Config
}

func NewManager() *Manager {
	return &Manager{
		userConfig:    &Config{},
		projectConfig: &Config{},
		merged:        &Config{},
	}
}

func (m *Manager) Load(userConfigDir, projectDir string) error {
	userConfigPath := filepath.Join(userConfigDir, "settings.json")
	if err := m.loadConfig(userConfigPath, m.userConfig); err != nil {
		return err
	}

	projectConfigPath := filepath.Join(projectDir, ".monkeyctl", "settings.json")
	if err := m.loadConfig(projectConfigPath, m.projectConfig); err != nil {
		return err
	}

	m.mergeConfigs()

	return nil
}

func (m *Manager) loadConfig(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil // Config file doesn't exist, use defaults
		}
		return err
	}

	return json.Unmarshal(data, config)
}

func (m *Manager) mergeConfigs() {
	m.merged = &Config{
		MonkeyPath:             m.getStringValue(m.userConfig.MonkeyPath, m.projectConfig.MonkeyPath, "./nsmonkey"),
		WrapperArgs:            m.getSliceValue(m.userConfig.WrapperArgs, m.projectConfig.WrapperArgs),
		LaunchOptions:          m.getSliceValue(m.userConfig.LaunchOptions, m.projectConfig.LaunchOptions),
		Language:               m.getStringValue(m.userConfig.Language, m.projectConfig.Language, ""),
		WaitLoadedTimeoutMS:    m.getIntValue(m.userConfig.WaitLoadedTimeoutMS, m.projectConfig.WaitLoadedTimeoutMS, 15000),
		WaitUntilDeadTimeoutMS: m.getIntValue(m.userConfig.WaitUntilDeadTimeoutMS, m.projectConfig.WaitUntilDeadTimeoutMS, 30000),
		AuthDBPath:             m.getStringValue(m.userConfig.AuthDBPath, m.projectConfig.AuthDBPath, ""),
		UsePTY:                 m.getBoolValue(m.userConfig.UsePTY, m.projectConfig.UsePTY, false),
	}
}

func (m *Manager) getStringValue(user, project, defaultValue string) string {
	if project != "" {
		return project
	}
	if user != "" {
		return user
	}
	return defaultValue
}

func (m *Manager) getSliceValue(user, project []string) []string {
	if len(project) > 0 {
		return project
	}
	if len(user) > 0 {
		return user
	}
	return nil
}

func (m *Manager) getBoolValue(user, project, defaultValue bool) bool {
	if project {
		return project
	}
	if user {
		return user
	}
	return defaultValue
}

func (m *Manager) getIntValue(user, project, defaultValue int) int {
	if project != 0 {
		return project
	}
	if user != 0 {
		return user
	}
	return defaultValue
}

func (m *Manager) Get() *Config {
	return m.merged
}

func (m *Manager) SaveUserConfig(userConfigDir string) error {
	configPath := filepath.Join(userConfigDir, "settings.json")

	if err := os.MkdirAll(userConfigDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m.userConfig, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}

func (m *Manager) SaveProjectConfig(projectDir string) error {
	monkeyctlDir := filepath.Join(projectDir, ".monkeyctl")
	configPath := filepath.Join(monkeyctlDir, "settings.json")

	if err := os.MkdirAll(monkeyctlDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(m.projectConfig, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0644)
}
