package models

// Settings are the extension preferences synced into the user document.
type Settings struct {
	ExpandEnabled  bool     `json:"expand_enabled"`
	ExpandShortcut string   `json:"expand_shortcut"`
	DialogEnabled  bool     `json:"dialog_enabled"`
	DialogButton   bool     `json:"dialog_button"`
	DialogShortcut string   `json:"dialog_shortcut"`
	DialogLimit    int      `json:"dialog_limit"`
	DialogSort     bool     `json:"dialog_sort"`
	RichEditor     bool     `json:"rich_editor"`
	Blacklist      []string `json:"blacklist"`
	DashboardSort  bool     `json:"dashboard_sort"`
}

// DefaultSettings returns the out-of-the-box preferences.
func DefaultSettings() Settings {
	return Settings{
		ExpandEnabled:  true,
		ExpandShortcut: "tab",
		DialogEnabled:  true,
		DialogButton:   true,
		DialogShortcut: "ctrl+space",
		DialogLimit:    100,
		DialogSort:     false,
		RichEditor:     true,
		Blacklist:      []string{},
		DashboardSort:  false,
	}
}

// Map flattens the settings for storage as fields of the user document.
func (s Settings) Map() map[string]interface{} {
	return map[string]interface{}{
		"expand_enabled":  s.ExpandEnabled,
		"expand_shortcut": s.ExpandShortcut,
		"dialog_enabled":  s.DialogEnabled,
		"dialog_button":   s.DialogButton,
		"dialog_shortcut": s.DialogShortcut,
		"dialog_limit":    s.DialogLimit,
		"dialog_sort":     s.DialogSort,
		"rich_editor":     s.RichEditor,
		"blacklist":       s.Blacklist,
		"dashboard_sort":  s.DashboardSort,
	}
}
