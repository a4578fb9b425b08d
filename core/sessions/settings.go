package sessions

// Settings is the single per-installation configuration record, loaded once
// at startup and persisted on every change.
type Settings struct {
	SelectedPersona       string `json:"selected_persona"`
	VoiceEnabled          bool   `json:"voice_enabled"`
	StreamingEnabled      bool   `json:"streaming_enabled"`
	MaxContextLength      int    `json:"max_context_length"`
	AutoSaveConversations bool   `json:"auto_save_conversations"`
}

func DefaultSettings() Settings {
	return Settings{
		SelectedPersona:       "companion",
		VoiceEnabled:          true,
		StreamingEnabled:      true,
		MaxContextLength:      20,
		AutoSaveConversations: true,
	}
}
