package roles

// Role describes one catalog entry as served to clients.
type Role struct {
	Name    string `json:"name"`
	Level   int    `json:"level"`
	Landing string `json:"landing"`
	// Users is only reported to admins.
	Users *int `json:"users,omitempty"`
}
