package types

// LiveStats is the bot activity the bot engine keeps in Redis.
type LiveStats struct {
	ActiveBots int               `json:"active_bots"`
	Stats      map[string]string `json:"stats"`
}
