package types

import (
	"strings"
	"time"
)

// BotPrefix is the username prefix reserved for server-spawned bot accounts.
const BotPrefix = "RNDBOT"

// IsBotName reports whether username follows the bot naming convention.
func IsBotName(username string) bool {
	return strings.HasPrefix(strings.ToUpper(username), BotPrefix)
}

// Account is an identity record owned by the game server's auth database.
type Account struct {
	// ID is the stable account identifier assigned by the auth database.
	ID int64 `json:"id" db:"id"`

	// Username is the uppercase, unique login name.
	Username string `json:"username" db:"username"`

	// Email is the optional contact address.
	Email string `json:"email" db:"email"`

	// Salt and Verifier are the SRP6 credential pair. Neither is exposed in
	// API responses.
	Salt     []byte `json:"-" db:"salt"`
	Verifier []byte `json:"-" db:"verifier"`

	// Online is true while the account has a live game session.
	Online bool `json:"online" db:"online"`

	// TotalTime is the accumulated play time in seconds.
	TotalTime int64 `json:"totaltime" db:"totaltime"`

	// Expansion is the highest client expansion the account may use.
	Expansion int `json:"expansion" db:"expansion"`

	// Locked mirrors the auth database's IP lock flag.
	Locked bool `json:"locked" db:"locked"`

	// LastIP is the address of the most recent login.
	LastIP string `json:"last_ip" db:"last_ip"`

	// FailedLogins counts consecutive failed login attempts.
	FailedLogins int `json:"failed_logins" db:"failed_logins"`

	// JoinDate is when the account was created.
	JoinDate time.Time `json:"joindate" db:"joindate"`

	// LastLogin is nil when the account has never logged in.
	LastLogin *time.Time `json:"last_login" db:"last_login"`
}

// AccountStats summarises the account table.
type AccountStats struct {
	Total   int `json:"total"`
	Online  int `json:"online"`
	Bots    int `json:"bots"`
	Players int `json:"players"`
}

// OnlineAccount is an online account joined with its online character, if any.
type OnlineAccount struct {
	ID            int64      `json:"id"`
	Username      string     `json:"username"`
	LastLogin     *time.Time `json:"last_login"`
	TotalTime     int64      `json:"totaltime"`
	CharacterName *string    `json:"character_name"`
	Level         *int       `json:"level"`
	Race          *int       `json:"race"`
	Class         *int       `json:"class"`
	Zone          *int       `json:"zone"`
}

// Character is a game character owned by an account.
type Character struct {
	GUID       int64  `json:"guid"`
	Name       string `json:"name"`
	Race       int    `json:"race"`
	Class      int    `json:"class"`
	Level      int    `json:"level"`
	Zone       int    `json:"zone"`
	Map        int    `json:"map"`
	Online     bool   `json:"online"`
	TotalTime  int64  `json:"totaltime"`
	TotalKills int64  `json:"totalKills"`
	TodayKills int64  `json:"todayKills"`
}
