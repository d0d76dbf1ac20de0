package types

import "time"

// Category classifies an account for the operator.
type Category string

const (
	CategoryFriend  Category = "friend"
	CategoryBot     Category = "bot"
	CategoryAdmin   Category = "admin"
	CategoryTest    Category = "test"
	CategoryUnknown Category = "unknown"
)

// Categories lists every valid category in display order.
func Categories() []Category {
	return []Category{CategoryFriend, CategoryBot, CategoryAdmin, CategoryTest, CategoryUnknown}
}

// Valid reports whether c is one of the fixed categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryFriend, CategoryBot, CategoryAdmin, CategoryTest, CategoryUnknown:
		return true
	default:
		return false
	}
}

// AccountMetadata is the dashboard-owned side record for an account.
// A missing row is a valid state; DefaultMetadata describes it.
type AccountMetadata struct {
	// AccountID references Account.ID in the auth database.
	AccountID int64 `json:"account_id" db:"account_id"`

	// Username is copied from the account when the row is first written.
	Username string `json:"username" db:"username"`

	// Category is never empty.
	Category Category `json:"category" db:"category"`

	// Tags is a set; order carries no meaning.
	Tags []string `json:"tags" db:"tags"`

	// Notes is free text.
	Notes string `json:"notes" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// DefaultMetadata returns the metadata an account has before anything is stored.
func DefaultMetadata(accountID int64) AccountMetadata {
	return AccountMetadata{
		AccountID: accountID,
		Category:  CategoryUnknown,
		Tags:      []string{},
	}
}

// DirectoryEntry is an account joined with its metadata, or with inferred
// defaults when no metadata row exists. It is built per query.
type DirectoryEntry struct {
	Account
	Category Category `json:"category"`
	Tags     []string `json:"tags"`
	Notes    string   `json:"notes"`
}
