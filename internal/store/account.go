package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cerebro-dash/apiserver/types"
)

// defaultExpansion is the client expansion granted to new accounts (WotLK).
const defaultExpansion = 2

const accountColumns = `id, username, email, last_login, online, totaltime,
		       joindate, last_ip, expansion, locked, failed_logins`

// AccountRepository reads and writes the game server's account table. The
// table is owned by the auth server; this repository never deletes rows.
type AccountRepository struct {
	db           *sql.DB
	charactersDB string
}

// NewAccountRepository constructs a repository over the auth database.
// charactersDB names the schema holding the characters table; it comes from
// trusted configuration and is used as an identifier.
func NewAccountRepository(db *sql.DB, charactersDB string) *AccountRepository {
	if charactersDB == "" {
		charactersDB = "acore_characters"
	}
	return &AccountRepository{db: db, charactersDB: charactersDB}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (types.Account, error) {
	var (
		account   types.Account
		email     sql.NullString
		lastIP    sql.NullString
		lastLogin sql.NullTime
	)
	err := row.Scan(
		&account.ID,
		&account.Username,
		&email,
		&lastLogin,
		&account.Online,
		&account.TotalTime,
		&account.JoinDate,
		&lastIP,
		&account.Expansion,
		&account.Locked,
		&account.FailedLogins,
	)
	if err != nil {
		return types.Account{}, err
	}
	account.Email = email.String
	account.LastIP = lastIP.String
	if lastLogin.Valid {
		t := lastLogin.Time
		account.LastLogin = &t
	}
	return account, nil
}

// List returns every account ordered by id.
func (r *AccountRepository) List(ctx context.Context) ([]types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]types.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE id = ?`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (types.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM account WHERE username = ?`
	account, err := scanAccount(r.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Account{}, ErrNotFound
		}
		return types.Account{}, err
	}
	return account, nil
}

// Create inserts a new account and returns its id. username must already be
// normalized to uppercase.
func (r *AccountRepository) Create(ctx context.Context, username string, salt, verifier []byte, email string) (int64, error) {
	const query = `
		INSERT INTO account (username, salt, verifier, email, reg_mail, expansion)
		VALUES (?, ?, ?, ?, ?, ?)`
	result, err := r.db.ExecContext(ctx, query, username, salt, verifier, email, email, defaultExpansion)
	if err != nil {
		if isDuplicate(err) {
			return 0, ErrDuplicate
		}
		return 0, err
	}
	return result.LastInsertId()
}

// UpdateCredential overwrites the stored salt and verifier.
func (r *AccountRepository) UpdateCredential(ctx context.Context, id int64, salt, verifier []byte) error {
	const query = `UPDATE account SET salt = ?, verifier = ? WHERE id = ?`
	result, err := r.db.ExecContext(ctx, query, salt, verifier, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AccountRepository) Stats(ctx context.Context) (types.AccountStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN online = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN username LIKE 'RNDBOT%' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN username NOT LIKE 'RNDBOT%' THEN 1 ELSE 0 END), 0)
		FROM account`
	var stats types.AccountStats
	if err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.Total,
		&stats.Online,
		&stats.Bots,
		&stats.Players,
	); err != nil {
		return types.AccountStats{}, err
	}
	return stats, nil
}

// Online returns online accounts with the character currently in game.
func (r *AccountRepository) Online(ctx context.Context) ([]types.OnlineAccount, error) {
	query := fmt.Sprintf(`
		SELECT a.id, a.username, a.last_login, a.totaltime,
		       c.name, c.level, c.race, c.class, c.zone
		FROM account a
		LEFT JOIN %s.characters c ON c.account = a.id AND c.online = 1
		WHERE a.online = 1
		ORDER BY a.username`, r.charactersDB)
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	online := make([]types.OnlineAccount, 0)
	for rows.Next() {
		var (
			item      types.OnlineAccount
			lastLogin sql.NullTime
			name      sql.NullString
			level     sql.NullInt32
			race      sql.NullInt32
			class     sql.NullInt32
			zone      sql.NullInt32
		)
		if err := rows.Scan(&item.ID, &item.Username, &lastLogin, &item.TotalTime,
			&name, &level, &race, &class, &zone); err != nil {
			return nil, err
		}
		if lastLogin.Valid {
			t := lastLogin.Time
			item.LastLogin = &t
		}
		if name.Valid {
			item.CharacterName = &name.String
		}
		item.Level = nullableInt(level)
		item.Race = nullableInt(race)
		item.Class = nullableInt(class)
		item.Zone = nullableInt(zone)
		online = append(online, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return online, nil
}

func (r *AccountRepository) Characters(ctx context.Context, accountID int64) ([]types.Character, error) {
	query := fmt.Sprintf(`
		SELECT guid, name, race, class, level, zone, map, online,
		       totaltime, totalKills, todayKills
		FROM %s.characters
		WHERE account = ?
		ORDER BY level DESC`, r.charactersDB)
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	characters := make([]types.Character, 0)
	for rows.Next() {
		var c types.Character
		if err := rows.Scan(&c.GUID, &c.Name, &c.Race, &c.Class, &c.Level, &c.Zone,
			&c.Map, &c.Online, &c.TotalTime, &c.TotalKills, &c.TodayKills); err != nil {
			return nil, err
		}
		characters = append(characters, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return characters, nil
}

// GMLevel returns the account's GM level for the realm-wide (-1) or first
// realm entry, preferring the realm-specific one. Accounts without an entry
// are level 0.
func (r *AccountRepository) GMLevel(ctx context.Context, accountID int64) (int, error) {
	const query = `
		SELECT gmlevel FROM account_access
		WHERE id = ? AND (RealmID = -1 OR RealmID = 1)
		ORDER BY RealmID DESC LIMIT 1`
	var level int
	err := r.db.QueryRowContext(ctx, query, accountID).Scan(&level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return level, nil
}

// SetGMLevel replaces the account's access entry for realmID. Level 0 removes it.
func (r *AccountRepository) SetGMLevel(ctx context.Context, accountID int64, level, realmID int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM account_access WHERE id = ? AND RealmID = ?`,
		accountID, realmID,
	); err != nil {
		return err
	}
	if level > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO account_access (id, gmlevel, RealmID) VALUES (?, ?, ?)`,
			accountID, level, realmID,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (r *AccountRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func nullableInt(v sql.NullInt32) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int32)
	return &i
}
