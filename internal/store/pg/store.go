package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"duka.app/internal/auth"
	"duka.app/internal/ids"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
	pgErrStringTooLong       = "22001"
)

var (
	_ auth.Directory = (*Store)(nil)

	errNoDB = errors.New("database connection unavailable")
)

// Store implements auth.Directory on PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects through the pgx stdlib driver with pool defaults sized for
// one lookup pair per request.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing handle.
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// Accounts ----------------------------------------------------------------

func (s *Store) FindAccountBySubject(ctx context.Context, subject string) (auth.Account, error) {
	if s.db == nil {
		return auth.Account{}, errNoDB
	}
	var acc auth.Account
	err := s.db.QueryRowContext(ctx, `
		select id, external_subject, username, first_name, last_name, email, phone_number,
		       coalesce(organisation_id, ''), is_superuser, created_at
		from accounts
		where external_subject = $1
	`, subject).Scan(&acc.ID, &acc.ExternalSubject, &acc.Username, &acc.FirstName, &acc.LastName,
		&acc.Email, &acc.PhoneNumber, &acc.OrganisationID, &acc.Superuser, &acc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Account{}, auth.ErrNotFound
	}
	if err != nil {
		return auth.Account{}, err
	}
	roles, err := s.roleNames(ctx, `
		select r.name from roles r
		join account_roles ar on ar.role_id = r.id
		where ar.account_id = $1
		order by r.name
	`, acc.ID)
	if err != nil {
		return auth.Account{}, fmt.Errorf("load roles for account %s: %w", acc.ID, err)
	}
	acc.Roles = roles
	return acc, nil
}

func (s *Store) CreateAccount(ctx context.Context, account *auth.Account) error {
	if s.db == nil {
		return errNoDB
	}
	if account.ID == "" {
		account.ID = ids.NewPrefixed("acc")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into accounts (id, external_subject, username, first_name, last_name, email, phone_number, organisation_id, is_superuser)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		returning created_at
	`, account.ID, account.ExternalSubject, account.Username, account.FirstName, account.LastName,
		account.Email, account.PhoneNumber, nullIfEmpty(account.OrganisationID), account.Superuser,
	).Scan(&account.CreatedAt)
	if err != nil {
		return mapWriteError(err, "account for subject "+account.ExternalSubject)
	}
	if err := assignRoles(ctx, tx, `insert into account_roles (account_id, role_id) select $1, id from roles where name = $2`,
		account.ID, account.Roles.Names()); err != nil {
		return err
	}
	return tx.Commit()
}

// SetMembership moves the account into organisationID (empty clears it) and
// replaces its roles.
func (s *Store) SetMembership(ctx context.Context, accountID, organisationID string, roles []string) error {
	if s.db == nil {
		return errNoDB
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `update accounts set organisation_id = $2 where id = $1`, accountID, nullIfEmpty(organisationID))
	if err != nil {
		return mapWriteError(err, "organisation "+organisationID)
	}
	if aff, err := res.RowsAffected(); err != nil {
		return err
	} else if aff == 0 {
		return fmt.Errorf("%w: account %s", auth.ErrNotFound, accountID)
	}
	if _, err := tx.ExecContext(ctx, `delete from account_roles where account_id = $1`, accountID); err != nil {
		return err
	}
	if err := assignRoles(ctx, tx, `insert into account_roles (account_id, role_id) select $1, id from roles where name = $2`,
		accountID, auth.NewRoleSet(roles...).Names()); err != nil {
		return err
	}
	return tx.Commit()
}

// Organisations -----------------------------------------------------------

func (s *Store) CreateOrganisation(ctx context.Context, org *auth.Organisation) error {
	if s.db == nil {
		return errNoDB
	}
	if org.ID == "" {
		org.ID = ids.NewPrefixed("org")
	}
	err := s.db.QueryRowContext(ctx, `
		insert into organisations (id, name, primary_phone_number, admin_account_id)
		values ($1, $2, $3, $4)
		returning created_at
	`, org.ID, org.Name, org.PrimaryPhoneNumber, nullIfEmpty(org.AdminAccountID)).Scan(&org.CreatedAt)
	if err != nil {
		return mapWriteError(err, "organisation "+org.Name)
	}
	return nil
}

// GetOrganisation skips the query for ids this service could not have issued.
func (s *Store) GetOrganisation(ctx context.Context, id string) (auth.Organisation, error) {
	if s.db == nil {
		return auth.Organisation{}, errNoDB
	}
	if !ids.Valid(id) {
		return auth.Organisation{}, auth.ErrNotFound
	}
	var org auth.Organisation
	err := s.db.QueryRowContext(ctx, `
		select id, name, primary_phone_number, coalesce(admin_account_id, ''), created_at
		from organisations
		where id = $1
	`, id).Scan(&org.ID, &org.Name, &org.PrimaryPhoneNumber, &org.AdminAccountID, &org.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return auth.Organisation{}, auth.ErrNotFound
	}
	return org, err
}

// Roles -------------------------------------------------------------------

func (s *Store) CreateRole(ctx context.Context, role *auth.Role) error {
	if s.db == nil {
		return errNoDB
	}
	if role.ID == "" {
		role.ID = ids.NewPrefixed("role")
	}
	err := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, organisation_id)
		values ($1, $2, $3, $4)
		returning created_at
	`, role.ID, role.Name, nullIfEmpty(role.Description), nullIfEmpty(role.OrganisationID)).Scan(&role.CreatedAt)
	if err != nil {
		return mapWriteError(err, "role "+role.Name)
	}
	return nil
}

// EnsureRoles returns the named roles, creating global ones that do not exist yet.
func (s *Store) EnsureRoles(ctx context.Context, names []string) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	var out []auth.Role
	for _, name := range auth.NewRoleSet(names...).Names() {
		var role auth.Role
		err := s.db.QueryRowContext(ctx, `
			insert into roles (id, name) values ($1, $2)
			on conflict (name) do update set name = excluded.name
			returning id, name, coalesce(description, ''), coalesce(organisation_id, ''), created_at
		`, ids.NewPrefixed("role"), name).Scan(&role.ID, &role.Name, &role.Description, &role.OrganisationID, &role.CreatedAt)
		if err != nil {
			return nil, mapWriteError(err, "role "+name)
		}
		out = append(out, role)
	}
	return out, nil
}

// ListRoles returns the roles in scope.
func (s *Store) ListRoles(ctx context.Context, scope auth.Scope) ([]auth.Role, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, name, coalesce(description, ''), coalesce(organisation_id, ''), created_at
		from roles
		where $2 or organisation_id is null or organisation_id = $1
		order by name
	`, nullIfEmpty(scope.OrganisationID), scope.All)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []auth.Role
	for rows.Next() {
		var role auth.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.OrganisationID, &role.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

// RBAC tasks --------------------------------------------------------------

// FindPolicy looks the task up by exact path. Two rows can only appear if
// the unique index was dropped; that is reported rather than picking one.
func (s *Store) FindPolicy(ctx context.Context, path string) (auth.PolicyEntry, error) {
	if s.db == nil {
		return auth.PolicyEntry{}, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, task, url_path, coalesce(organisation_id, ''), created_at
		from rbac_tasks
		where url_path = $1
		limit 2
	`, path)
	if err != nil {
		return auth.PolicyEntry{}, err
	}
	var found []auth.PolicyEntry
	for rows.Next() {
		var p auth.PolicyEntry
		if err := rows.Scan(&p.ID, &p.Task, &p.URLPath, &p.OrganisationID, &p.CreatedAt); err != nil {
			rows.Close()
			return auth.PolicyEntry{}, err
		}
		found = append(found, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return auth.PolicyEntry{}, err
	}
	switch len(found) {
	case 0:
		return auth.PolicyEntry{}, auth.ErrNotFound
	case 1:
	default:
		return auth.PolicyEntry{}, fmt.Errorf("%w: %s", auth.ErrAmbiguousPolicy, path)
	}

	entry := found[0]
	entry.Roles, err = s.taskRoles(ctx, entry.ID)
	if err != nil {
		return auth.PolicyEntry{}, fmt.Errorf("load roles for task %s: %w", entry.Task, err)
	}
	return entry, nil
}

func (s *Store) CreatePolicy(ctx context.Context, entry *auth.PolicyEntry) error {
	if s.db == nil {
		return errNoDB
	}
	if entry.ID == "" {
		entry.ID = ids.NewPrefixed("task")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		insert into rbac_tasks (id, organisation_id, url_path, task)
		values ($1, $2, $3, $4)
		returning created_at
	`, entry.ID, nullIfEmpty(entry.OrganisationID), entry.URLPath, entry.Task).Scan(&entry.CreatedAt)
	if err != nil {
		return mapWriteError(err, "rbac task "+entry.Task)
	}
	if err := assignRoles(ctx, tx, `insert into rbac_task_roles (task_id, role_id) select $1, id from roles where name = $2`,
		entry.ID, entry.Roles.Names()); err != nil {
		return err
	}
	return tx.Commit()
}

// ListPolicies returns the tasks in scope.
func (s *Store) ListPolicies(ctx context.Context, scope auth.Scope) ([]auth.PolicyEntry, error) {
	if s.db == nil {
		return nil, errNoDB
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, task, url_path, coalesce(organisation_id, ''), created_at
		from rbac_tasks
		where $2 or organisation_id is null or organisation_id = $1
		order by url_path
	`, nullIfEmpty(scope.OrganisationID), scope.All)
	if err != nil {
		return nil, err
	}
	var out []auth.PolicyEntry
	for rows.Next() {
		var p auth.PolicyEntry
		if err := rows.Scan(&p.ID, &p.Task, &p.URLPath, &p.OrganisationID, &p.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Roles, err = s.taskRoles(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// helpers -----------------------------------------------------------------

func (s *Store) taskRoles(ctx context.Context, taskID string) (auth.RoleSet, error) {
	return s.roleNames(ctx, `
		select r.name from roles r
		join rbac_task_roles tr on tr.role_id = r.id
		where tr.task_id = $1
		order by r.name
	`, taskID)
}

func (s *Store) roleNames(ctx context.Context, query, id string) (auth.RoleSet, error) {
	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := auth.NewRoleSet()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		set.Add(name)
	}
	return set, rows.Err()
}

// assignRoles runs insertQuery($1=ownerID, $2=role name) per name and fails
// with ErrNotFound for names that match no role.
func assignRoles(ctx context.Context, tx *sql.Tx, insertQuery, ownerID string, names []string) error {
	for _, name := range names {
		res, err := tx.ExecContext(ctx, insertQuery, ownerID, name)
		if err != nil {
			return mapWriteError(err, "role "+name)
		}
		aff, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if aff == 0 {
			return fmt.Errorf("%w: role %s", auth.ErrNotFound, name)
		}
	}
	return nil
}

func mapWriteError(err error, what string) error {
	if pgErr, ok := maybePgError(err); ok {
		switch pgErr.Code {
		case pgErrUniqueViolation:
			return fmt.Errorf("%w: %s", auth.ErrConflict, what)
		case pgErrForeignKeyViolation:
			return fmt.Errorf("%w: %s", auth.ErrNotFound, pgErr.ConstraintName)
		case pgErrStringTooLong:
			return fmt.Errorf("%w: %s is too long", auth.ErrInvalidInput, what)
		}
	}
	return err
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func nullIfEmpty(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
