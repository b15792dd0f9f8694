package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/orders-dashboard/internal/domain/client"
)

const (
	clientColumns = `id, full_name, phone, address, cashback, comment`

	listClientsSQL = `SELECT ` + clientColumns + ` FROM clients ORDER BY id`

	getClientByIDSQL = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1`

	getClientByNameSQL = `SELECT ` + clientColumns + ` FROM clients
		WHERE full_name = $1 ORDER BY id LIMIT 1`

	lockClientSQL = `SELECT ` + clientColumns + ` FROM clients WHERE id = $1 FOR UPDATE`

	createClientSQL = `INSERT INTO clients (full_name, phone, address, cashback, comment)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	updateClientProfileSQL = `UPDATE clients
		SET full_name = $2, phone = $3, address = $4, comment = $5
		WHERE id = $1`

	deleteClientSQL = `DELETE FROM clients WHERE id = $1`

	listClientPhonesSQL = `SELECT phone FROM clients`
)

var _ client.Repository = (*ClientRepository)(nil)

// ClientRepository implements client.Repository backed by PostgreSQL.
type ClientRepository struct {
	pool *pgxpool.Pool
}

// NewClientRepository returns a ClientRepository that uses the given pool.
func NewClientRepository(pool *pgxpool.Pool) *ClientRepository {
	return &ClientRepository{pool: pool}
}

// List returns all clients ordered by ID.
func (r *ClientRepository) List(ctx context.Context) ([]client.Client, error) {
	rows, err := r.pool.Query(ctx, listClientsSQL)
	if err != nil {
		return nil, fmt.Errorf("listing clients: %w", err)
	}
	return pgx.CollectRows(rows, scanClient)
}

// GetByID returns a single client.
func (r *ClientRepository) GetByID(ctx context.Context, id int64) (*client.Client, error) {
	return getClient(ctx, r.pool, getClientByIDSQL, id)
}

// GetByName returns the oldest client with the given full name.
func (r *ClientRepository) GetByName(ctx context.Context, fullName string) (*client.Client, error) {
	return getClient(ctx, r.pool, getClientByNameSQL, fullName)
}

// Create inserts c and sets its ID.
func (r *ClientRepository) Create(ctx context.Context, c *client.Client) error {
	err := r.pool.QueryRow(ctx, createClientSQL,
		c.FullName, c.Phone, c.Address, c.Cashback, c.Comment,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("creating client: %w", err)
	}
	return nil
}

// UpdateProfile overwrites the profile fields. The cashback balance is left
// untouched.
func (r *ClientRepository) UpdateProfile(ctx context.Context, id int64, p client.Profile) error {
	tag, err := r.pool.Exec(ctx, updateClientProfileSQL, id, p.FullName, p.Phone, p.Address, p.Comment)
	if err != nil {
		return fmt.Errorf("updating client %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return client.ErrNotFound
	}
	return nil
}

// Delete removes the client together with its orders.
func (r *ClientRepository) Delete(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, deleteClientSQL, id)
	if err != nil {
		return fmt.Errorf("deleting client %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return client.ErrNotFound
	}
	return nil
}

// Phones streams every stored phone number to fn.
func (r *ClientRepository) Phones(ctx context.Context, fn func(phone string)) error {
	rows, err := r.pool.Query(ctx, listClientPhonesSQL)
	if err != nil {
		return fmt.Errorf("listing phones: %w", err)
	}
	var phone string
	_, err = pgx.ForEachRow(rows, []any{&phone}, func() error {
		fn(phone)
		return nil
	})
	if err != nil {
		return fmt.Errorf("scanning phones: %w", err)
	}
	return nil
}

// CopyClients bulk-inserts clients with COPY and returns the number of
// rows written. IDs are not reported back.
func (r *ClientRepository) CopyClients(ctx context.Context, clients []client.Client) (int64, error) {
	n, err := r.pool.CopyFrom(ctx,
		pgx.Identifier{"clients"},
		[]string{"full_name", "phone", "address", "cashback", "comment"},
		pgx.CopyFromSlice(len(clients), func(i int) ([]any, error) {
			c := clients[i]
			return []any{c.FullName, c.Phone, c.Address, c.Cashback, c.Comment}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copying clients: %w", err)
	}
	return n, nil
}

// PhoneExists reports whether any client has the given phone.
func (r *ClientRepository) PhoneExists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM clients WHERE phone = $1)`, phone).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking phone: %w", err)
	}
	return exists, nil
}

func getClient(ctx context.Context, q querier, sql string, arg any) (*client.Client, error) {
	rows, err := q.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("getting client %v: %w", arg, err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanClient)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, client.ErrNotFound
		}
		return nil, fmt.Errorf("getting client %v: %w", arg, err)
	}
	return &c, nil
}

func scanClient(row pgx.CollectableRow) (client.Client, error) {
	var c client.Client
	err := row.Scan(&c.ID, &c.FullName, &c.Phone, &c.Address, &c.Cashback, &c.Comment)
	return c, err
}
