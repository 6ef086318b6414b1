package pg

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"fieldops.io/fieldops/internal/notification"
	"fieldops.io/fieldops/internal/pkg/secret"
)

// Store is the notification.Tx backed by Queries. Sealed settings columns are
// opened here and nowhere else.
type Store struct {
	*Queries
	box *secret.Box
}

// NewStore wraps q.
func NewStore(q *Queries, box *secret.Box) *Store {
	return &Store{Queries: q, box: box}
}

// ActiveEmailConfig returns the decrypted active SMTP settings.
func (s *Store) ActiveEmailConfig(ctx context.Context) (notification.EmailConfig, bool, error) {
	row, found, err := s.GetActiveEmailSettings(ctx)
	if err != nil || !found {
		return notification.EmailConfig{}, found, err
	}
	password, err := s.box.Open(row.PasswordEncrypted)
	if err != nil {
		return notification.EmailConfig{}, false, fmt.Errorf("decrypt smtp password: %w", err)
	}
	return notification.EmailConfig{
		Host:      row.Host,
		Port:      int(row.Port),
		Username:  row.Username,
		Password:  password,
		FromEmail: row.FromEmail,
		FromName:  row.FromName,
		UseTLS:    row.UseTLS,
	}, true, nil
}

// ActiveSMSProviderConfig returns the decrypted active SMS API settings.
func (s *Store) ActiveSMSProviderConfig(ctx context.Context) (notification.SMSProviderConfig, bool, error) {
	row, found, err := s.GetActiveSMSSettings(ctx)
	if err != nil || !found {
		return notification.SMSProviderConfig{}, found, err
	}
	token, err := s.box.Open(row.AuthTokenEncrypted)
	if err != nil {
		return notification.SMSProviderConfig{}, false, fmt.Errorf("decrypt sms auth token: %w", err)
	}
	return notification.SMSProviderConfig{
		Provider:   row.Provider,
		AccountSID: row.AccountSID,
		AuthToken:  token,
		FromNumber: row.FromNumber,
		BaseURL:    row.BaseURL,
	}, true, nil
}

// SaveEmailConfig seals the password and activates cfg.
func (s *Store) SaveEmailConfig(ctx context.Context, cfg notification.EmailConfig) error {
	sealed, err := s.box.Seal(cfg.Password)
	if err != nil {
		return fmt.Errorf("encrypt smtp password: %w", err)
	}
	return s.ActivateEmailSettings(ctx, EmailSettingsRow{
		Host:              cfg.Host,
		Port:              int32(cfg.Port),
		Username:          cfg.Username,
		PasswordEncrypted: sealed,
		FromEmail:         cfg.FromEmail,
		FromName:          cfg.FromName,
		UseTLS:            cfg.UseTLS,
	})
}

// SaveSMSProviderConfig seals the auth token and activates cfg.
func (s *Store) SaveSMSProviderConfig(ctx context.Context, cfg notification.SMSProviderConfig) error {
	sealed, err := s.box.Seal(cfg.AuthToken)
	if err != nil {
		return fmt.Errorf("encrypt sms auth token: %w", err)
	}
	return s.ActivateSMSSettings(ctx, SMSSettingsRow{
		Provider:           cfg.Provider,
		AccountSID:         cfg.AccountSID,
		AuthTokenEncrypted: sealed,
		FromNumber:         cfg.FromNumber,
		BaseURL:            cfg.BaseURL,
	})
}

// TxRunner runs generation work in one pgx transaction on the shared pool.
type TxRunner struct {
	pool    *pgxpool.Pool
	queries *Queries
	box     *secret.Box
}

// NewTxRunner creates a TxRunner.
func NewTxRunner(pool *pgxpool.Pool, box *secret.Box) *TxRunner {
	return &TxRunner{pool: pool, queries: New(pool), box: box}
}

// InTx begins a transaction, hands fn a Store bound to it and commits when fn
// succeeds. Any error rolls everything back.
func (r *TxRunner) InTx(ctx context.Context, fn func(ctx context.Context, tx notification.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin generation tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, NewStore(r.queries.WithTx(tx), r.box)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit generation tx: %w", err)
	}
	return nil
}

var (
	_ notification.Tx       = (*Store)(nil)
	_ notification.TxRunner = (*TxRunner)(nil)
)
