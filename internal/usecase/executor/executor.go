package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/LavaJover/shvark-recovery-service/internal/domain"
	"github.com/LavaJover/shvark-recovery-service/internal/infrastructure/metrics"
	"github.com/cenkalti/backoff/v4"
)

type Config struct {
	// Timeout bounds one execution attempt including transient retries.
	Timeout         time.Duration
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = 500 * time.Millisecond
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = 5 * time.Second
	}
	return c
}

// Result is the explicit outcome of an attempt. Unconfirmed means the
// rotation may have reached the ledger but no answer came back; the
// submission has to be looked up before anything is sent again.
type Result struct {
	Success     bool
	Unconfirmed bool
	ReceiptID   string
	Reason      string
	Kind        domain.FailureKind
	OldSigner   *domain.Signer
}

func failure(kind domain.FailureKind, format string, args ...any) *Result {
	return &Result{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

type Executor struct {
	ledger  domain.LedgerClient
	opener  domain.Opener
	signers domain.SignerDirectory
	metrics *metrics.RecoveryMetrics
	logger  *slog.Logger
	cfg     Config
}

func New(
	ledger domain.LedgerClient,
	opener domain.Opener,
	signers domain.SignerDirectory,
	recoveryMetrics *metrics.RecoveryMetrics,
	logger *slog.Logger,
	cfg Config,
) *Executor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		ledger:  ledger,
		opener:  opener,
		signers: signers,
		metrics: recoveryMetrics,
		logger:  logger,
		cfg:     cfg.withDefaults(),
	}
}

// Execute submits the signer rotation for req. The returned error is reserved
// for failures to read local state before anything was sent to the ledger.
func (e *Executor) Execute(ctx context.Context, req *domain.RecoveryRequest) (*Result, error) {
	wallet, err := e.signers.GetWallet(ctx, req.WalletID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return failure(domain.FailureBusiness, "custody wallet %s not found", req.WalletID), nil
		}
		return nil, fmt.Errorf("load wallet: %w", err)
	}
	signers, err := e.signers.ListSigners(ctx, req.WalletID)
	if err != nil {
		return nil, fmt.Errorf("load signers: %w", err)
	}
	old, err := domain.ActiveUserSigner(signers)
	if err != nil {
		return failure(domain.FailureBusiness, "cannot select signer to replace: %v", err), nil
	}
	if old.PublicKey == req.NewPublicKey {
		return failure(domain.FailureBusiness, "replacement key is already the active signer"), nil
	}

	secret, err := e.opener.Open(req.EncryptedNewSecret)
	if err != nil {
		e.logger.Error("failed to open recovery key material", "request_id", req.ID, "error", err)
		return failure(domain.FailureEncryption, "%v", domain.ErrEncryption), nil
	}
	defer zero(secret)

	rotation := domain.LedgerRotation{
		AccountKey:    wallet.AccountKey,
		OldKey:        old.PublicKey,
		NewKey:        req.NewPublicKey,
		Weight:        old.Weight,
		SubmissionID:  req.SubmissionID,
		SigningSecret: secret,
	}

	receipt, attempts, err := e.submit(ctx, rotation)
	if err != nil {
		e.logger.Warn("signer rotation failed",
			"request_id", req.ID,
			"submission_id", req.SubmissionID,
			"attempts", attempts,
			"error", err,
		)
		return classify(err), nil
	}

	e.logger.Info("signer rotation accepted",
		"request_id", req.ID,
		"wallet_id", req.WalletID,
		"receipt_id", receipt.ReceiptID,
		"attempts", attempts,
	)
	return &Result{Success: true, ReceiptID: receipt.ReceiptID, OldSigner: old}, nil
}

// submit retries temporary ledger errors with exponential backoff inside the
// attempt timeout. The submission id doubles as the ledger idempotency key, so
// a retried call cannot apply twice.
func (e *Executor) submit(ctx context.Context, rotation domain.LedgerRotation) (*domain.LedgerReceipt, int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = e.cfg.InitialInterval
	bo.MaxInterval = e.cfg.MaxInterval
	bo.MaxElapsedTime = 0

	started := time.Now()
	attempts := 0
	var receipt *domain.LedgerReceipt
	err := backoff.Retry(func() error {
		attempts++
		r, err := e.ledger.SubmitSignerRotation(ctx, rotation)
		if err == nil {
			if r == nil || r.ReceiptID == "" {
				return backoff.Permanent(&domain.LedgerError{Code: domain.LedgerCodeEmptyReceipt, Message: "ledger reported success without a receipt"})
			}
			receipt = r
			return nil
		}
		if isTemporary(err) && ctx.Err() == nil {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))

	e.metrics.RecordLedgerSubmit(err == nil, time.Since(started).Seconds(), attempts)
	if err != nil {
		return nil, attempts, err
	}
	return receipt, attempts, nil
}

func isTemporary(err error) bool {
	var ledgerErr *domain.LedgerError
	if errors.As(err, &ledgerErr) {
		return ledgerErr.Temporary
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return true
	}
	return false
}

// classify turns a failed submission into a Result. Only an explicit answer
// from the ledger, or an error raised before the request left this process,
// is a definite failure.
func classify(err error) *Result {
	if errors.Is(err, domain.ErrEncryption) {
		return failure(domain.FailureEncryption, "%v", err)
	}
	var ledgerErr *domain.LedgerError
	if errors.As(err, &ledgerErr) && !ledgerErr.Unconfirmed() {
		return failure(domain.FailureLedger, "%s", describe(err))
	}
	result := failure(domain.FailureLedger, "%s", describe(err))
	result.Unconfirmed = true
	return result
}

func describe(err error) string {
	var ledgerErr *domain.LedgerError
	switch {
	case errors.As(err, &ledgerErr):
		return ledgerErr.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "ledger submission timed out without confirmation"
	case errors.Is(err, context.Canceled):
		return "ledger submission was interrupted"
	}
	return fmt.Sprintf("ledger submission error: %v", err)
}

// Reconcile asks the ledger whether a previously started submission applied.
func (e *Executor) Reconcile(ctx context.Context, req *domain.RecoveryRequest) (*domain.LedgerReceipt, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()
	return e.ledger.LookupSubmission(ctx, req.SubmissionID)
}

// CurrentUserSigner returns the signer a reconciled submission replaced.
func (e *Executor) CurrentUserSigner(ctx context.Context, walletID string) (*domain.Signer, error) {
	signers, err := e.signers.ListSigners(ctx, walletID)
	if err != nil {
		return nil, err
	}
	return domain.ActiveUserSigner(signers)
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
