/*
scheduler.go - Periodic balance cache audit

PURPOSE:
  Periodically recomputes every client's balances from the transaction log
  and credit line and compares them with the cached copy. Inconsistencies
  are logged and published as a metric; they are never repaired silently.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Repair stays an explicit admin action (POST /api/admin/refresh-cache)

CONFIGURATION:
  - CheckInterval: How often to audit (AUDIT_INTERVAL, default: off)
  - Enabled: Whether scheduler is active

USAGE:
  scheduler := NewAuditScheduler(engine, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: GetAudit endpoint (manual audit)
  - ledger/engine.go: Engine.Audit
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/bank-ledger/ledger"
)

// AuditReporter receives the finding count of each audit run.
type AuditReporter interface {
	SetAuditFindings(n int)
}

// AuditScheduler runs Engine.Audit on a fixed interval.
type AuditScheduler struct {
	Engine        *ledger.Engine
	Logger        *zap.Logger
	Reporter      AuditReporter
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun      time.Time
	lastFindings int
}

// NewAuditScheduler creates a scheduler with a one hour interval.
func NewAuditScheduler(engine *ledger.Engine, logger *zap.Logger) *AuditScheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditScheduler{
		Engine:        engine,
		Logger:        logger.Named("audit"),
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

// Start begins the scheduler.
func (as *AuditScheduler) Start() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if !as.Enabled || as.CheckInterval <= 0 {
		as.Logger.Info("audit scheduler disabled")
		return
	}
	if as.ticker != nil {
		return
	}

	as.ticker = time.NewTicker(as.CheckInterval)
	as.stop = make(chan struct{})
	as.wg.Add(1)

	go as.run(as.ticker, as.stop)

	as.Logger.Info("audit scheduler started", zap.Duration("interval", as.CheckInterval))
}

// Stop stops the scheduler and waits for a running audit to finish.
func (as *AuditScheduler) Stop() {
	as.mu.Lock()
	ticker, stop := as.ticker, as.stop
	as.ticker, as.stop = nil, nil
	as.mu.Unlock()

	if ticker == nil {
		return
	}
	ticker.Stop()
	close(stop)
	as.wg.Wait()
	as.Logger.Info("audit scheduler stopped")
}

func (as *AuditScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer as.wg.Done()

	// Run immediately on start
	as.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			as.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow performs one audit and returns its findings.
func (as *AuditScheduler) RunNow(ctx context.Context) ([]ledger.AuditFinding, error) {
	start := time.Now()
	findings, err := as.Engine.Audit(ctx)
	if err != nil {
		as.Logger.Error("balance audit failed", zap.Error(err))
		return nil, err
	}

	as.mu.Lock()
	as.lastRun = start
	as.lastFindings = len(findings)
	as.mu.Unlock()

	if as.Reporter != nil {
		as.Reporter.SetAuditFindings(len(findings))
	}
	for _, f := range findings {
		as.Logger.Warn("balance cache inconsistent",
			zap.Int("client", int(f.ClientNumber)),
			zap.String("problem", f.Problem),
			zap.Stringer("actual_real", f.Actual.Real),
			zap.Stringer("actual_combined", f.Actual.Combined),
		)
	}
	as.Logger.Debug("balance audit completed",
		zap.Int("findings", len(findings)),
		zap.Duration("took", time.Since(start)),
	)
	return findings, nil
}

// LastRun reports when the last audit completed and what it found.
func (as *AuditScheduler) LastRun() (time.Time, int) {
	as.mu.Lock()
	defer as.mu.Unlock()
	return as.lastRun, as.lastFindings
}
