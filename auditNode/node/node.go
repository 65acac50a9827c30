// Package node supervises the audit pipeline: it validates the account against the
// marketplace, recovers events left behind by a previous run, starts every worker and
// the query server, and stops the whole process as soon as one worker dies.
package node

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/pushchain/push-audit-node/auditNode/analyzer"
	"github.com/pushchain/push-audit-node/auditNode/api"
	"github.com/pushchain/push-audit-node/auditNode/chain"
	"github.com/pushchain/push-audit-node/auditNode/compiler"
	"github.com/pushchain/push-audit-node/auditNode/config"
	"github.com/pushchain/push-audit-node/auditNode/constant"
	nodeerrors "github.com/pushchain/push-audit-node/auditNode/errors"
	"github.com/pushchain/push-audit-node/auditNode/eventstore"
	"github.com/pushchain/push-audit-node/auditNode/metrics"
	"github.com/pushchain/push-audit-node/auditNode/report"
	"github.com/pushchain/push-audit-node/auditNode/store"
	"github.com/pushchain/push-audit-node/auditNode/upload"
	"github.com/pushchain/push-audit-node/auditNode/workers"
)

const (
	defaultHealthCheckInterval = 30 * time.Second

	restartTimeoutInfo = "timed out before restart"
)

var (
	// ErrAlreadyStarted is returned by a second call to Start.
	ErrAlreadyStarted = errors.New("node already started")

	errNotRunning = errors.New("node is not running")
	errStopped    = errors.New("node already stopped")
)

// Ledger is everything the node reads from and writes to the marketplace contract.
type Ledger interface {
	workers.Ledger
	StartupLedger
}

var _ Ledger = (*chain.Client)(nil)

// Config holds the collaborators of a Node. Uploader and HTTPClient are optional.
type Config struct {
	NodeConfig *config.Config
	Store      *eventstore.Store
	Ledger     Ledger
	State      *workers.State
	Runner     *analyzer.Runner
	Compiler   *compiler.Compiler
	Codec      *report.Codec
	Uploader   upload.Uploader
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     zerolog.Logger
}

// Node runs the audit workers until it is stopped or one of them dies.
type Node struct {
	cfg        *config.Config
	store      *eventstore.Store
	ledger     Ledger
	state      *workers.State
	runner     *analyzer.Runner
	compiler   *compiler.Compiler
	codec      *report.Codec
	uploader   upload.Uploader
	httpClient *http.Client
	metrics    *metrics.Metrics
	base       zerolog.Logger
	logger     zerolog.Logger

	server *api.Server

	mu      sync.Mutex
	started bool
	stopped bool
	alive   map[string]*atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}
	err     error

	stopOnce sync.Once
	stopErr  error
}

// NewNode checks the collaborators and returns a node that is not yet running.
func NewNode(cfg Config) (*Node, error) {
	if cfg.NodeConfig == nil {
		return nil, fmt.Errorf("node config is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("event store is required")
	}
	if cfg.Ledger == nil {
		return nil, fmt.Errorf("ledger is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("analyzer runner is required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("report codec is required")
	}
	if cfg.Metrics == nil {
		return nil, fmt.Errorf("metrics are required")
	}

	state := cfg.State
	if state == nil {
		state = workers.NewState(weiOrNil(cfg.NodeConfig.DefaultGasPriceWei))
	}
	uploader := cfg.Uploader
	if uploader == nil {
		uploader = upload.None{}
	}

	return &Node{
		cfg:        cfg.NodeConfig,
		store:      cfg.Store,
		ledger:     cfg.Ledger,
		state:      state,
		runner:     cfg.Runner,
		compiler:   cfg.Compiler,
		codec:      cfg.Codec,
		uploader:   uploader,
		httpClient: cfg.HTTPClient,
		metrics:    cfg.Metrics,
		base:       cfg.Logger,
		logger: cfg.Logger.With().
			Str("component", "audit_node").
			Str("account", cfg.Ledger.Account().Hex()).
			Logger(),
		alive: make(map[string]*atomic.Bool),
		done:  make(chan struct{}),
	}, nil
}

// Start validates the node, recovers stale events, then launches the workers and the
// query server. It returns once everything is running; use Done to wait for a failure.
func (n *Node) Start(ctx context.Context) error {
	n.mu.Lock()
	switch {
	case n.stopped:
		n.mu.Unlock()
		return errStopped
	case n.started:
		n.mu.Unlock()
		return ErrAlreadyStarted
	}
	n.mu.Unlock()

	n.logger.Info().Str("version", constant.Version).Msg("starting audit node")

	validation, err := NewStartupValidator(n.base, n.cfg, n.ledger).Validate(ctx)
	if err != nil {
		return err
	}

	if _, err := n.runner.CheckMetadata(ctx); err != nil {
		return fmt.Errorf("analyzer metadata check failed: %w", err)
	}

	var head uint64
	if err := nodeerrors.Retry(ctx, func() (err error) {
		head, err = n.ledger.HeadBlock(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("failed to read head block: %w", err)
	}

	if _, err := n.recoverStale(ctx, head, validation.SubmissionTimeoutBlocks); err != nil {
		return err
	}
	fromBlock, err := n.resumeBlock(ctx, head)
	if err != nil {
		return err
	}
	n.logger.Info().
		Uint64("head", head).
		Uint64("from_block", fromBlock).
		Msg("resuming assignment scan")

	if err := n.supervise(ctx, n.buildWorkers(validation.SubmissionTimeoutBlocks, fromBlock)); err != nil {
		return err
	}

	if n.cfg.QueryServerPort > 0 {
		n.server = api.NewServer(n.base, n.cfg.QueryServerPort, n.store, n, n.metrics.Handler())
		if err := n.server.Start(); err != nil {
			n.server = nil
			_ = n.Stop()
			return err
		}
	}

	n.logger.Info().Int("workers", len(n.alive)).Msg("audit node started")
	return nil
}

// recoverStale moves every pending event assigned more than limit blocks before head to Error.
func (n *Node) recoverStale(ctx context.Context, head, limit uint64) (int64, error) {
	moved, err := n.store.TimeoutStale(ctx, head, limit, restartTimeoutInfo,
		store.StatusAssigned, store.StatusToBeSubmitted, store.StatusSubmitted)
	if err != nil {
		return 0, fmt.Errorf("restart recovery failed: %w", err)
	}
	if moved > 0 {
		n.logger.Warn().Int64("events", moved).Msg("events timed out before restart")
	}
	return moved, nil
}

// resumeBlock is the first block scanned for assignments: the newest block already in the
// store, or block_discard_on_restart blocks behind head when the store is empty.
func (n *Node) resumeBlock(ctx context.Context, head uint64) (uint64, error) {
	latest, found, err := n.store.LatestBlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read latest stored block: %w", err)
	}
	if found {
		return latest, nil
	}
	if head < n.cfg.BlockDiscardOnRestart {
		return 0, nil
	}
	return head - n.cfg.BlockDiscardOnRestart, nil
}

func (n *Node) buildWorkers(timeoutBlocks, fromBlock uint64) []workers.Worker {
	cfg := n.cfg
	version := cfg.ReportVersion
	if version == "" {
		version = constant.Version
	}

	return []workers.Worker{
		workers.NewPoller(workers.PollConfig{
			Store:               n.store,
			Ledger:              n.ledger,
			State:               n.state,
			Metrics:             n.metrics,
			Logger:              n.base,
			Interval:            cfg.BlockPollInterval(),
			MaxAssignedRequests: cfg.MaxAssignedRequests,
			PoliceConfirmations: cfg.PoliceConfirmationBlocks,
			FromBlock:           fromBlock,
		}),
		workers.NewAuditor(workers.PerformAuditConfig{
			Store:         n.store,
			Ledger:        n.ledger,
			Runner:        n.runner,
			Compiler:      n.compiler,
			Codec:         n.codec,
			Uploader:      n.uploader,
			HTTPClient:    n.httpClient,
			Metrics:       n.metrics,
			Logger:        n.base,
			Interval:      cfg.PollInterval(),
			WorkDir:       filepath.Join(cfg.NodeHome, constant.WorkSubdir),
			FileRoot:      cfg.ContractFileRoot,
			ReportVersion: version,
		}),
		workers.NewSubmitter(workers.SubmitReportConfig{
			Store:    n.store,
			Ledger:   n.ledger,
			Codec:    n.codec,
			Metrics:  n.metrics,
			Logger:   n.base,
			Interval: cfg.PollInterval(),
		}),
		workers.NewMonitor(workers.MonitorSubmissionConfig{
			Store:                 n.store,
			Ledger:                n.ledger,
			Codec:                 n.codec,
			Metrics:               n.metrics,
			Logger:                n.base,
			Interval:              cfg.PollInterval(),
			TimeoutLimitBlocks:    timeoutBlocks,
			MaxSubmissionAttempts: cfg.MaxSubmissionAttempts,
			PoliceConfirmations:   cfg.PoliceConfirmationBlocks,
		}),
		workers.NewGasPricer(workers.GasPriceConfig{
			Ledger:       n.ledger,
			State:        n.state,
			Metrics:      n.metrics,
			Logger:       n.base,
			Interval:     cfg.BlockPollInterval(),
			Strategy:     cfg.GasPriceStrategy,
			Default:      weiOrNil(cfg.DefaultGasPriceWei),
			Max:          weiOrNil(cfg.MaxGasPriceWei),
			SampleBlocks: cfg.GasPriceSampleBlocks,
		}),
		workers.NewRewardClaimer(workers.ClaimRewardsConfig{
			Ledger:   n.ledger,
			Metrics:  n.metrics,
			Logger:   n.base,
			Interval: cfg.ClaimRewardsInterval(),
		}),
		workers.NewCollector(workers.CollectMetricsConfig{
			Store:    n.store,
			Ledger:   n.ledger,
			State:    n.state,
			Metrics:  n.metrics,
			Pusher:   metrics.NewPusher(n.metrics, cfg.MetricsPushGatewayURL, n.ledger.Account().Hex()),
			Logger:   n.base,
			Interval: cfg.MetricsInterval(),
		}),
	}
}

// supervise runs ws and the health check in one errgroup. The first error cancels the rest.
func (n *Node) supervise(parent context.Context, ws []workers.Worker) error {
	n.mu.Lock()
	if n.stopped {
		n.mu.Unlock()
		return errStopped
	}
	ctx, cancel := context.WithCancel(parent)
	g, gctx := errgroup.WithContext(ctx)
	n.started = true
	n.cancel = cancel
	for _, w := range ws {
		flag := new(atomic.Bool)
		flag.Store(true)
		n.alive[w.Name()] = flag
	}
	n.mu.Unlock()

	for _, w := range ws {
		flag := n.alive[w.Name()]
		g.Go(func() error {
			defer flag.Store(false)
			if err := w.Run(gctx); err != nil {
				return fmt.Errorf("worker %s died: %w", w.Name(), err)
			}
			if gctx.Err() == nil {
				return fmt.Errorf("worker %s exited unexpectedly", w.Name())
			}
			return nil
		})
	}
	g.Go(func() error {
		return n.watch(gctx)
	})

	go func() {
		err := g.Wait()
		if err != nil {
			n.logger.Error().Err(err).Msg("audit node stopping")
		}
		n.mu.Lock()
		n.err = err
		n.mu.Unlock()
		cancel()
		close(n.done)
	}()
	return nil
}

// watch fails the group as soon as any worker is no longer running.
func (n *Node) watch(ctx context.Context) error {
	interval := n.cfg.HealthCheckInterval()
	if interval <= 0 {
		interval = defaultHealthCheckInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			if err := n.Healthy(); err != nil {
				return nodeerrors.NewInternalError("audit_node", "health check failed", err).
					WithSeverity(nodeerrors.SeverityCritical)
			}
		}
	}
}

// Healthy returns an error naming the first worker that is not running.
func (n *Node) Healthy() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.started {
		return errNotRunning
	}
	for name, flag := range n.alive {
		if !flag.Load() {
			return fmt.Errorf("worker %s is not running", name)
		}
	}
	return nil
}

// Done is closed once every worker has returned, or by Stop when the workers never ran.
func (n *Node) Done() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.done
}

// Err returns the error that stopped the node, if any. Valid after Done is closed.
func (n *Node) Err() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.err
}

// Stop cancels the workers, waits for all of them and then releases the query server,
// the uploader and the event store. It returns the error that killed a worker, if any.
func (n *Node) Stop() error {
	n.stopOnce.Do(func() {
		n.mu.Lock()
		n.stopped = true
		cancel, done := n.cancel, n.done
		n.mu.Unlock()

		if cancel != nil {
			cancel()
			<-done
		} else {
			close(done)
		}

		var errs []error
		if n.server != nil {
			if err := n.server.Stop(); err != nil {
				errs = append(errs, fmt.Errorf("failed to stop query server: %w", err))
			}
		}
		if err := n.uploader.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close uploader: %w", err))
		}
		if err := n.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close event store: %w", err))
		}
		if err := n.Err(); err != nil {
			errs = append(errs, err)
		}
		n.stopErr = errors.Join(errs...)
		n.logger.Info().Msg("audit node stopped")
	})
	return n.stopErr
}

func weiOrNil(v uint64) *big.Int {
	if v == 0 {
		return nil
	}
	return new(big.Int).SetUint64(v)
}
