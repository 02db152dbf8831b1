package huebot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// TaskState is the lifecycle state of one provisioning task.
type TaskState string

const (
	TaskStatePending   TaskState = "pending"
	TaskStateRetrying  TaskState = "retrying"
	TaskStateDone      TaskState = "done"
	TaskStateAbandoned TaskState = "abandoned"
)

func (s TaskState) String() string {
	return string(s)
}

// RoleSession is the subset of [discordgo.Session] the provisioner needs,
// to enable testing/mocking.
type RoleSession interface {
	// GuildRoles returns all roles for the given guild
	GuildRoles(
		guildID string,
		options ...discordgo.RequestOption,
	) ([]*discordgo.Role, error)

	// GuildRoleCreate creates a new role in the given guild
	GuildRoleCreate(
		guildID string,
		data *discordgo.RoleParams,
		options ...discordgo.RequestOption,
	) (*discordgo.Role, error)
}

// provisionTask pairs a RoleTask with its mutable run state. Only the
// worker that popped the task touches State/Attempts.
type provisionTask struct {
	RoleTask
	State    TaskState
	Attempts int
}

// Provisioner drains a list of role-creation tasks across a fixed-size
// pool of workers.
//
// Each worker atomically pops the next unclaimed task from the shared
// pending list until it's empty. A task whose name already exists in the
// pre-fetched guild role snapshot is counted as satisfied without a
// request. Rate-limited creations sleep (server-suggested duration, or
// [ProvisionConfig.RetryInterval]) and retry the same task, bounded by
// [ProvisionConfig.MaxAttempts] (0 = unbounded). Any other error abandons
// the task and the worker moves on; a single task failure never fails the
// batch.
type Provisioner struct {
	session RoleSession
	config  ProvisionConfig
	logger  *slog.Logger

	// limiter paces role creations across all workers
	limiter *rate.Limiter

	mu      sync.Mutex
	pending []*provisionTask
	done    []*provisionTask
	results []*discordgo.Role

	metricCreated   atomic.Int64
	metricExisting  atomic.Int64
	metricAbandoned atomic.Int64

	// sleep is replaced in tests to count rate-limit backoffs without
	// waiting them out
	sleep func(ctx context.Context, d time.Duration) error
}

// ProvisionSummary reports the outcome of one provisioning run.
type ProvisionSummary struct {
	// Available is the number of palette roles that now exist in the
	// guild (created this run or pre-existing)
	Available int `json:"available"`

	Created   int64 `json:"created"`
	Existing  int64 `json:"existing"`
	Abandoned int64 `json:"abandoned"`
}

func (s ProvisionSummary) String() string {
	return fmt.Sprintf(
		"%d color roles available (%d created, %d already existed, %d failed)",
		s.Available,
		s.Created,
		s.Existing,
		s.Abandoned,
	)
}

// NewProvisioner creates a Provisioner using the given session and config.
// If logger is nil, slog.Default() is used.
func NewProvisioner(
	session RoleSession,
	config ProvisionConfig,
	logger *slog.Logger,
) *Provisioner {
	if logger == nil {
		logger = slog.Default()
	}
	limit := rate.Inf
	if config.CreateInterval > 0 {
		limit = rate.Every(config.CreateInterval)
	}
	return &Provisioner{
		session: session,
		config:  config,
		logger:  logger.With(loggerNameKey, "provisioner"),
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run provisions the given tasks in the given guild, returning the role
// handles that exist once the queue is drained. Task-level failures are
// logged and counted, never returned; the error return covers run-level
// problems only (fetching the role snapshot, or context cancellation).
func (p *Provisioner) Run(
	ctx context.Context,
	guildID string,
	tasks []RoleTask,
) ([]*discordgo.Role, error) {
	logger, ok := ContextLogger(ctx)
	if logger == nil || !ok {
		logger = p.logger
		ctx = WithLogger(ctx, logger)
	}

	guildRoles, err := p.session.GuildRoles(guildID)
	if err != nil {
		return nil, fmt.Errorf("error fetching guild roles: %w", err)
	}
	existing := make(map[string]*discordgo.Role, len(guildRoles))
	for _, role := range guildRoles {
		existing[role.Name] = role
	}

	p.mu.Lock()
	p.pending = make([]*provisionTask, 0, len(tasks))
	p.done = p.done[:0]
	p.results = p.results[:0]
	for _, t := range tasks {
		p.pending = append(
			p.pending,
			&provisionTask{RoleTask: t, State: TaskStatePending},
		)
	}
	p.mu.Unlock()

	workers := p.config.Workers
	if workers < 1 {
		workers = 1
	}

	logger.InfoContext(
		ctx,
		"starting provisioning run",
		"guild_id", guildID,
		"tasks", len(tasks),
		"workers", workers,
		"existing_roles", len(existing),
	)

	g, workerCtx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		workerID := i
		g.Go(
			func() error {
				return p.worker(workerCtx, guildID, existing, workerID)
			},
		)
	}
	runErr := g.Wait()
	if runErr == nil && ctx.Err() != nil {
		runErr = ctx.Err()
	}

	p.mu.Lock()
	results := make([]*discordgo.Role, len(p.results))
	copy(results, p.results)
	p.mu.Unlock()

	logger.InfoContext(
		ctx,
		"provisioning run finished",
		"summary", p.Summary(),
	)
	return results, runErr
}

// Summary returns the counters for the most recent run.
func (p *Provisioner) Summary() ProvisionSummary {
	p.mu.Lock()
	available := len(p.results)
	p.mu.Unlock()
	return ProvisionSummary{
		Available: available,
		Created:   p.metricCreated.Load(),
		Existing:  p.metricExisting.Load(),
		Abandoned: p.metricAbandoned.Load(),
	}
}

// TaskStates returns the final state of each task from the most recent
// run, keyed by role name.
func (p *Provisioner) TaskStates() map[string]TaskState {
	p.mu.Lock()
	defer p.mu.Unlock()

	states := make(map[string]TaskState, len(p.done)+len(p.pending))
	for _, t := range p.done {
		states[t.Name] = t.State
	}
	for _, t := range p.pending {
		states[t.Name] = t.State
	}
	return states
}

// pop removes and returns the next pending task. Returns nil when the
// queue is empty. The pop is atomic relative to other workers, so no
// task is ever claimed twice.
func (p *Provisioner) pop() *provisionTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return nil
	}
	task := p.pending[0]
	p.pending = p.pending[1:]
	p.done = append(p.done, task)
	return task
}

func (p *Provisioner) appendResult(role *discordgo.Role) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results = append(p.results, role)
}

func (p *Provisioner) worker(
	ctx context.Context,
	guildID string,
	existing map[string]*discordgo.Role,
	workerID int,
) error {
	logger := p.logger.With("worker", workerID)

	for {
		task := p.pop()
		if task == nil {
			return nil
		}

		if ctx.Err() != nil {
			task.State = TaskStateAbandoned
			p.metricAbandoned.Add(1)
			logger.WarnContext(
				ctx,
				"context canceled, abandoning task",
				"task", task.RoleTask,
			)
			continue
		}

		if role, found := existing[task.Name]; found {
			task.State = TaskStateDone
			p.metricExisting.Add(1)
			p.appendResult(role)
			logger.InfoContext(
				ctx,
				"role already exists, skipping",
				"task", task.RoleTask,
				"role_id", role.ID,
			)
			continue
		}

		role, err := p.createWithRetry(ctx, guildID, task, logger)
		if err != nil {
			// already logged and counted, the batch continues
			continue
		}

		task.State = TaskStateDone
		p.metricCreated.Add(1)
		p.appendResult(role)
		logger.InfoContext(
			ctx,
			"created role",
			"task", task.RoleTask,
			"role_id", role.ID,
			"attempts", task.Attempts,
		)

		// pace successful creations to stay under platform limits
		if waitErr := p.limiter.Wait(ctx); waitErr != nil {
			logger.WarnContext(ctx, "pacing interrupted", tint.Err(waitErr))
		}
	}
}

// createWithRetry attempts to create the role for the given task,
// retrying in place while the failure is classified as rate limiting.
func (p *Provisioner) createWithRetry(
	ctx context.Context,
	guildID string,
	task *provisionTask,
	logger *slog.Logger,
) (*discordgo.Role, error) {
	for {
		task.Attempts++
		role, err := p.session.GuildRoleCreate(
			guildID,
			&discordgo.RoleParams{
				Name:  task.Name,
				Color: &task.Color,
			},
		)
		if err == nil {
			return role, nil
		}

		retryAfter, rateLimited := rateLimitDelay(err)
		if !rateLimited {
			task.State = TaskStateAbandoned
			p.metricAbandoned.Add(1)
			logger.ErrorContext(
				ctx,
				"error creating role, abandoning task",
				"task", task.RoleTask,
				"attempts", task.Attempts,
				tint.Err(err),
			)
			return nil, err
		}

		if p.config.MaxAttempts > 0 && task.Attempts >= p.config.MaxAttempts {
			task.State = TaskStateAbandoned
			p.metricAbandoned.Add(1)
			logger.ErrorContext(
				ctx,
				"rate limited too many times, abandoning task",
				"task", task.RoleTask,
				"attempts", task.Attempts,
				tint.Err(err),
			)
			return nil, err
		}

		if retryAfter <= 0 {
			retryAfter = p.config.RetryInterval
		}
		task.State = TaskStateRetrying
		logger.WarnContext(
			ctx,
			"rate limited, retrying task",
			"task", task.RoleTask,
			"attempts", task.Attempts,
			"retry_after", retryAfter,
		)
		if sleepErr := p.sleep(ctx, retryAfter); sleepErr != nil {
			task.State = TaskStateAbandoned
			p.metricAbandoned.Add(1)
			logger.WarnContext(
				ctx,
				"retry sleep interrupted, abandoning task",
				"task", task.RoleTask,
				tint.Err(sleepErr),
			)
			return nil, sleepErr
		}
	}
}

// rateLimitDelay classifies an error as transient rate limiting, and
// returns the server-suggested wait duration when one is available.
func rateLimitDelay(err error) (time.Duration, bool) {
	if err == nil {
		return 0, false
	}

	var rateLimitErr *discordgo.RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr.RetryAfter, true
	}

	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Response != nil &&
		restErr.Response.StatusCode == http.StatusTooManyRequests {
		return 0, true
	}

	if strings.Contains(strings.ToLower(err.Error()), "rate limit") {
		return 0, true
	}
	return 0, false
}
