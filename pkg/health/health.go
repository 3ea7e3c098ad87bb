package health

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"discussion-facilitator/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Status represents the health status of a component
type Status string

const (
	// StatusUp indicates a component is working correctly
	StatusUp Status = "up"
	// StatusDown indicates a component is not working
	StatusDown Status = "down"
	// StatusDegraded indicates a component is working but with reduced functionality
	StatusDegraded Status = "degraded"
)

// Component represents a system component that can be health-checked
type Component struct {
	Name        string    `json:"name"`
	Status      Status    `json:"status"`
	Critical    bool      `json:"critical"`
	Description string    `json:"description,omitempty"`
	Error       string    `json:"error,omitempty"`
	LastChecked time.Time `json:"last_checked"`
}

// Check represents a health check function
type Check func(ctx context.Context) (Status, string, error)

type registeredCheck struct {
	check    Check
	critical bool
}

// Checker manages health checks for the system
type Checker struct {
	checks      map[string]registeredCheck
	components  map[string]*Component
	checkPeriod time.Duration
	timeout     time.Duration
	mutex       sync.RWMutex
	log         *logger.Logger

	listeners   []func(healthy bool)
	lastHealthy *bool
}

// NewChecker creates a new health checker
func NewChecker(log *logger.Logger, checkPeriod time.Duration) *Checker {
	if checkPeriod <= 0 {
		checkPeriod = 30 * time.Second
	}
	checker := &Checker{
		checks:      make(map[string]registeredCheck),
		components:  make(map[string]*Component),
		checkPeriod: checkPeriod,
		timeout:     5 * time.Second,
		log:         log.Named("health"),
	}

	checker.RegisterCheck("self", false, func(context.Context) (Status, string, error) {
		return StatusUp, "Health checker is running", nil
	})

	return checker
}

// RegisterCheck registers a new health check. A critical component that is
// down makes the whole system unhealthy.
func (c *Checker) RegisterCheck(name string, critical bool, check Check) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.checks[name] = registeredCheck{check: check, critical: critical}
	c.components[name] = &Component{
		Name:        name,
		Status:      StatusDown,
		Critical:    critical,
		Description: "Not checked yet",
	}
}

// OnChange registers fn to be called whenever overall health flips.
// fn is called once after the first round of checks.
func (c *Checker) OnChange(fn func(healthy bool)) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.listeners = append(c.listeners, fn)
}

type checkResult struct {
	status      Status
	description string
	err         error
}

// RunChecks executes all registered health checks
func (c *Checker) RunChecks(ctx context.Context) {
	c.mutex.RLock()
	checks := make(map[string]registeredCheck, len(c.checks))
	for name, rc := range c.checks {
		checks[name] = rc
	}
	c.mutex.RUnlock()

	// checks do I/O, so they run without the lock held
	results := make(map[string]checkResult, len(checks))
	for name, rc := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
		status, description, err := rc.check(checkCtx)
		cancel()
		results[name] = checkResult{status: status, description: description, err: err}
	}

	now := time.Now()
	c.mutex.Lock()
	for name, res := range results {
		component, ok := c.components[name]
		if !ok {
			continue
		}
		component.Status = res.status
		component.Description = res.description
		component.LastChecked = now

		if res.err != nil {
			component.Error = res.err.Error()
			c.log.Error("Health check failed",
				"component", name,
				"status", string(res.status),
				"error", res.err.Error(),
			)
		} else {
			component.Error = ""
			c.log.Debug("Health check completed",
				"component", name,
				"status", string(res.status),
			)
		}
	}

	healthy := c.healthyLocked()
	var notify []func(bool)
	if c.lastHealthy == nil || *c.lastHealthy != healthy {
		c.lastHealthy = &healthy
		notify = append(notify, c.listeners...)
	}
	c.mutex.Unlock()

	for _, fn := range notify {
		fn(healthy)
	}
}

// Start runs the checks immediately and then every check period until ctx is done
func (c *Checker) Start(ctx context.Context) {
	go func() {
		c.RunChecks(ctx)

		ticker := time.NewTicker(c.checkPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.RunChecks(ctx)
			}
		}
	}()
}

// GetStatus returns a copy of the current component statuses
func (c *Checker) GetStatus() map[string]*Component {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	result := make(map[string]*Component, len(c.components))
	for k, v := range c.components {
		componentCopy := *v
		result[k] = &componentCopy
	}

	return result
}

// IsSystemHealthy returns true if all critical components are up
func (c *Checker) IsSystemHealthy() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.healthyLocked()
}

func (c *Checker) healthyLocked() bool {
	for _, component := range c.components {
		if component.Critical && component.Status == StatusDown {
			return false
		}
	}
	return true
}

// Handler serves the aggregated health report
func (c *Checker) Handler() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		status := c.GetStatus()
		names := make([]string, 0, len(status))
		for name := range status {
			names = append(names, name)
		}
		sort.Strings(names)

		components := make([]*Component, 0, len(names))
		for _, name := range names {
			components = append(components, status[name])
		}

		code, overall := http.StatusOK, "ok"
		if !c.IsSystemHealthy() {
			code, overall = http.StatusServiceUnavailable, "unavailable"
		}

		ctx.JSON(code, gin.H{
			"status":     overall,
			"timestamp":  time.Now().UTC(),
			"components": components,
		})
	}
}

// RegisterDatabaseCheck registers the critical message store check
func (c *Checker) RegisterDatabaseCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("database", true, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDown, "Message store is unreachable", err
		}
		return StatusUp, "Message store connection is established", nil
	})
}

// RegisterRedisCheck registers the change-feed relay check. Losing redis only
// degrades cross-instance push; polling clients keep working.
func (c *Checker) RegisterRedisCheck(ping func(ctx context.Context) error) {
	c.RegisterCheck("redis", false, func(ctx context.Context) (Status, string, error) {
		if err := ping(ctx); err != nil {
			return StatusDegraded, "Change feed relay is unreachable", err
		}
		return StatusUp, "Change feed relay is connected", nil
	})
}

// RegisterFacilitatorCheck reports the facilitator circuit state
func (c *Checker) RegisterFacilitatorCheck(state func() string) {
	c.RegisterCheck("facilitator", false, func(context.Context) (Status, string, error) {
		switch s := state(); s {
		case "open":
			return StatusDegraded, "Facilitator circuit is open", nil
		case "disabled":
			return StatusUp, "Facilitator is disabled", nil
		default:
			return StatusUp, "Facilitator circuit is " + s, nil
		}
	})
}
