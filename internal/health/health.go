package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported alongside "".
const ServiceName = "cart.CartService"

const (
	StatusUp   = "up"
	StatusDown = "down"
)

// Check reports on one dependency.
type Check func(ctx context.Context) error

type Report struct {
	Status    string            `json:"status"`
	Checks    map[string]string `json:"checks"`
	CheckedAt time.Time         `json:"timestamp"`
}

func (r Report) Healthy() bool {
	return r.Status == StatusUp
}

// Checker runs the registered dependency checks and mirrors the result into a
// gRPC health server.
type Checker struct {
	mu      sync.RWMutex
	names   []string
	checks  map[string]Check
	last    Report
	timeout time.Duration
	server  *grpchealth.Server
	logger  *zap.Logger
}

func NewChecker(timeout time.Duration, logger *zap.Logger) *Checker {
	return &Checker{
		checks:  make(map[string]Check),
		timeout: timeout,
		server:  grpchealth.NewServer(),
		logger:  logger,
	}
}

func (c *Checker) Register(name string, check Check) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.checks[name]; !ok {
		c.names = append(c.names, name)
		sort.Strings(c.names)
	}
	c.checks[name] = check
}

// Run executes every check concurrently and updates the serving status.
func (c *Checker) Run(ctx context.Context) Report {
	c.mu.RLock()
	names := append([]string(nil), c.names...)
	checks := make([]Check, len(names))
	for i, n := range names {
		checks[i] = c.checks[n]
	}
	c.mu.RUnlock()

	results := make([]error, len(names))
	var wg sync.WaitGroup
	for i := range checks {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			results[i] = checks[i](cctx)
		}(i)
	}
	wg.Wait()

	report := Report{Status: StatusUp, Checks: make(map[string]string, len(names)), CheckedAt: time.Now().UTC()}
	for i, name := range names {
		if results[i] != nil {
			report.Status = StatusDown
			report.Checks[name] = results[i].Error()
			continue
		}
		report.Checks[name] = StatusUp
	}

	c.publish(report)
	return report
}

// Last returns the most recent report without probing.
func (c *Checker) Last() Report {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Watch re-runs the checks every interval until ctx is done.
func (c *Checker) Watch(ctx context.Context, interval time.Duration) {
	c.Run(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Run(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING so load balancers drain first.
func (c *Checker) Shutdown() {
	c.server.Shutdown()
}

func (c *Checker) publish(report Report) {
	c.mu.Lock()
	prev := c.last
	c.last = report
	c.mu.Unlock()

	status := grpc_health_v1.HealthCheckResponse_SERVING
	if !report.Healthy() {
		status = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	c.server.SetServingStatus("", status)
	c.server.SetServingStatus(ServiceName, status)

	if prev.Status != report.Status {
		if report.Healthy() {
			c.logger.Info("dependencies healthy", zap.Any("checks", report.Checks))
		} else {
			c.logger.Warn("dependencies unhealthy", zap.Any("checks", report.Checks))
		}
	}
}

// NewGRPCServer builds the gRPC server exposing grpc.health.v1 and reflection.
func (c *Checker) NewGRPCServer(opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.StatsHandler(otelgrpc.NewServerHandler()))
	s := grpc.NewServer(opts...)
	grpc_health_v1.RegisterHealthServer(s, c.server)

	// Enable reflection for grpcurl/grpcui
	reflection.Register(s)
	return s
}
