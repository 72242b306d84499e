package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	//nolint:gosec // only exposed if pprofAddr config is set
	_ "net/http/pprof"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/ethpandaops/election-coordinator/pkg/consul"
	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/ethpandaops/election-coordinator/pkg/etcd"
	"github.com/ethpandaops/election-coordinator/pkg/hooks"
	"github.com/ethpandaops/election-coordinator/pkg/leasestore"
	"github.com/ethpandaops/election-coordinator/pkg/observability"
	"github.com/ethpandaops/election-coordinator/pkg/redis"
	"github.com/ethpandaops/election-coordinator/pkg/watcher"
	r "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	clientv3 "go.etcd.io/etcd/client/v3"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	log    logrus.FieldLogger
	config *Config

	redis *r.Client
	etcd  *clientv3.Client

	store     leasestore.Store
	elector   election.Elector
	hooks     *hooks.Runner
	tasksHook *hooks.TasksHook
	watcher   *watcher.Watcher

	pprofServer  *http.Server
	healthServer *http.Server
}

func NewServer(ctx context.Context, log logrus.FieldLogger, config *Config) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		config: config,
		log:    log,
	}

	if err := s.createStore(log); err != nil {
		return nil, err
	}

	elector, err := election.NewLeaseElector(s.store, log, &config.Election)
	if err != nil {
		return nil, fmt.Errorf("failed to create elector: %w", err)
	}

	s.elector = elector

	s.hooks = hooks.NewRunner(log, hooks.NewLogHook(log))

	if config.Hooks.Exec != nil {
		s.hooks.Register(hooks.NewExecHook(log, config.Hooks.Exec))
	}

	if config.Hooks.Webhook != nil {
		s.hooks.Register(hooks.NewWebhookHook(log, config.Hooks.Webhook))
	}

	if config.Hooks.Tasks != nil {
		s.tasksHook = hooks.NewTasksHook(log, config.Redis.Address, config.Hooks.Tasks)
		s.hooks.Register(s.tasksHook)
	}

	s.elector.OnTransition(s.hooks.Callback())

	s.watcher, err = watcher.NewWatcher(log, s.store, config.Election.Key, &config.Watcher)
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return s, nil
}

// createStore builds the configured lease store backend. The election key
// is namespaced under the backend's prefix.
func (s *Server) createStore(log logrus.FieldLogger) error {
	switch s.config.Backend {
	case BackendRedis:
		client, err := redis.New(s.config.Redis)
		if err != nil {
			return fmt.Errorf("failed to create redis client: %w", err)
		}

		s.redis = client
		s.store = leasestore.NewRedisStore(client, log, s.config.Redis.Prefix+":"+s.config.Election.Key)
	case BackendConsul:
		client, err := consul.New(s.config.Consul)
		if err != nil {
			return fmt.Errorf("failed to create consul client: %w", err)
		}

		s.store = leasestore.NewConsulStore(client, log, s.config.Consul.Prefix+"/"+s.config.Election.Key)
	case BackendEtcd:
		client, err := etcd.New(s.config.Etcd)
		if err != nil {
			return fmt.Errorf("failed to create etcd client: %w", err)
		}

		s.etcd = client
		s.store = leasestore.NewEtcdStore(client, log, s.config.Etcd.Prefix+"/"+s.config.Election.Key)
	default:
		return fmt.Errorf("unknown backend %q", s.config.Backend)
	}

	return nil
}

func (s *Server) Start(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// A backend that cannot be reached at startup is fatal; afterwards
	// unavailability is a transient the elector rides out.
	if err := s.checkBackend(ctx); err != nil {
		return fmt.Errorf("lease backend unreachable: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	// Start metrics server
	g.Go(func() error {
		observability.StartMetricsServer(ctx, s.config.MetricsAddr)

		return nil
	})

	// Start pprof server if configured
	if s.config.PProfAddr != nil {
		g.Go(func() error {
			if err := s.startPProf(); err != nil && err != http.ErrServerClosed {
				return err
			}

			return nil
		})
	}

	// Start health check server if configured
	if s.config.HealthCheckAddr != nil {
		g.Go(func() error {
			if err := s.startHealthCheck(); err != nil && err != http.ErrServerClosed {
				return err
			}

			return nil
		})
	}

	g.Go(func() error {
		return s.watcher.Start(ctx)
	})

	g.Go(func() error {
		return s.elector.Start(ctx)
	})

	// Wait for shutdown signal
	g.Go(func() error {
		<-ctx.Done()

		return s.stop(ctx)
	})

	return g.Wait()
}

// checkBackend verifies the lease backend responds, retrying with backoff
// up to StartupTimeout. Observing "no leader" counts as reachable.
func (s *Server) checkBackend(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = s.config.StartupTimeout

	operation := func() error {
		opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()

		if _, err := s.store.Leader(opCtx); err != nil && !errors.Is(err, leasestore.ErrNoLeader) {
			s.log.WithError(err).Warn("Lease backend not reachable yet, will retry")

			return err
		}

		return nil
	}

	return backoff.Retry(operation, backoff.WithContext(b, ctx))
}

func (s *Server) stop(ctx context.Context) error {
	// Create a timeout context for cleanup
	cleanupCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.log.Info("Starting graceful shutdown...")

	if s.watcher != nil {
		if err := s.watcher.Stop(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to stop watcher")
		}
	}

	if s.elector != nil {
		s.log.Info("Stopping elector...")

		if err := s.elector.Stop(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to stop elector")
		}
	}

	if s.tasksHook != nil {
		if err := s.tasksHook.Close(); err != nil {
			s.log.WithError(err).Error("failed to close tasks hook")
		}
	}

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.log.WithError(err).Error("failed to close lease store")
		}
	}

	// Close backend connections
	if s.redis != nil {
		s.log.Info("Closing Redis connection...")

		if err := s.redis.Close(); err != nil {
			s.log.WithError(err).Error("failed to close redis")
		}
	}

	if s.etcd != nil {
		if err := s.etcd.Close(); err != nil {
			s.log.WithError(err).Error("failed to close etcd")
		}
	}

	// Shutdown HTTP servers
	if s.pprofServer != nil {
		if err := s.pprofServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown pprof server")
		}
	}

	if s.healthServer != nil {
		if err := s.healthServer.Shutdown(cleanupCtx); err != nil {
			s.log.WithError(err).Error("failed to shutdown health server")
		}
	}

	if err := observability.StopMetricsServer(cleanupCtx); err != nil {
		s.log.WithError(err).Error("failed to stop metrics server")
	}

	s.log.Info("Coordinator stopped gracefully")

	return nil
}

func (s *Server) startPProf() error {
	s.log.WithField("addr", *s.config.PProfAddr).Info("Starting pprof server")

	s.pprofServer = &http.Server{
		Addr:              *s.config.PProfAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	return s.pprofServer.ListenAndServe()
}

func (s *Server) startHealthCheck() error {
	s.log.WithField("addr", *s.config.HealthCheckAddr).Info("Starting healthcheck server")

	s.healthServer = &http.Server{
		Addr:              *s.config.HealthCheckAddr,
		ReadHeaderTimeout: 120 * time.Second,
	}

	s.healthServer.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		type healthResponse struct {
			State  string `json:"state"`
			NodeID string `json:"nodeId"`
			Term   uint64 `json:"term,omitempty"`
			Leader string `json:"leader,omitempty"`
		}

		resp := healthResponse{
			State:  string(s.elector.State()),
			NodeID: s.elector.NodeID(),
			Term:   s.elector.Term(),
		}

		if lease := s.watcher.Leader(); lease != nil {
			resp.Leader = lease.Holder
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)

		_ = json.NewEncoder(w).Encode(resp)
	})

	return s.healthServer.ListenAndServe()
}
