// Package app wires config, logging, storage and services into one process
// context shared by the CLI and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/activity"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/config"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/db"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/domain"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/engine"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/escalation"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/events"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/logging"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/metrics"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/migrate"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/repo"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/template"
)

type Options struct {
	Workspace string
	// Config replaces the workspace config file when set.
	Config *config.Config
	// DBPath overrides the workspace database location.
	DBPath string
	// LogWriter receives console logs; nil means stderr.
	LogWriter io.Writer
	// Registry collects metrics; nil gets a registry with Go and process
	// collectors.
	Registry *prometheus.Registry
	// Redis dials config.events.redis and publishes activity events to it.
	Redis bool
	// Publishers receive committed events alongside the configured ones.
	Publishers []events.Publisher
}

// Context is a fully wired process.
type Context struct {
	Config     *config.Config
	Logger     *log.Logger
	DB         *sql.DB
	Repo       repo.Repo
	Metrics    *metrics.Metrics
	Activities activity.Service
	Engine     engine.Engine
	Sweeper    escalation.Sweeper
	// Bus is set when Redis was requested and configured.
	Bus *events.RedisBus

	closers []func() error
}

// Open loads config, opens and migrates the workspace database and builds
// the services.
func Open(ctx context.Context, opts Options) (*Context, error) {
	cfg := opts.Config
	if cfg == nil {
		var err error
		if cfg, err = config.LoadOptional(opts.Workspace); err != nil {
			return nil, err
		}
	}
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	logger, closeLog, err := logging.New(w, cfg.Logging)
	if err != nil {
		return nil, err
	}
	c := &Context{Config: cfg, Logger: logger, closers: []func() error{closeLog}}
	if err := c.open(ctx, opts); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Context) open(ctx context.Context, opts Options) error {
	cfg := c.Config
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	if _, err := db.EnsureWorkspace(opts.Workspace); err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Path: opts.DBPath})
	if err != nil {
		return err
	}
	c.DB = conn
	c.closers = append(c.closers, conn.Close)
	version, err := migrate.Migrate(ctx, conn)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	c.Logger.Debug("database ready", "path", db.Path(opts.Workspace), "schema_version", version)

	reg := opts.Registry
	if reg == nil {
		if reg, err = metrics.NewRegistry(); err != nil {
			return err
		}
	}
	if c.Metrics, err = metrics.New(reg); err != nil {
		return err
	}

	pubs := events.Multi{events.LogPublisher{Logger: c.Logger}}
	pubs = append(pubs, opts.Publishers...)
	if opts.Redis && cfg.Events.Redis.Addr != "" {
		bus, err := events.DialRedis(ctx, cfg.Events.Redis.Addr, cfg.Events.Redis.Channel, c.Logger)
		if err != nil {
			return err
		}
		c.Bus = bus
		c.closers = append(c.closers, bus.Close)
		pubs = append(pubs, bus)
	}

	c.Repo = repo.Repo{DB: conn}
	svc := activity.New(conn)
	svc.Publisher = pubs
	svc.Metrics = c.Metrics
	svc.Logger = c.Logger.With("component", "activity")
	svc.Location = loc
	svc.DefaultDueHours = cfg.Activities.DefaultDueHours
	c.Activities = svc

	eng := engine.New(c.Repo, svc)
	eng.Logger = c.Logger.With("component", "engine")
	eng.DefaultOrgID = cfg.Org.ID
	eng.Templates = template.Options{
		DefaultValue: cfg.Templates.DefaultValue,
		MaxBytes:     cfg.Templates.MaxBytes,
		Location:     loc,
	}
	c.Engine = eng

	c.Sweeper = escalation.Sweeper{
		Store:   c.Repo,
		Actions: svc,
		Metrics: c.Metrics,
		Logger:  c.Logger.With("component", "sweeper"),
		Options: escalation.Options{
			EscalateAfter:  cfg.EscalateAfter(),
			MaxEscalations: cfg.Escalation.MaxEscalations,
			ReminderBefore: cfg.ReminderBefore(),
		},
	}
	return nil
}

// Trigger schedules the sweeper per config.escalation. It returns nil when
// escalation is disabled.
func (c *Context) Trigger() (*escalation.Trigger, error) {
	if !c.Config.Escalation.Enabled {
		return nil, nil
	}
	return escalation.NewTrigger(c.Config.Escalation.Schedule, c.Sweeper, c.Logger.With("component", "cron"))
}

// Webhooks returns a dispatcher over the configured hooks.
func (c *Context) Webhooks() *events.WebhookDispatcher {
	return events.NewWebhookDispatcher(c.Repo, "", c.Config.Events.Webhooks, c.Logger)
}

// SubscribeInbound feeds events from the inbound Redis channel into the
// engine until ctx ends.
func (c *Context) SubscribeInbound(ctx context.Context) error {
	if c.Bus == nil {
		return errors.New("redis is not configured")
	}
	channel := c.Config.Events.Redis.InboundChannel
	if channel == "" {
		return errors.New("config.events.redis.inbound_channel is empty")
	}
	return c.Bus.Subscribe(ctx, channel, func(ctx context.Context, ev domain.Event) error {
		_, err := c.Engine.ProcessEvent(ctx, ev)
		return err
	})
}

// OrgID picks the explicit org or the configured default.
func (c *Context) OrgID(override string) string {
	if override != "" {
		return override
	}
	return c.Config.Org.ID
}

// Close releases resources in reverse order of acquisition.
func (c *Context) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
