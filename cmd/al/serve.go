package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/SumanthNagolu/intime-v3-sub020/internal/app"
	"github.com/SumanthNagolu/intime-v3-sub020/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath string
	var withRedis bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API, the sweep schedule and event delivery",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), app.Options{Redis: withRedis}, func(ctx context.Context, c *app.Context) error {
				cfg := server.ConfigFromApp(c)
				if basePath != "" {
					cfg.BasePath = basePath
				}
				if secret := viper.GetString("jwt-secret"); secret != "" {
					cfg.Auth.JWTSecret = secret
				}
				if cfg.Auth.JWTSecret == "" && !cfg.Auth.AllowActorHeader {
					return fmt.Errorf("ACTIVITYLINE_JWT_SECRET or server.allow_actor_header is required")
				}
				handler, err := server.New(cfg)
				if err != nil {
					return err
				}
				if addr == "" {
					addr = c.Config.Server.Addr
				}

				trigger, err := c.Trigger()
				if err != nil {
					return err
				}
				if trigger != nil {
					trigger.Start(ctx)
					c.Logger.Info("sweeps scheduled", "spec", trigger.Spec(), "next_run", trigger.NextRun())
				}
				c.Webhooks().Start(ctx)

				g, gctx := errgroup.WithContext(ctx)
				if c.Bus != nil && c.Config.Events.Redis.InboundChannel != "" {
					g.Go(func() error {
						c.Logger.Info("consuming inbound events", "channel", c.Config.Events.Redis.InboundChannel)
						err := c.SubscribeInbound(gctx)
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					})
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				g.Go(func() error {
					<-gctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					return srv.Shutdown(shutdownCtx)
				})
				g.Go(func() error {
					c.Logger.Info("serving", "url", fmt.Sprintf("http://%s%s", addr, cfg.BasePath), "docs", "/docs", "metrics", "/metrics")
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						return err
					}
					return nil
				})
				return g.Wait()
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	cmd.Flags().BoolVar(&withRedis, "redis", false, "publish to and consume from config.events.redis")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer tokens")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}
