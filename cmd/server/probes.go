package main

import (
	"context"

	"github.com/jam-carter/OrderOrchestrator/internal/cfg"
	"github.com/jam-carter/OrderOrchestrator/internal/depcheck"
	"github.com/jam-carter/OrderOrchestrator/internal/health"
	"github.com/jam-carter/OrderOrchestrator/internal/xerrors"
)

// secretResolver fetches a named secret; *secrets.SSMResolver satisfies it.
type secretResolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// buildProbes registers the dependency probes in report order: postgres,
// then rabbitmq. resolver is only consulted when a password parameter is set.
func buildProbes(ctx context.Context, c cfg.App, resolver secretResolver) (*health.Set, error) {
	password := c.Postgres.Password
	if c.Postgres.PasswordSSMParam != "" {
		if resolver == nil {
			return nil, xerrors.New("pg-password-ssm-param set but no secret resolver available")
		}
		p, err := resolver.Resolve(ctx, c.Postgres.PasswordSSMParam)
		if err != nil {
			return nil, xerrors.Wrap(err, "resolve postgres password")
		}
		password = p
	}

	pg, err := depcheck.NewPostgres(depcheck.PostgresConfig{
		Host:           c.Postgres.Host,
		Port:           c.Postgres.Port,
		Database:       c.Postgres.Database,
		User:           c.Postgres.User,
		Password:       password,
		SSLMode:        c.Postgres.SSLMode,
		ConnectTimeout: c.Postgres.ConnectTimeout,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "postgres probe")
	}

	mq, err := depcheck.NewRabbitMQ(depcheck.RabbitMQConfig{
		URL:           c.RabbitMQ.URL,
		Heartbeat:     c.RabbitMQ.Heartbeat,
		SocketTimeout: c.RabbitMQ.SocketTimeout,
	})
	if err != nil {
		return nil, xerrors.Wrap(err, "rabbitmq probe")
	}

	return health.NewSet(
		health.Spec{Name: "postgres", Timeout: c.Postgres.ProbeTimeout, Check: pg},
		health.Spec{Name: "rabbitmq", Timeout: c.RabbitMQ.ProbeTimeout, Check: mq},
	)
}
