package depcheck

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/jam-carter/OrderOrchestrator/internal/xerrors"
)

const (
	DefaultPostgresConnectTimeout = time.Second
	defaultSSLMode                = "disable"
)

// PostgresConfig locates the datastore.
type PostgresConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	// ConnectTimeout bounds connection establishment inside the probe
	// timeout. Zero means DefaultPostgresConnectTimeout.
	ConnectTimeout time.Duration
}

// URL renders the connection string. The password is included.
func (c PostgresConfig) URL() string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	mode := c.SSLMode
	if mode == "" {
		mode = defaultSSLMode
	}
	u.RawQuery = url.Values{"sslmode": {mode}}.Encode()
	return u.String()
}

// pgSession is the part of *pgx.Conn the probe uses.
type pgSession interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Postgres checks the datastore by opening a single connection (never a
// pool), running select 1 and closing it.
type Postgres struct {
	cfg     *pgx.ConnConfig
	dialer  dialer
	connect func(context.Context, *pgx.ConnConfig) (pgSession, error)
}

func NewPostgres(c PostgresConfig) (*Postgres, error) {
	cfg, err := pgx.ParseConfig(c.URL())
	if err != nil {
		return nil, xerrors.Wrap(err, "parse postgres config")
	}
	cfg.ConnectTimeout = c.ConnectTimeout
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultPostgresConnectTimeout
	}
	cfg.RuntimeParams["application_name"] = "order-api-readiness"

	p := &Postgres{cfg: cfg, connect: connectPgx}
	p.dialer.Timeout = cfg.ConnectTimeout
	return p, nil
}

func connectPgx(ctx context.Context, cfg *pgx.ConnConfig) (pgSession, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Check implements health.Checker.
func (p *Postgres) Check(ctx context.Context) error {
	cfg := p.cfg.Copy()
	// pgx retries fallbacks with a fresh connect timeout per address
	guard := redialGuard{d: &p.dialer}
	cfg.DialFunc = func(dialCtx context.Context, network, addr string) (net.Conn, error) {
		return guard.dial(dialCtx, ctx, network, addr)
	}

	conn, err := p.connect(ctx, cfg)
	if err != nil {
		return xerrors.Wrap(err, "postgres connect")
	}

	var one int
	if err := conn.QueryRow(ctx, "select 1").Scan(&one); err != nil {
		_ = conn.Close(ctx)
		return xerrors.Wrap(err, "postgres query")
	}
	if one != 1 {
		_ = conn.Close(ctx)
		return xerrors.Newf("postgres query: select 1 returned %d", one)
	}

	if err := conn.Close(ctx); err != nil {
		return xerrors.Wrap(err, "postgres close")
	}
	return nil
}

func (p *Postgres) String() string {
	return fmt.Sprintf("postgres(%s:%d/%s)", p.cfg.Host, p.cfg.Port, p.cfg.Database)
}
