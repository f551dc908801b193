package depcheck

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/streadway/amqp"

	"github.com/jam-carter/OrderOrchestrator/internal/xerrors"
)

const (
	DefaultRabbitMQHeartbeat     = 5 * time.Second
	DefaultRabbitMQSocketTimeout = time.Second
)

type RabbitMQConfig struct {
	URL string
	// Heartbeat is negotiated with the broker; kept short so a half-dead
	// broker is noticed quickly.
	Heartbeat time.Duration
	// SocketTimeout bounds the TCP connect and the AMQP handshake.
	SocketTimeout time.Duration
}

// RabbitMQ checks the broker by completing the AMQP handshake and closing
// the connection right away. No channel is opened.
type RabbitMQ struct {
	url       string
	uri       amqp.URI
	heartbeat time.Duration
	timeout   time.Duration
	dialer    dialer
	open      func(url string, cfg amqp.Config) (io.Closer, error)
}

func NewRabbitMQ(c RabbitMQConfig) (*RabbitMQ, error) {
	uri, err := amqp.ParseURI(c.URL)
	if err != nil {
		return nil, xerrors.Wrap(err, "parse rabbitmq url")
	}
	r := &RabbitMQ{
		url:       c.URL,
		uri:       uri,
		heartbeat: c.Heartbeat,
		timeout:   c.SocketTimeout,
		open:      dialAMQP,
	}
	if r.heartbeat <= 0 {
		r.heartbeat = DefaultRabbitMQHeartbeat
	}
	if r.timeout <= 0 {
		r.timeout = DefaultRabbitMQSocketTimeout
	}
	r.dialer.Timeout = r.timeout
	return r, nil
}

func dialAMQP(url string, cfg amqp.Config) (io.Closer, error) {
	conn, err := amqp.DialConfig(url, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Check implements health.Checker.
func (r *RabbitMQ) Check(ctx context.Context) error {
	cfg := amqp.Config{
		Heartbeat: r.heartbeat,
		Dial: func(network, addr string) (net.Conn, error) {
			conn, err := r.dialer.dial(ctx, ctx, network, addr)
			if err != nil {
				return nil, err
			}
			// covers the handshake; the client clears it once the connection is open
			if err := conn.SetDeadline(time.Now().Add(r.timeout)); err != nil {
				_ = conn.Close()
				return nil, err
			}
			return conn, nil
		},
	}

	conn, err := r.open(r.url, cfg)
	if err != nil {
		return xerrors.Wrap(err, "rabbitmq dial")
	}
	if err := conn.Close(); err != nil {
		return xerrors.Wrap(err, "rabbitmq close")
	}
	return nil
}

func (r *RabbitMQ) String() string {
	return fmt.Sprintf("rabbitmq(%s:%d%s)", r.uri.Host, r.uri.Port, r.uri.Vhost)
}
