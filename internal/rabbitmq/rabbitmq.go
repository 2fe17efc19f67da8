package rabbitmq

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

type Config struct {
	URL string
}

// New dials the broker. The caller owns the connection.
func New(cfg Config) (*amqp.Connection, error) {
	const op = "rabbitmq.New"

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(5 * time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, err)
	}

	return conn, nil
}
