package events

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
)

type RoomCreatedEvent struct {
	RoomID    string   `json:"room_id"`
	Name      string   `json:"name"`
	CreatedBy string   `json:"created_by"`
	Members   []string `json:"members"`
	IsPrivate bool     `json:"is_private"`
}

// Publisher emits room lifecycle events over NATS. Nil-safe like Producer.
type Publisher struct {
	nc *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	if url == "" {
		return nil, nil
	}
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return &Publisher{nc: nc}, nil
}

func (p *Publisher) PublishRoomCreated(ev RoomCreatedEvent) error {
	if p == nil || p.nc == nil {
		return nil
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish("room.created", b)
}

func (p *Publisher) Close() {
	if p != nil && p.nc != nil {
		p.nc.Close()
	}
}
