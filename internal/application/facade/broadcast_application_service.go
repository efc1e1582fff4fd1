package facade

import (
	"context"
	"encoding/json"
	"errors"

	"go-message-broadcaster/internal/infrastructure/hub"
	"go-message-broadcaster/internal/infrastructure/logger"
	"go-message-broadcaster/internal/port/inbound"
)

type BroadcastApplicationService struct {
	hub    *hub.Hub
	logger logger.Logger
}

var _ inbound.BroadcastUseCase = (*BroadcastApplicationService)(nil)

func NewBroadcastApplicationService(hubInstance *hub.Hub, logger logger.Logger) *BroadcastApplicationService {
	return &BroadcastApplicationService{
		hub:    hubInstance,
		logger: logger.WithField("service", "broadcast"),
	}
}

func (s *BroadcastApplicationService) OnConnect(ctx context.Context, conn hub.Connection) error {
	if err := s.hub.RegisterConnection(conn); err != nil {
		return err
	}

	s.logger.WithFields(logger.Fields{
		"connection_id": conn.ID(),
		"transport":     conn.Type(),
	}).Info("client connected")
	return nil
}

func (s *BroadcastApplicationService) OnMessage(ctx context.Context, conn hub.Connection, message *hub.Message) error {
	log := s.logger.WithField("connection_id", conn.ID())

	if message.Event != hub.EventMessage {
		log.Debugf("ignoring %q event", message.Event)
		return nil
	}

	log.WithField("payload", string(message.Data)).Info("message received")

	out := hub.NewMessage(hub.EventMessage, message.Data)
	out.From = conn.ID()

	delivered, err := s.hub.Broadcast(ctx, out)
	if err != nil {
		log.Errorf("broadcast failed: %v", err)
		return err
	}

	log.Debugf("message re-emitted to %d connections", delivered)
	return nil
}

func (s *BroadcastApplicationService) OnDisconnect(ctx context.Context, conn hub.Connection) {
	err := s.hub.UnregisterConnection(conn.ID())
	if err != nil && !errors.Is(err, hub.ErrHubNotRunning) {
		s.logger.Warnf("unregister %s: %v", conn.ID(), err)
	}

	s.logger.WithFields(logger.Fields{
		"connection_id": conn.ID(),
		"transport":     conn.Type(),
	}).Info("client disconnected")
}

func (s *BroadcastApplicationService) Publish(ctx context.Context, payload json.RawMessage) (int, error) {
	s.logger.WithField("payload", string(payload)).Info("publishing server message")
	return s.hub.Broadcast(ctx, hub.NewMessage(hub.EventMessage, payload))
}
