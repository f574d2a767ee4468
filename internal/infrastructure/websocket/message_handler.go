package websocket

import (
	"context"
	"encoding/json"
	"time"

	"marketchat/internal/domain/entity"
	"marketchat/internal/usecase"
	"marketchat/pkg/logger"
)

// Inbound frame types accepted from clients.
const (
	MessageTypePing        = "ping"
	MessageTypePong        = "pong"
	MessageTypeSendMessage = "send_message"
	MessageTypeMarkRead    = "mark_read"
	MessageTypeJoinRoom    = "join_room"
	MessageTypeLeaveRoom   = "leave_room"
	MessageTypeError       = "error"
)

// ChatService is the slice of the messaging pipeline the gateway needs. The
// REST handlers consume the same pipeline; only the transport differs.
type ChatService interface {
	SendMessage(ctx context.Context, senderID uint64, input usecase.SendMessageInput) (*entity.Message, error)
	MarkRead(ctx context.Context, userID, roomID uint64, upTo *time.Time) error
	IsParticipant(ctx context.Context, roomID, userID uint64) (bool, error)
	ParseUpTo(value string) (*time.Time, error)
}

type WSMessage struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}

type SendMessageData struct {
	RoomID     uint64 `json:"room_id"`
	Body       string `json:"body"`
	SenderName string `json:"sender_name,omitempty"`
}

type MarkReadData struct {
	RoomID uint64 `json:"room_id"`
	UpTo   string `json:"up_to,omitempty"`
}

type RoomData struct {
	RoomID uint64 `json:"room_id"`
}

// HandleClientMessage dispatches one inbound frame.
func (m *Manager) HandleClientMessage(client *Client, raw []byte) {
	var frame WSMessage
	if err := json.Unmarshal(raw, &frame); err != nil {
		logger.Warn("WebSocket: bad frame from user %d: %v", client.UserID, err)
		m.sendError(client, "Invalid message format")
		return
	}

	switch frame.Type {
	case MessageTypePing:
		m.sendFrame(client, WSMessage{Type: MessageTypePong})

	case MessageTypeSendMessage:
		m.handleSendMessage(client, frame.Data)

	case MessageTypeMarkRead:
		m.handleMarkRead(client, frame.Data)

	case MessageTypeJoinRoom:
		m.handleJoinRoom(client, frame.Data)

	case MessageTypeLeaveRoom:
		m.handleLeaveRoom(client, frame.Data)

	default:
		logger.Warn("WebSocket: unknown frame type %q from user %d", frame.Type, client.UserID)
		m.sendError(client, "Unknown message type")
	}
}

func (m *Manager) handleSendMessage(client *Client, data json.RawMessage) {
	var payload SendMessageData
	if err := json.Unmarshal(data, &payload); err != nil {
		m.sendError(client, "Invalid send_message data")
		return
	}
	if payload.RoomID == 0 || payload.Body == "" {
		m.sendError(client, "room_id and body are required")
		return
	}

	_, err := m.chat.SendMessage(context.Background(), client.UserID, usecase.SendMessageInput{
		RoomID:     payload.RoomID,
		Body:       payload.Body,
		SenderName: payload.SenderName,
	})
	if err != nil {
		logger.Warn("WebSocket: send failed for user %d in room %d: %v", client.UserID, payload.RoomID, err)
		m.sendError(client, err.Error())
		return
	}
	// Delivery to the sender's own screen rides the room broadcast like
	// everyone else's; no direct echo here.
}

func (m *Manager) handleMarkRead(client *Client, data json.RawMessage) {
	var payload MarkReadData
	if err := json.Unmarshal(data, &payload); err != nil {
		m.sendError(client, "Invalid mark_read data")
		return
	}
	if payload.RoomID == 0 {
		m.sendError(client, "room_id is required")
		return
	}

	upTo, err := m.chat.ParseUpTo(payload.UpTo)
	if err != nil {
		m.sendError(client, err.Error())
		return
	}

	if err := m.chat.MarkRead(context.Background(), client.UserID, payload.RoomID, upTo); err != nil {
		logger.Warn("WebSocket: mark_read failed for user %d in room %d: %v", client.UserID, payload.RoomID, err)
		m.sendError(client, err.Error())
	}
}

func (m *Manager) handleJoinRoom(client *Client, data json.RawMessage) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == 0 {
		m.sendError(client, "Invalid join_room data")
		return
	}

	ok, err := m.chat.IsParticipant(context.Background(), payload.RoomID, client.UserID)
	if err != nil {
		m.sendError(client, "Failed to verify room membership")
		return
	}
	if !ok {
		m.sendError(client, "You are not a participant of this room")
		return
	}

	m.JoinRoom(client, payload.RoomID)
	logger.Debug("WebSocket: user %d joined room %d", client.UserID, payload.RoomID)
}

func (m *Manager) handleLeaveRoom(client *Client, data json.RawMessage) {
	var payload RoomData
	if err := json.Unmarshal(data, &payload); err != nil || payload.RoomID == 0 {
		m.sendError(client, "Invalid leave_room data")
		return
	}
	m.LeaveRoom(client, payload.RoomID)
}

func (m *Manager) sendFrame(client *Client, frame WSMessage) {
	frame.Timestamp = time.Now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	client.TrySend(payload)
}

func (m *Manager) sendError(client *Client, message string) {
	data, _ := json.Marshal(map[string]string{"message": message})
	m.sendFrame(client, WSMessage{Type: MessageTypeError, Data: data})
}
