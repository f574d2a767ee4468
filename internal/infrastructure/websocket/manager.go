package websocket

import (
	"context"
	"sync"

	"marketchat/pkg/logger"
)

// Manager tracks every active websocket connection, keyed both by user (for
// private pushes) and by joined room topic (for broadcasts). A user may hold
// several connections at once; all of them receive that user's events.
type Manager struct {
	clients map[uint64]map[*Client]bool
	rooms   map[uint64]map[*Client]bool

	Register   chan *Client
	Unregister chan *Client

	chat  ChatService
	mutex sync.RWMutex
}

func NewManager() *Manager {
	return &Manager{
		clients:    make(map[uint64]map[*Client]bool),
		rooms:      make(map[uint64]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
	}
}

// SetChatService wires the messaging pipeline in after construction; the
// manager is built before the usecases during startup.
func (m *Manager) SetChatService(chat ChatService) {
	m.chat = chat
}

// Start runs the registration loop until ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case client := <-m.Register:
				m.addClient(client)
				logger.Info("WebSocket client registered: user %d", client.UserID)

			case client := <-m.Unregister:
				m.removeClient(client)
				logger.Info("WebSocket client unregistered: user %d", client.UserID)

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Manager) addClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.clients[client.UserID] == nil {
		m.clients[client.UserID] = make(map[*Client]bool)
	}
	m.clients[client.UserID][client] = true
}

func (m *Manager) removeClient(client *Client) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	conns := m.clients[client.UserID]
	if conns == nil || !conns[client] {
		return
	}
	delete(conns, client)
	if len(conns) == 0 {
		delete(m.clients, client.UserID)
	}
	for roomID := range client.rooms {
		m.leaveRoomLocked(client, roomID)
	}
	client.CloseSend()
}

// JoinRoom subscribes the connection to a room topic. Authorization is the
// caller's job.
func (m *Manager) JoinRoom(client *Client, roomID uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.rooms[roomID] == nil {
		m.rooms[roomID] = make(map[*Client]bool)
	}
	m.rooms[roomID][client] = true
	client.rooms[roomID] = true
}

func (m *Manager) LeaveRoom(client *Client, roomID uint64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.leaveRoomLocked(client, roomID)
}

func (m *Manager) leaveRoomLocked(client *Client, roomID uint64) {
	if members := m.rooms[roomID]; members != nil {
		delete(members, client)
		if len(members) == 0 {
			delete(m.rooms, roomID)
		}
	}
	delete(client.rooms, roomID)
}

// BroadcastToRoom pushes a payload to every connection joined to the room.
// Sends never block: a subscriber whose buffer is full is dropped and will
// catch up over the message list on reconnect.
func (m *Manager) BroadcastToRoom(roomID uint64, payload []byte) {
	m.mutex.RLock()
	members := make([]*Client, 0, len(m.rooms[roomID]))
	for client := range m.rooms[roomID] {
		members = append(members, client)
	}
	m.mutex.RUnlock()

	for _, client := range members {
		if !client.TrySend(payload) {
			logger.Warn("Dropping slow websocket client: user %d", client.UserID)
			m.removeClient(client)
		}
	}
}

// SendToUser pushes a payload to all of a user's active connections.
func (m *Manager) SendToUser(userID uint64, payload []byte) {
	m.mutex.RLock()
	conns := make([]*Client, 0, len(m.clients[userID]))
	for client := range m.clients[userID] {
		conns = append(conns, client)
	}
	m.mutex.RUnlock()

	for _, client := range conns {
		if !client.TrySend(payload) {
			logger.Warn("Dropping slow websocket client: user %d", client.UserID)
			m.removeClient(client)
		}
	}
}

// RoomSize reports the number of connections joined to a room.
func (m *Manager) RoomSize(roomID uint64) int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.rooms[roomID])
}
