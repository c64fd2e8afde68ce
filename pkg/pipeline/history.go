package pipeline

import (
	"sync"

	"github.com/harunnryd/voxrelay/pkg/llm"
)

// HistoryTable holds the chat of every live session, keyed by session id.
// Entries are written only by their own session.
type HistoryTable struct {
	mu    sync.Mutex
	chats map[string]llm.ChatSession
}

func NewHistoryTable() *HistoryTable {
	return &HistoryTable{chats: make(map[string]llm.ChatSession)}
}

func (h *HistoryTable) Load(sessionID string) (llm.ChatSession, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	chat, ok := h.chats[sessionID]
	return chat, ok
}

func (h *HistoryTable) Store(sessionID string, chat llm.ChatSession) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chats[sessionID] = chat
}

func (h *HistoryTable) Remove(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.chats, sessionID)
}

func (h *HistoryTable) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chats)
}
