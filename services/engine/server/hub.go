// Copyright (C) 2025 Rankforge Authors (dev@rankforge.io)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package server

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/rankforge/rankforge/services/engine/analysis"
)

// ProgressEvent is one message on the analysis event stream: the
// analyzer's progress event tagged with the id of the API-triggered
// analysis it belongs to. The terminal event carries the archived report
// id, or the error when the analysis failed.
type ProgressEvent struct {
	AnalysisID string `json:"analysis_id"`
	analysis.Progress
	ReportID string `json:"report_id,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Hub fans analysis progress events out to connected WebSocket clients.
//
// Thread Safety: Safe for concurrent use. Broadcast holds the lock while
// writing so each connection sees one writer at a time, which is the
// concurrency limit gorilla/websocket imposes.
type Hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]string
	logger  *slog.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[*websocket.Conn]string),
		logger:  logger,
	}
}

// Add registers a connection under its session id. From this point the
// hub owns writes to the connection.
func (h *Hub) Add(conn *websocket.Conn, sessionID string) {
	h.mu.Lock()
	h.clients[conn] = sessionID
	h.mu.Unlock()
	h.logger.Info("event stream client connected", slog.String("session_id", sessionID))
}

// Remove unregisters a connection. The caller closes it.
func (h *Hub) Remove(conn *websocket.Conn) {
	h.mu.Lock()
	sessionID, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		h.logger.Info("event stream client disconnected", slog.String("session_id", sessionID))
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Broadcast sends the event to every connected client. A connection that
// fails to take the write is dropped from the hub and closed; a slow or
// dead subscriber must not stall the analysis that is reporting progress.
func (h *Hub) Broadcast(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn, sessionID := range h.clients {
		if err := conn.WriteJSON(ev); err != nil {
			h.logger.Warn("dropping event stream client",
				slog.String("session_id", sessionID),
				slog.String("error", err.Error()))
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

// CloseAll disconnects every client, for server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.clients {
		conn.Close()
		delete(h.clients, conn)
	}
}
