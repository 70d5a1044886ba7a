/*
Copyright (c) the photon-server-go authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"sync"
)

// Hook event names emitted to registered observers.
const (
	HookServerStarting = "server:starting"
	HookServerStarted  = "server:started"
	HookServerStopping = "server:stopping"
	HookServerStopped  = "server:stopped"

	HookPeerConnecting     = "peer:connecting"
	HookPeerConnected      = "peer:connected"
	HookPeerAuthenticating = "peer:authenticating"
	HookPeerAuthenticated  = "peer:authenticated"
	HookPeerDisconnecting  = "peer:disconnecting"
	HookPeerDisconnected   = "peer:disconnected"

	HookRoomCreating   = "room:creating"
	HookRoomCreated    = "room:created"
	HookRoomDestroying = "room:destroying"
	HookRoomDestroyed  = "room:destroyed"

	HookOperationReceived  = "operation:received"
	HookOperationProcessed = "operation:processed"
	HookEventRaised        = "event:raised"
	HookEventSent          = "event:sent"
)

// HookContext is the compact context record passed to observers. It is
// a value copy; observers must not assume it reflects later state.
type HookContext struct {
	PeerID    uint16
	RoomName  string
	OpCode    byte
	EventCode byte
	Reason    string
}

// Observer receives hook events. Observers must not block; they run on
// the emitting goroutine.
type Observer func(event string, ctx HookContext)

type hookRegistry struct {
	mu        sync.RWMutex
	observers []Observer
}

// Register adds an observer for all hook events.
func (h *hookRegistry) Register(o Observer) {
	h.mu.Lock()
	h.observers = append(h.observers, o)
	h.mu.Unlock()
}

func (h *hookRegistry) emit(event string, ctx HookContext) {
	h.mu.RLock()
	observers := h.observers
	h.mu.RUnlock()
	for _, o := range observers {
		o(event, ctx)
	}
}
