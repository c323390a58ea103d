package session

// EventType tags the state changes a session publishes to subscribers.
type EventType string

const (
	EvtSetup       EventType = "Setup"
	EvtTurnChanged EventType = "TurnChanged"
	EvtAttack      EventType = "Attack"
	EvtDamage      EventType = "Damage"
	EvtChat        EventType = "Chat"
	EvtGameOver    EventType = "GameOver"
)

// Event is one state change, flattened for direct JSON delivery to observer
// clients (GUI layers, websocket subscribers).
type Event struct {
	Type EventType `json:"type"`

	Pokemon string `json:"pokemon,omitempty"`
	HP      int    `json:"hp,omitempty"`

	Turn string `json:"turn,omitempty"`

	Move       string `json:"move,omitempty"`
	Attacker   string `json:"attacker,omitempty"`
	Damage     int    `json:"damage,omitempty"`
	DefenderHP *int   `json:"defender_hp,omitempty"`
	Status     string `json:"status,omitempty"`

	Sender  string `json:"sender,omitempty"`
	Text    string `json:"text,omitempty"`
	Sticker bool   `json:"sticker,omitempty"`

	Winner string `json:"winner,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Subscribe registers an outbox for state-change events. The channel should
// be buffered; a subscriber that cannot keep up is dropped, never waited on.
func (c *core) Subscribe(id string, outbox chan Event) {
	c.subsMu.Lock()
	c.subs[id] = outbox
	c.subsMu.Unlock()
}

// Unsubscribe removes a previously registered outbox.
func (c *core) Unsubscribe(id string) {
	c.subsMu.Lock()
	delete(c.subs, id)
	c.subsMu.Unlock()
}

func (c *core) publish(ev Event) {
	c.subsMu.Lock()
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is slow or full - drop it.
			close(ch)
			delete(c.subs, id)
		}
	}
	c.subsMu.Unlock()
}
