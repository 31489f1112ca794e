package collab

import (
	"log"
	"sort"
	"sync"
	"time"
)

// presenceEntry backs one identity's presence in one room. The identity is
// present iff conns is non-empty; empty entries are removed immediately.
type presenceEntry struct {
	identity Identity
	conns    map[string]struct{}
}

// editIndicator is an advisory "currently typing" hint for one identity on
// one field. Indicators never block operations and expire via SweepStale,
// since explicit stop notifications can be lost on disconnect.
type editIndicator struct {
	identity  Identity
	updatedAt time.Time
}

type roomPresence struct {
	members map[string]*presenceEntry            // identity id -> entry
	editing map[string]map[string]*editIndicator // field -> identity id -> indicator
}

// EditIndicator is the externally visible shape of an edit-lock hint.
type EditIndicator struct {
	Room     string   `json:"room"`
	Field    string   `json:"field"`
	Identity Identity `json:"identity"`
}

// Tracker maintains, per room, the set of currently-present identities and
// which connections back each, plus the per-field edit indicators.
type Tracker struct {
	mu    sync.RWMutex
	rooms map[string]*roomPresence
	now   func() time.Time
}

// NewTracker creates an empty presence tracker.
func NewTracker() *Tracker {
	return &Tracker{
		rooms: make(map[string]*roomPresence),
		now:   time.Now,
	}
}

func (t *Tracker) room(roomID string) *roomPresence {
	rp, ok := t.rooms[roomID]
	if !ok {
		rp = &roomPresence{
			members: make(map[string]*presenceEntry),
			editing: make(map[string]map[string]*editIndicator),
		}
		t.rooms[roomID] = rp
	}
	return rp
}

// AddPresence records that connID backs identity's presence in the room. The
// returned snapshot lists everyone currently present (including the joiner)
// for the joining connection to render immediately; joined reports whether
// this was the identity's first connection in the room, i.e. whether a
// Joined event should be fanned out.
func (t *Tracker) AddPresence(roomID string, identity Identity, connID string) (snapshot []Identity, joined bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rp := t.room(roomID)
	entry, ok := rp.members[identity.ID]
	if !ok {
		entry = &presenceEntry{identity: identity, conns: make(map[string]struct{})}
		rp.members[identity.ID] = entry
		joined = true
		log.Printf("[PRESENCE] %s joined room %s", identity.ID, roomID)
	}
	entry.conns[connID] = struct{}{}

	return listLocked(rp), joined
}

// RemovePresence drops connID from the identity's presence set. left reports
// whether the identity's last connection left the room (Left event);
// clearedFields lists fields whose edit indicator was cleared as a result.
func (t *Tracker) RemovePresence(roomID, identityID, connID string) (left bool, clearedFields []string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rp, ok := t.rooms[roomID]
	if !ok {
		return false, nil
	}
	entry, ok := rp.members[identityID]
	if !ok {
		return false, nil
	}
	delete(entry.conns, connID)
	if len(entry.conns) > 0 {
		return false, nil
	}

	delete(rp.members, identityID)
	for field, indicators := range rp.editing {
		if _, editing := indicators[identityID]; editing {
			delete(indicators, identityID)
			clearedFields = append(clearedFields, field)
			if len(indicators) == 0 {
				delete(rp.editing, field)
			}
		}
	}
	if len(rp.members) == 0 && len(rp.editing) == 0 {
		delete(t.rooms, roomID)
	}
	sort.Strings(clearedFields)

	log.Printf("[PRESENCE] %s left room %s", identityID, roomID)
	return true, clearedFields
}

// ListPresence returns a snapshot of the identities present in the room.
func (t *Tracker) ListPresence(roomID string) []Identity {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rp, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	return listLocked(rp)
}

// RoomConnections returns every connection currently backing a presence in
// the room. This is the broadcaster's fan-out set.
func (t *Tracker) RoomConnections(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	rp, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	var conns []string
	for _, entry := range rp.members {
		for connID := range entry.conns {
			conns = append(conns, connID)
		}
	}
	sort.Strings(conns)
	return conns
}

// StartEditing records (or refreshes) the identity's edit indicator for a
// field. Purely advisory; never blocks operation submission.
func (t *Tracker) StartEditing(roomID, field string, identity Identity) {
	t.mu.Lock()
	defer t.mu.Unlock()

	rp := t.room(roomID)
	indicators, ok := rp.editing[field]
	if !ok {
		indicators = make(map[string]*editIndicator)
		rp.editing[field] = indicators
	}
	indicators[identity.ID] = &editIndicator{identity: identity, updatedAt: t.now()}
}

// StopEditing clears the identity's edit indicator for a field. Returns
// whether an indicator was actually cleared.
func (t *Tracker) StopEditing(roomID, field, identityID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	rp, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	indicators, ok := rp.editing[field]
	if !ok {
		return false
	}
	if _, editing := indicators[identityID]; !editing {
		return false
	}
	delete(indicators, identityID)
	if len(indicators) == 0 {
		delete(rp.editing, field)
	}
	return true
}

// Editors returns the active edit indicators for the room.
func (t *Tracker) Editors(roomID string) []EditIndicator {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rp, ok := t.rooms[roomID]
	if !ok {
		return nil
	}
	var out []EditIndicator
	for field, indicators := range rp.editing {
		for _, ind := range indicators {
			out = append(out, EditIndicator{Room: roomID, Field: field, Identity: ind.identity})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Identity.ID < out[j].Identity.ID
	})
	return out
}

// SweepStale clears edit indicators that have not been refreshed within ttl
// and returns them so the caller can fan out the implied stops.
func (t *Tracker) SweepStale(ttl time.Duration) []EditIndicator {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-ttl)
	var stale []EditIndicator
	for roomID, rp := range t.rooms {
		for field, indicators := range rp.editing {
			for id, ind := range indicators {
				if ind.updatedAt.Before(cutoff) {
					delete(indicators, id)
					stale = append(stale, EditIndicator{Room: roomID, Field: field, Identity: ind.identity})
				}
			}
			if len(indicators) == 0 {
				delete(rp.editing, field)
			}
		}
		if len(rp.members) == 0 && len(rp.editing) == 0 {
			delete(t.rooms, roomID)
		}
	}
	sort.Slice(stale, func(i, j int) bool {
		if stale[i].Room != stale[j].Room {
			return stale[i].Room < stale[j].Room
		}
		if stale[i].Field != stale[j].Field {
			return stale[i].Field < stale[j].Field
		}
		return stale[i].Identity.ID < stale[j].Identity.ID
	})
	return stale
}

func listLocked(rp *roomPresence) []Identity {
	out := make([]Identity, 0, len(rp.members))
	for _, entry := range rp.members {
		out = append(out, entry.identity)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
