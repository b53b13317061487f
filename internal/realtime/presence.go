package realtime

import "time"

// presence turns registry membership changes into roster replies and
// join/leave notices. It never holds state of its own.
type presence struct {
	now func() time.Time
}

func (p presence) roster(members []*Connection) []PresenceEntry {
	out := make([]PresenceEntry, 0, len(members))
	for _, m := range members {
		id, _ := m.Identity()
		out = append(out, PresenceEntry{
			UserID:       id.UserID,
			UserName:     id.Name(),
			ConnectionID: m.ID(),
		})
	}
	return out
}

func (p presence) rosterFrame(entries []PresenceEntry) ([]byte, error) {
	return EncodeFrame(EventRoomUsers, entries)
}

func (p presence) joinedFrame(c *Connection) ([]byte, error) {
	return EncodeFrame(EventUserJoined, p.notice(c))
}

func (p presence) leftFrame(c *Connection) ([]byte, error) {
	return EncodeFrame(EventUserLeft, p.notice(c))
}

func (p presence) notice(c *Connection) PresenceNotice {
	id, _ := c.Identity()
	return PresenceNotice{
		UserID:       id.UserID,
		UserName:     id.Name(),
		ConnectionID: c.ID(),
		Timestamp:    p.now().UnixMilli(),
	}
}
