package domain

const MaxNameLen = 64

// Member is a participant's directory entry in a room. The server owns
// this record; client payloads never override it once set.
type Member struct {
	SocketID SocketID `json:"socketId"`
	Name     string   `json:"name"`
	Avatar   string   `json:"profilePic,omitempty"`
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(sid SocketID, name, avatar string) Member {
	if len(name) > MaxNameLen {
		name = name[:MaxNameLen]
	}
	return Member{SocketID: sid, Name: name, Avatar: avatar}
}
