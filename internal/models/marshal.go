package models

import "encoding/json"

// The wire shapes flatten related usernames next to their ids. Relations
// that were not preloaded render as empty strings.

func username(u *User) string {
	if u == nil {
		return ""
	}
	return u.Username
}

func (r Room) MarshalJSON() ([]byte, error) {
	type alias Room
	return json.Marshal(struct {
		alias
		OrganizerUsername string `json:"organizer_username"`
		VendorUsername    string `json:"vendor_username"`
	}{alias(r), username(r.Organizer), username(r.Vendor)})
}

func (m Message) MarshalJSON() ([]byte, error) {
	type alias Message
	out := struct {
		alias
		SenderUsername string `json:"sender_username"`
	}{alias(m), username(m.Sender)}
	if out.Attachments == nil {
		out.Attachments = []Attachment{}
	}
	return json.Marshal(out)
}

func (b Bid) MarshalJSON() ([]byte, error) {
	type alias Bid
	return json.Marshal(struct {
		alias
		RoomID            uint   `json:"room_id"`
		OrganizerUsername string `json:"organizer_username"`
		VendorUsername    string `json:"vendor_username"`
	}{alias(b), b.RoomID, username(b.Organizer), username(b.Vendor)})
}

func (n Notification) MarshalJSON() ([]byte, error) {
	type alias Notification
	out := struct {
		alias
		SenderUsername *string `json:"sender_username"`
	}{alias: alias(n)}
	if n.Sender != nil {
		out.SenderUsername = &n.Sender.Username
	}
	return json.Marshal(out)
}
