package storage

import (
	"encoding"

	"github.com/vmihailenco/msgpack/v5"
)

type Storeable interface {
	Key() []byte
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// DBSession is the persisted session cookie.
type DBSession struct {
	Token       string `msgpack:"token"`
	UserID      string `msgpack:"userId"`
	Email       string `msgpack:"email"`
	DisplayName string `msgpack:"displayName"`
	AvatarURL   string `msgpack:"avatarUrl"`
	Expires     int64  `msgpack:"expires"` // Unix timestamp (seconds)
}

func (s *DBSession) Key() []byte {
	return []byte("current")
}

func (s *DBSession) MarshalBinary() (data []byte, err error) {
	type alias DBSession
	return msgpack.Marshal((*alias)(s))
}

func (s *DBSession) UnmarshalBinary(data []byte) error {
	type alias DBSession
	return msgpack.Unmarshal(data, (*alias)(s))
}

// DBAttachment records an attachment downloaded into the local file store.
type DBAttachment struct {
	ID       string `msgpack:"id"`
	Hash     string `msgpack:"hash"`
	Name     string `msgpack:"name"`
	MimeType string `msgpack:"mimeType"`
	Size     int64  `msgpack:"size"`
	SavedAt  int64  `msgpack:"savedAt"`
}

func (a *DBAttachment) Key() []byte {
	return []byte(a.ID)
}

func (a *DBAttachment) MarshalBinary() (data []byte, err error) {
	type alias DBAttachment
	return msgpack.Marshal((*alias)(a))
}

func (a *DBAttachment) UnmarshalBinary(data []byte) error {
	type alias DBAttachment
	return msgpack.Unmarshal(data, (*alias)(a))
}
