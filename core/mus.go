package core

import (
	"errors"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for the persisted domain types. The storage layer stores
// values in the MUS format; field order here is the on-disk layout and must
// not change without a migration.

var (
	// IDMUS serializes IDs.
	IDMUS = idMUS{}
	// ItemMUS serializes Items.
	ItemMUS = itemMUS{}
	// ChunkMUS serializes Chunks.
	ChunkMUS = chunkMUS{}
	// UserMUS serializes Users.
	UserMUS = userMUS{}
	// UsageLogMUS serializes UsageLogs.
	UsageLogMUS = usageLogMUS{}
)

var errNegativeLength = errors.New("negative length")

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	raw, n, err := varint.Uint64.Unmarshal(bs)
	return ID(raw), n, err
}

func (idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

type itemMUS struct{}

func (itemMUS) Marshal(v Item, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += varint.Uint64.Marshal(uint64(v.UserId), bs[n:])
	n += ord.String.Marshal(v.URL, bs[n:])
	n += ord.String.Marshal(v.SourceSite, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.CanonicalURL, bs[n:])
	n += ord.String.Marshal(v.FaviconURL, bs[n:])
	n += marshalTime(v.PublishedAt, bs[n:])
	n += ord.String.Marshal(v.ContentMarkdown, bs[n:])
	n += ord.String.Marshal(v.ContentText, bs[n:])
	n += ord.String.Marshal(v.Summary, bs[n:])
	n += varint.Float64.Marshal(v.ExpiryScore, bs[n:])
	n += varint.Int.Marshal(v.ContentTokenCount, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += varint.Int.Marshal(int(v.ClientStatus), bs[n:])
	n += marshalTime(v.ClientStatusAt, bs[n:])
	n += varint.Int.Marshal(int(v.ServerStatus), bs[n:])
	n += marshalTime(v.ServerStatusAt, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (itemMUS) Unmarshal(bs []byte) (v Item, n int, err error) {
	var (
		raw    uint64
		status int
		n1     int
	)
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(raw)
	if raw, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.UserId = ID(raw)
	n += n1
	for _, field := range []*string{
		&v.URL, &v.SourceSite, &v.Title, &v.CanonicalURL, &v.FaviconURL,
	} {
		if *field, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += n1
	}
	if v.PublishedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	for _, field := range []*string{&v.ContentMarkdown, &v.ContentText, &v.Summary} {
		if *field, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
			return
		}
		n += n1
	}
	if v.ExpiryScore, n1, err = varint.Float64.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.ContentTokenCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Vector, n1, err = unmarshalVector(bs[n:]); err != nil {
		return
	}
	n += n1
	if status, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.ClientStatus = ClientStatus(status)
	n += n1
	if v.ClientStatusAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	if status, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.ServerStatus = ServerStatus(status)
	n += n1
	for _, field := range []*time.Time{&v.ServerStatusAt, &v.InsertedAt, &v.UpdatedAt} {
		if *field, n1, err = unmarshalTime(bs[n:]); err != nil {
			return
		}
		n += n1
	}
	return
}

func (itemMUS) Size(v Item) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += varint.Uint64.Size(uint64(v.UserId))
	size += ord.String.Size(v.URL)
	size += ord.String.Size(v.SourceSite)
	size += ord.String.Size(v.Title)
	size += ord.String.Size(v.CanonicalURL)
	size += ord.String.Size(v.FaviconURL)
	size += sizeTime(v.PublishedAt)
	size += ord.String.Size(v.ContentMarkdown)
	size += ord.String.Size(v.ContentText)
	size += ord.String.Size(v.Summary)
	size += varint.Float64.Size(v.ExpiryScore)
	size += varint.Int.Size(v.ContentTokenCount)
	size += sizeVector(v.Vector)
	size += varint.Int.Size(int(v.ClientStatus))
	size += sizeTime(v.ClientStatusAt)
	size += varint.Int.Size(int(v.ServerStatus))
	size += sizeTime(v.ServerStatusAt)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	return
}

type chunkMUS struct{}

func (chunkMUS) Marshal(v Chunk, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ItemId), bs)
	n += varint.Int.Marshal(v.Position, bs[n:])
	n += ord.String.Marshal(v.Text, bs[n:])
	n += varint.Int.Marshal(v.TokenCount, bs[n:])
	n += marshalVector(v.Vector, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (chunkMUS) Unmarshal(bs []byte) (v Chunk, n int, err error) {
	var (
		raw uint64
		n1  int
	)
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.ItemId = ID(raw)
	if v.Position, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Text, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.TokenCount, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Vector, n1, err = unmarshalVector(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.InsertedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.UpdatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (chunkMUS) Size(v Chunk) (size int) {
	size = varint.Uint64.Size(uint64(v.ItemId))
	size += varint.Int.Size(v.Position)
	size += ord.String.Size(v.Text)
	size += varint.Int.Size(v.TokenCount)
	size += sizeVector(v.Vector)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	return
}

type userMUS struct{}

func (userMUS) Marshal(v User, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += ord.String.Marshal(v.Username, bs[n:])
	n += marshalBytes(v.PasswordHash, bs[n:])
	n += marshalBytes(v.PasswordSalt, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (userMUS) Unmarshal(bs []byte) (v User, n int, err error) {
	var (
		raw uint64
		n1  int
	)
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(raw)
	if v.Username, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.PasswordHash, n1, err = unmarshalBytes(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.PasswordSalt, n1, err = unmarshalBytes(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.InsertedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.UpdatedAt, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (userMUS) Size(v User) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += ord.String.Size(v.Username)
	size += sizeBytes(v.PasswordHash)
	size += sizeBytes(v.PasswordSalt)
	size += sizeTime(v.InsertedAt)
	size += sizeTime(v.UpdatedAt)
	return
}

type usageLogMUS struct{}

func (usageLogMUS) Marshal(v UsageLog, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += varint.Uint64.Marshal(uint64(v.UserId), bs[n:])
	n += varint.Uint64.Marshal(uint64(v.ItemId), bs[n:])
	n += ord.String.Marshal(v.Operation, bs[n:])
	n += varint.Int.Marshal(v.Tokens, bs[n:])
	n += marshalTime(v.At, bs[n:])
	return
}

func (usageLogMUS) Unmarshal(bs []byte) (v UsageLog, n int, err error) {
	var (
		raw uint64
		n1  int
	)
	if raw, n, err = varint.Uint64.Unmarshal(bs); err != nil {
		return
	}
	v.Id = ID(raw)
	if raw, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.UserId = ID(raw)
	n += n1
	if raw, n1, err = varint.Uint64.Unmarshal(bs[n:]); err != nil {
		return
	}
	v.ItemId = ID(raw)
	n += n1
	if v.Operation, n1, err = ord.String.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.Tokens, n1, err = varint.Int.Unmarshal(bs[n:]); err != nil {
		return
	}
	n += n1
	if v.At, n1, err = unmarshalTime(bs[n:]); err != nil {
		return
	}
	n += n1
	return
}

func (usageLogMUS) Size(v UsageLog) (size int) {
	size = varint.Uint64.Size(uint64(v.Id))
	size += varint.Uint64.Size(uint64(v.UserId))
	size += varint.Uint64.Size(uint64(v.ItemId))
	size += ord.String.Size(v.Operation)
	size += varint.Int.Size(v.Tokens)
	size += sizeTime(v.At)
	return
}

// Timestamps are stored as Unix microseconds; the zero time is stored as 0
// so it round-trips to a zero time.Time.

func marshalTime(t time.Time, bs []byte) (n int) {
	var micros int64
	if !t.IsZero() {
		micros = t.UnixMicro()
	}
	return varint.Int64.Marshal(micros, bs)
}

func unmarshalTime(bs []byte) (t time.Time, n int, err error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil || micros == 0 {
		return
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func sizeTime(t time.Time) (size int) {
	var micros int64
	if !t.IsZero() {
		micros = t.UnixMicro()
	}
	return varint.Int64.Size(micros)
}

func marshalVector(v []float32, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	for _, f := range v {
		n += varint.Float32.Marshal(f, bs[n:])
	}
	return
}

func unmarshalVector(bs []byte) (v []float32, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		return nil, n, errNegativeLength
	}
	if length == 0 {
		return nil, n, nil
	}
	v = make([]float32, length)
	var n1 int
	for i := range v {
		if v[i], n1, err = varint.Float32.Unmarshal(bs[n:]); err != nil {
			return nil, n, err
		}
		n += n1
	}
	return
}

func sizeVector(v []float32) (size int) {
	size = varint.Int.Size(len(v))
	for _, f := range v {
		size += varint.Float32.Size(f)
	}
	return
}

func marshalBytes(v []byte, bs []byte) (n int) {
	n = varint.Int.Marshal(len(v), bs)
	n += copy(bs[n:], v)
	return
}

func unmarshalBytes(bs []byte) (v []byte, n int, err error) {
	length, n, err := varint.Int.Unmarshal(bs)
	if err != nil {
		return
	}
	if length < 0 {
		return nil, n, errNegativeLength
	}
	if length == 0 {
		return nil, n, nil
	}
	if len(bs[n:]) < length {
		return nil, n, errors.New("truncated byte slice")
	}
	v = make([]byte, length)
	n += copy(v, bs[n:n+length])
	return
}

func sizeBytes(v []byte) (size int) {
	return varint.Int.Size(len(v)) + len(v)
}
