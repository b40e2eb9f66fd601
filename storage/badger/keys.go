// Copyright 2025 Lateral HQ
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/lateralhq/lateral/core"
)

// Key layout. Composite keys use big-endian fixed-width segments so that
// lexicographic iteration order matches numeric order.
const (
	itemRecordPrefix  = "item"    // item:<id>                    -> Item
	itemURLPrefix     = "itemurl" // itemurl:<userID><urlHash>    -> item ID
	itemDatePrefix    = "itemdat" // itemdat:<userID><micros><id> -> empty
	chunkRecordPrefix = "itemchk" // itemchk:<itemID><position>   -> Chunk
	userRecordPrefix  = "usr"     // usr:<id>                     -> User
	usernamePrefix    = "usrname" // usrname:<username>           -> user ID
	usageRecordPrefix = "uselog"  // uselog:<userID><logID>       -> UsageLog
	itemSequenceName  = "itemseq"
	userSequenceName  = "usrseq"
	usageSequenceName = "uselogseq"
	keySeparator      = ":"
)

func makeItemKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s%s%d", itemRecordPrefix, keySeparator, id))
}

func makeItemScanPrefix() []byte {
	return []byte(itemRecordPrefix + keySeparator)
}

func makeItemURLKey(userID core.ID, urlHash core.ID) []byte {
	key := make([]byte, 0, len(itemURLPrefix)+1+16)
	key = append(key, itemURLPrefix...)
	key = append(key, keySeparator...)
	key = binary.BigEndian.AppendUint64(key, uint64(userID))
	key = binary.BigEndian.AppendUint64(key, uint64(urlHash))
	return key
}

func makeItemDateKey(userID core.ID, insertedAt time.Time, id core.ID) []byte {
	key := make([]byte, 0, len(itemDatePrefix)+1+24)
	key = append(key, itemDatePrefix...)
	key = append(key, keySeparator...)
	key = binary.BigEndian.AppendUint64(key, uint64(userID))
	key = binary.BigEndian.AppendUint64(key, uint64(insertedAt.UnixMicro()))
	key = binary.BigEndian.AppendUint64(key, uint64(id))
	return key
}

func makeItemDatePrefix(userID core.ID) []byte {
	key := make([]byte, 0, len(itemDatePrefix)+1+8)
	key = append(key, itemDatePrefix...)
	key = append(key, keySeparator...)
	key = binary.BigEndian.AppendUint64(key, uint64(userID))
	return key
}

// itemIDFromDateKey extracts the item ID from the trailing segment of a
// date index key.
func itemIDFromDateKey(key []byte) core.ID {
	return core.ID(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func makeChunkKey(itemID core.ID, position int) []byte {
	key := make([]byte, 0, len(chunkRecordPrefix)+1+16)
	key = append(key, chunkRecordPrefix...)
	key = append(key, keySeparator...)
	key = binary.BigEndian.AppendUint64(key, uint64(itemID))
	key = binary.BigEndian.AppendUint64(key, uint64(position))
	return key
}

func makeChunkPrefix(itemID core.ID) []byte {
	key := make([]byte, 0, len(chunkRecordPrefix)+1+8)
	key = append(key, chunkRecordPrefix...)
	key = append(key, keySeparator...)
	key = binary.BigEndian.AppendUint64(key, uint64(itemID))
	return key
}

func makeChunkScanPrefix() []byte {
	return []byte(chunkRecordPrefix + keySeparator)
}

// chunkPositionFromKey extracts the position from the trailing segment of
// a chunk key.
func chunkPositionFromKey(key []byte) int {
	return int(binary.BigEndian.Uint64(key[len(key)-8:]))
}

func makeUserKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s%s%d", userRecordPrefix, keySeparator, id))
}

func makeUsernameKey(username string) []byte {
	return []byte(usernamePrefix + keySeparator + username)
}

func makeUsageKey(userID core.ID, logID core.ID) []byte {
	key := make([]byte, 0, len(usageRecordPrefix)+1+16)
	key = append(key, usageRecordPrefix...)
	key = append(key, keySeparator...)
	key = binary.BigEndian.AppendUint64(key, uint64(userID))
	key = binary.BigEndian.AppendUint64(key, uint64(logID))
	return key
}

func makeUsagePrefix(userID core.ID) []byte {
	key := make([]byte, 0, len(usageRecordPrefix)+1+8)
	key = append(key, usageRecordPrefix...)
	key = append(key, keySeparator...)
	key = binary.BigEndian.AppendUint64(key, uint64(userID))
	return key
}
