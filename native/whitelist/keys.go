package whitelist

import (
	"strconv"
)

var (
	countKey    = []byte("whitelist/count")
	entryPrefix = "whitelist/entry/"
)

func entryKey(id uint64) []byte {
	return []byte(entryPrefix + strconv.FormatUint(id, 10))
}
