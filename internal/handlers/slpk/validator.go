package slpk

import (
	"strconv"
	"strings"
	"time"
)

// fileTimeEpochOffset is the number of 100ns intervals between 1601-01-01 and 1970-01-01.
const fileTimeEpochOffset = 116444736000000000

// Validator derives the ETag for a file from its modification time: the time
// as a FILETIME tick count (100ns units since 1601-01-01 UTC) in upper-case
// hexadecimal. It is unquoted and compared byte for byte.
func Validator(modTime time.Time) string {
	ticks := uint64(modTime.UTC().UnixNano()/100) + fileTimeEpochOffset
	return strings.ToUpper(strconv.FormatUint(ticks, 16))
}
