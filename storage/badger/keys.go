package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/newsindex/core"
)

// Key prefixes for different data types
const (
	articlePrefix       = "art:"
	articleURLPrefix    = "arturl:"
	articleDatePrefix   = "artdate:"
	articleSourcePrefix = "artsrc:"
	articleIDSeq        = "artseq"
)

// makeArticleKey generates a key for an article by ID.
// The ID is BigEndian so prefix iteration yields ascending IDs.
func makeArticleKey(id core.ID) []byte {
	buf := make([]byte, len(articlePrefix)+8)
	offset := copy(buf, articlePrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeArticleURLKey generates the uniqueness index key for a source URL.
func makeArticleURLKey(sourceURL string) []byte {
	return append([]byte(articleURLPrefix), sourceURL...)
}

// makePartialArticleDateKey generates the prefix shared by all articles of one date.
// Format: prefix:date
func makePartialArticleDateKey(date time.Time) []byte {
	buf := make([]byte, len(articleDatePrefix)+8)
	offset := copy(buf, articleDatePrefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(core.TruncateDate(date).Unix()))
	return buf
}

// makeArticleDateKey generates a composite key for the date index.
// Format: prefix:date:id
func makeArticleDateKey(date time.Time, id core.ID) []byte {
	return binary.BigEndian.AppendUint64(makePartialArticleDateKey(date), uint64(id))
}

// makePartialArticleSourceKey generates the prefix shared by all articles of one site.
// Format: prefix:site\x00
func makePartialArticleSourceKey(site string) []byte {
	buf := make([]byte, 0, len(articleSourcePrefix)+len(site)+1)
	buf = append(buf, articleSourcePrefix...)
	buf = append(buf, site...)
	return append(buf, 0)
}

// makeArticleSourceKey generates a composite key for the source index,
// ordered by publish date then ID within a site.
// Format: prefix:site\x00:date:id
func makeArticleSourceKey(site string, date time.Time, id core.ID) []byte {
	buf := makePartialArticleSourceKey(site)
	buf = binary.BigEndian.AppendUint64(buf, uint64(core.TruncateDate(date).Unix()))
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}
