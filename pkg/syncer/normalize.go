package syncer

import (
	"github.com/Sternrassler/connsync/pkg/client"
	"github.com/Sternrassler/connsync/pkg/records"
)

// Normalize maps a raw listing item to a record. It reports false for
// malformed items: no member, or a member with first name, last name and
// headline all empty.
func Normalize(item client.RawItem) (records.Record, bool) {
	m := item.Member
	if m == nil || (m.FirstName == "" && m.LastName == "" && m.Headline == "") {
		return records.Record{}, false
	}
	return records.Record{
		FirstName: m.FirstName,
		LastName:  m.LastName,
		Headline:  m.Headline,
		CreatedAt: records.ParseToken(item.CreatedAt),
	}, true
}
