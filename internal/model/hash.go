package model

import (
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
)

// fieldSep keeps adjacent fields from running together ("ab"+"c" vs "a"+"bc").
const fieldSep = "\x1f"

// ComputeHash digests every normalized field of p. Store-managed fields
// (FirstSeen, LastSeen, ContentHash) are not part of the digest.
func (p Posting) ComputeHash() string {
	d := xxhash.New()
	posted := ""
	if p.PostedAt != nil {
		posted = p.PostedAt.UTC().Format(time.RFC3339)
	}
	for _, f := range []string{
		p.Provider,
		p.NativeID,
		p.Source,
		p.Company,
		p.Title,
		p.Location,
		p.URL,
		p.Description,
		p.Commitment,
		posted,
		p.City,
		strconv.FormatBool(p.Remote),
		string(p.RoleLevel),
		string(p.WorkType),
	} {
		d.WriteString(f)
		d.WriteString(fieldSep)
	}
	return strconv.FormatUint(d.Sum64(), 16)
}
