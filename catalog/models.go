// Package catalog describes the sellable assets of published monographs.
//
// An asset is one immutable file revision belonging to one publication
// format (the pricing unit). The catalog itself is maintained by the
// publishing workflow; this package only reads it.
package catalog

import (
	"fmt"
	"time"

	"github.com/marcbria/omp/id"
	"github.com/marcbria/omp/types"
)

// AssetRef identifies one immutable byte-stream revision belonging to one
// publication format of a monograph. Revisions are append-only; an older
// revision is never re-priced.
type AssetRef struct {
	WorkID   id.WorkID   `json:"work_id"`
	FormatID id.FormatID `json:"format_id"`
	FileID   id.FileID   `json:"file_id"`
	Revision int         `json:"revision"`
}

// Composite returns the entitlement key for this asset: the format, file and
// revision triple. The work is deliberately excluded: a format can only
// belong to one work, and completed-purchase records are keyed the same way.
func (r AssetRef) Composite() string {
	return fmt.Sprintf("%s:%s:r%d", r.FormatID.String(), r.FileID.String(), r.Revision)
}

// String returns the ref in the form used by download URLs
// (work/format/file-revision).
func (r AssetRef) String() string {
	return fmt.Sprintf("%s/%s/%s-%d", r.WorkID, r.FormatID, r.FileID, r.Revision)
}

// Asset is the catalog metadata for one sellable file revision.
// It is owned by the publishing workflow and read-only to this engine.
type Asset struct {
	Ref   AssetRef `json:"ref"`
	Label string   `json:"label,omitempty"`

	// Price is the direct-sales price. nil or zero means free/open access.
	Price *types.Money `json:"price,omitempty"`

	// Approved and Available are set by the editorial workflow. An asset
	// missing either flag resolves but is not retrievable by anyone.
	Approved  bool `json:"approved"`
	Available bool `json:"available"`

	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Free reports whether the asset requires no payment (absent or zero price).
func (a *Asset) Free() bool {
	return a.Price == nil || a.Price.IsZero()
}

// Retrievable reports whether the asset may be served at all.
// Unapproved or unavailable assets are withheld from everyone, including
// identities that already paid.
func (a *Asset) Retrievable() bool {
	return a.Approved && a.Available
}

// Format is a publication format of a monograph: the pricing unit an asset
// belongs to (hardback, PDF, EPUB, ...). PubIDs holds the public identifiers
// (DOI, URN, ...) assigned to the format, keyed by identifier type.
type Format struct {
	ID     id.FormatID       `json:"id"`
	WorkID id.WorkID         `json:"work_id"`
	Name   string            `json:"name"`
	PubIDs map[string]string `json:"pub_ids,omitempty"`
}

// PubID returns the stored public identifier of the given type, or "".
func (f *Format) PubID(idType string) string {
	return f.PubIDs[idType]
}

// SetPubID stores a public identifier on the format.
func (f *Format) SetPubID(idType, value string) {
	if f.PubIDs == nil {
		f.PubIDs = make(map[string]string)
	}
	f.PubIDs[idType] = value
}

// GroupByFormat buckets assets by publication format ID, preserving input
// order within each bucket. The catalog page uses it to decide between the
// collapsed and expanded file listing.
func GroupByFormat(assets []*Asset) map[string][]*Asset {
	grouped := make(map[string][]*Asset)
	for _, a := range assets {
		key := a.Ref.FormatID.String()
		grouped[key] = append(grouped[key], a)
	}
	return grouped
}
