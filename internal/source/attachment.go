package source

import (
	"encoding/base64"
	"path"

	"github.com/withObsrvr/obsrvr-index-syncer/internal/document"
)

// attachmentRecord builds the indexable record for a downloaded attachment.
// The record merges into the owning document via its "_id" key; content is
// base64 so the payload survives JSON transport.
func attachmentRecord(docID, key string, data []byte, timestamp string) document.Fields {
	return document.Fields{
		"_id":             docID,
		"timestamp":       timestamp,
		"attachment":      base64.StdEncoding.EncodeToString(data),
		"attachment_name": path.Base(key),
		"attachment_size": len(data),
	}
}
