package postgres

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/aevon-lab/eventbridge/internal/core/storage"
)

// marshalDocumentBody marshals a document without its reserved keys, which live in
// their own columns. Returns the version separately.
func marshalDocumentBody(doc storage.Document) (body []byte, version string, err error) {
	fields := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch k {
		case storage.FieldID:
			continue
		case storage.FieldVersion:
			version, _ = v.(string)
			continue
		}
		fields[k] = v
	}

	body, err = json.Marshal(fields)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal document body: %w", err)
	}
	return body, version, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanDocumentRow scans (body, version) and rebuilds the document around id.
// Numbers are kept as json.Number so large integers survive the round trip.
func scanDocumentRow(row scanner, id string) (storage.Document, error) {
	var body []byte
	var version sql.NullString

	if err := row.Scan(&body, &version); err != nil {
		return nil, err
	}

	doc := storage.Document{}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document body: %w", err)
	}

	doc[storage.FieldID] = id
	if version.Valid {
		doc[storage.FieldVersion] = version.String
	}
	return doc, nil
}
