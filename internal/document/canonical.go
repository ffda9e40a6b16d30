package document

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/MarcoPoloResearchLab/crmcore/internal/events"
)

const fingerprintDomain = "crmcore/document/v1"

// MarshalJSON renders absent sub-collections as empty arrays so decoded and folded documents encode alike.
func (methods ContactMethods) MarshalJSON() ([]byte, error) {
	type plain ContactMethods
	if methods.Emails == nil {
		methods.Emails = []events.ContactMethod{}
	}
	if methods.Phones == nil {
		methods.Phones = []events.ContactMethod{}
	}
	return json.Marshal(plain(methods))
}

// Canonical encodes doc as RFC 8785 canonical JSON. Equal documents produce identical bytes.
func Canonical(doc Document) ([]byte, error) {
	raw, err := json.Marshal(doc.normalized())
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("canonicalize document: %w", err)
	}
	return canonical, nil
}

// Fingerprint returns the hex sha256 of the canonical encoding.
func Fingerprint(doc Document) (string, error) {
	canonical, err := Canonical(doc)
	if err != nil {
		return "", err
	}
	hasher := sha256.New()
	hasher.Write([]byte(fingerprintDomain))
	hasher.Write([]byte{0})
	hasher.Write(canonical)
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Decode restores a document from its JSON or canonical encoding.
func Decode(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode document: %w", err)
	}
	return doc.normalized(), nil
}
