package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainEntry separates entry digests from any other hash the module computes.
// The version suffix leaves room for an algorithm change.
const DomainEntry = "histcache/entry/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// EntryDigest computes the content-addressed identity of an entry.
//
// Two deliveries of the same sequence number are the same action exactly
// when their digests match. The report ID is not part of the digest.
func EntryDigest(e Entry) (string, error) {
	obj := IRObject{
		"seq":         IRInt(e.Seq),
		"action_name": IRString(e.ActionName),
	}
	if e.Payload != nil {
		obj["payload"] = e.Payload
	}

	canonical, err := MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("entry digest seq %d: %w", e.Seq, err)
	}
	return hashWithDomain(DomainEntry, canonical), nil
}
