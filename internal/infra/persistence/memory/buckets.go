package memory

import (
	"encoding/json"
	"fmt"
)

// Bucket keys under which durable backends store the collections. Payloads
// are plain JSON arrays and can be moved between backends unchanged.
const (
	BucketExperts = "ckm_kols"
	BucketVisits  = "ckm_visits"
)

// Buckets lists the persisted bucket keys in write order.
func Buckets() []string { return []string{BucketExperts, BucketVisits} }

// EncodeBuckets renders each collection of the snapshot as a JSON array in
// insertion order.
func EncodeBuckets(snapshot Snapshot) (map[string][]byte, error) {
	experts, err := json.Marshal(sortedExperts(snapshot.Experts))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketExperts, err)
	}
	visits, err := json.Marshal(sortedVisits(snapshot.Visits, nil))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", BucketVisits, err)
	}
	return map[string][]byte{BucketExperts: experts, BucketVisits: visits}, nil
}

// BucketError reports a persisted bucket that could not be decoded.
type BucketError struct {
	Bucket string
	Err    error
}

func (e BucketError) Error() string { return fmt.Sprintf("decode %s: %v", e.Bucket, e.Err) }

func (e BucketError) Unwrap() error { return e.Err }

// DecodeBuckets rebuilds a snapshot from raw bucket payloads. A malformed
// bucket yields an empty collection and a BucketError; the other bucket is
// still loaded. Unknown buckets are ignored.
func DecodeBuckets(raw map[string][]byte) (Snapshot, []BucketError) {
	snapshot := Snapshot{
		Experts: make(map[string]Expert),
		Visits:  make(map[string]Visit),
	}
	var problems []BucketError
	if payload := raw[BucketExperts]; len(payload) > 0 {
		var experts []Expert
		if err := json.Unmarshal(payload, &experts); err != nil {
			problems = append(problems, BucketError{Bucket: BucketExperts, Err: err})
		} else {
			for _, e := range experts {
				if e.ID == "" {
					continue
				}
				snapshot.Experts[e.ID] = e
			}
		}
	}
	if payload := raw[BucketVisits]; len(payload) > 0 {
		var visits []Visit
		if err := json.Unmarshal(payload, &visits); err != nil {
			problems = append(problems, BucketError{Bucket: BucketVisits, Err: err})
		} else {
			for _, v := range visits {
				if v.ID == "" {
					continue
				}
				snapshot.Visits[v.ID] = v
			}
		}
	}
	return snapshot, problems
}
