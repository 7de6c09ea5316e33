// Package sequence issues human-readable document numbers from atomic
// per-(company, kind, bucket) counters.
package sequence

import (
	"fmt"
	"time"
)

// Kind identifies a numbering series.
type Kind string

const (
	KindOrder         Kind = "order"
	KindPurchaseOrder Kind = "purchase_order"
	KindShipment      Kind = "shipment"
)

type series struct {
	bucketLayout string
	prefix       string
	separator    string
	width        int
}

var seriesByKind = map[Kind]series{
	KindOrder:         {bucketLayout: "20060102", prefix: "ORD-", separator: "-", width: 4},
	KindPurchaseOrder: {bucketLayout: "200601", prefix: "PO-", separator: "-", width: 4},
	KindShipment:      {bucketLayout: "20060102", prefix: "SH", separator: "", width: 3},
}

// ParseKind validates a raw kind name.
func ParseKind(raw string) (Kind, error) {
	kind := Kind(raw)
	if _, ok := seriesByKind[kind]; !ok {
		return "", fmt.Errorf("sequence: unknown kind %q", raw)
	}
	return kind, nil
}

// Kinds lists the supported series.
func Kinds() []Kind {
	return []Kind{KindOrder, KindPurchaseOrder, KindShipment}
}

// Key addresses a single counter row.
type Key struct {
	CompanyID int64
	Kind      Kind
	Bucket    string
}

// Number is an issued document number.
type Number struct {
	Key
	Value     int64
	Formatted string
}

func (n Number) String() string {
	return n.Formatted
}

// BucketFor derives the bucket key for kind at the given instant: daily for
// orders and shipments, monthly for purchase orders.
func BucketFor(kind Kind, at time.Time) (string, error) {
	s, ok := seriesByKind[kind]
	if !ok {
		return "", fmt.Errorf("sequence: unknown kind %q", kind)
	}
	return at.UTC().Format(s.bucketLayout), nil
}

// Prefix returns the formatted prefix shared by every number in the bucket,
// e.g. "ORD-20240305-", "PO-202403-" or "SH20240305".
func Prefix(kind Kind, bucket string) string {
	s := seriesByKind[kind]
	return s.prefix + bucket + s.separator
}

// Format renders value as the zero-padded suffix of the bucket's prefix.
// Values wider than the series width are printed in full.
func Format(kind Kind, bucket string, value int64) string {
	s := seriesByKind[kind]
	return fmt.Sprintf("%s%0*d", Prefix(kind, bucket), s.width, value)
}
