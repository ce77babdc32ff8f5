// Package domain holds the pure reconciliation logic: the slot-to-bucket
// mapping, per-bucket diff arithmetic and sync-window resolution. Nothing in
// this package touches a database.
package domain

// Bucket identifies one of the twelve fixed two-hour reporting windows a
// production day is divided into. The day starts at the 08:00 shift boundary
// and wraps past midnight.
type Bucket string

const (
	Bucket8To10  Bucket = "8_10"
	Bucket10To12 Bucket = "10_12"
	Bucket12To14 Bucket = "12_14"
	Bucket14To16 Bucket = "14_16"
	Bucket16To18 Bucket = "16_18"
	Bucket18To20 Bucket = "18_20"
	Bucket20To22 Bucket = "20_22"
	Bucket22To24 Bucket = "22_24"
	Bucket24To2  Bucket = "24_2"
	Bucket2To4   Bucket = "2_4"
	Bucket4To6   Bucket = "4_6"
	Bucket6To8   Bucket = "6_8"
)

// Buckets lists all buckets in reporting-column order.
var Buckets = [12]Bucket{
	Bucket8To10, Bucket10To12, Bucket12To14, Bucket14To16,
	Bucket16To18, Bucket18To20, Bucket20To22, Bucket22To24,
	Bucket24To2, Bucket2To4, Bucket4To6, Bucket6To8,
}

// slotPairs maps each bucket (by its index in Buckets) to the pair of hourly
// slot IDs that feed it: slots (1,2) feed "8_10", ..., (23,24) feed "6_8".
var slotPairs = [12][2]int{
	{1, 2}, {3, 4}, {5, 6}, {7, 8}, {9, 10}, {11, 12},
	{13, 14}, {15, 16}, {17, 18}, {19, 20}, {21, 22}, {23, 24},
}

// SlotPair returns the two slot IDs feeding the given bucket.
func SlotPair(b Bucket) (int, int, bool) {
	for i, bucket := range Buckets {
		if bucket == b {
			return slotPairs[i][0], slotPairs[i][1], true
		}
	}
	return 0, 0, false
}

// BucketForSlot returns the bucket a slot ID belongs to. Slot IDs run 1..24.
func BucketForSlot(slot int) (Bucket, bool) {
	if slot < 1 || slot > 24 {
		return "", false
	}
	return Buckets[(slot-1)/2], true
}

// ParseBucket validates a bucket label from a caller.
func ParseBucket(s string) (Bucket, bool) {
	for _, bucket := range Buckets {
		if string(bucket) == s {
			return bucket, true
		}
	}
	return "", false
}

// QuantitySample is one raw per-hour-slot quantity row from a source system.
// Missing upstream figures arrive as zero; the diff policy makes a missing
// value and an explicit zero behave identically.
type QuantitySample struct {
	SlotID  int
	Planned int
	Manual  int
	Auto    int
}

// BucketDiff is the derived comparison for one bucket of one production run.
type BucketDiff struct {
	Bucket  Bucket
	Planned int
	Manual  int
	Auto    int
	// Used is the actual figure the diff is computed from: the manual sum
	// when it is non-zero, the automated sum otherwise.
	Used int
	// Diff is Used - Planned. Negative means shortfall, positive surplus.
	Diff int
	// Ratio is Used / Planned, nil when Planned is zero.
	Ratio *float64
}

// Summarize computes the diff for an arbitrary set of samples, treating them
// as one bucket's worth of rows. Manual figures take precedence over
// automated ones whenever their sum is non-zero; this is a policy choice,
// not a fallback for missing data.
func Summarize(bucket Bucket, samples []QuantitySample) BucketDiff {
	d := BucketDiff{Bucket: bucket}
	for _, s := range samples {
		d.Planned += s.Planned
		d.Manual += s.Manual
		d.Auto += s.Auto
	}

	d.Used = d.Auto
	if d.Manual != 0 {
		d.Used = d.Manual
	}
	d.Diff = d.Used - d.Planned

	if d.Planned != 0 {
		ratio := float64(d.Used) / float64(d.Planned)
		d.Ratio = &ratio
	}
	return d
}

// Aggregate partitions a run's samples into the twelve fixed buckets and
// computes each bucket's diff. A bucket with no samples yields a zero diff.
// Pure function; safe to re-run.
func Aggregate(samples []QuantitySample) [12]BucketDiff {
	bySlot := make(map[int][]QuantitySample, len(samples))
	for _, s := range samples {
		bySlot[s.SlotID] = append(bySlot[s.SlotID], s)
	}

	var diffs [12]BucketDiff
	for i, bucket := range Buckets {
		pair := slotPairs[i]
		rows := append(bySlot[pair[0]], bySlot[pair[1]]...)
		diffs[i] = Summarize(bucket, rows)
	}
	return diffs
}
