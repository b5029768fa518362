package dataset

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes the records in order. Two runs over the same input
// table report the same fingerprint.
func Fingerprint(records []Record) uint64 {
	d := xxhash.New()
	var buf [8]byte
	putFloat := func(v float64) {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
		_, _ = d.Write(buf[:])
	}
	putString := func(s string) {
		_, _ = d.WriteString(s)
		_, _ = d.Write([]byte{0})
	}
	for _, r := range records {
		putString(r.GroupID)
		putFloat(r.Observation.Kelvin)
		putFloat(r.Observation.Celsius)
		putFloat(r.Observation.Trait)
		putFloat(r.Observation.LogTrait)
		putFloat(r.Estimates.B0)
		putFloat(r.Estimates.E)
		putFloat(r.Estimates.Th)
		putFloat(r.Estimates.Tl)
		putFloat(r.Estimates.Eh)
		putFloat(r.Estimates.El)
		putString(r.Metadata.Habitat)
		putString(r.Metadata.ConKingdom)
		putString(r.Metadata.StandardisedTraitName)
		putString(r.Metadata.Observations)
	}
	return d.Sum64()
}

// FingerprintHex formats a fingerprint as 16 hex digits.
func FingerprintHex(fp uint64) string {
	s := strconv.FormatUint(fp, 16)
	for len(s) < 16 {
		s = "0" + s
	}
	return s
}
