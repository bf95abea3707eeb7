package diff

import (
	"encoding/binary"
	"math"
	"slices"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/crimson-sun/replay/internal/model"
)

// Hash fingerprints everything about a node that is visible in a replay:
// its kind, content, bounds and style. Ids, parents and children are
// excluded. Text is NFC-normalized so canonically equal strings hash alike.
func Hash(n model.SnapshotNode) uint64 {
	d := xxhash.New()
	k := model.KindOf(n.Kind)
	writeString(d, k.Tag())

	switch v := k.(type) {
	case model.Text:
		writeString(d, norm.NFC.String(v.Content))
	case model.Image:
		writeString(d, v.Data)
	case model.Input:
		writeString(d, norm.NFC.String(v.Value))
		writeString(d, norm.NFC.String(v.Hint))
	}

	var buf [8]byte
	for _, f := range []float64{n.Bounds.X, n.Bounds.Y, n.Bounds.Width, n.Bounds.Height} {
		binary.LittleEndian.PutUint64(buf[:], math.Float64bits(f))
		d.Write(buf[:])
	}

	keys := make([]string, 0, len(n.Style))
	for k := range n.Style {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		writeString(d, k)
		writeString(d, n.Style[k])
	}
	return d.Sum64()
}

// writeString length-prefixes s so adjacent fields cannot run together.
func writeString(d *xxhash.Digest, s string) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(len(s)))
	d.Write(buf[:])
	d.WriteString(s)
}
