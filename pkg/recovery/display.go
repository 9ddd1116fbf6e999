package recovery

import (
	"fmt"
	"io"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

// PrintKeyTable prints one row per sector with the recovered keys.
func PrintKeyTable(w io.Writer, sess *Session) {
	fmt.Fprintln(w, "Sec | Blk | Key A        | Key B")
	fmt.Fprintln(w, "----+-----+--------------+-------------")
	for sector := 0; sector < sess.Card.Type.SectorCount(); sector++ {
		trailer := mifare.TrailerBlock(sector)
		keys := sess.State.Trailer(trailer)
		fmt.Fprintf(w, "%3d | %3d | %s | %s\n", sector, trailer, keyLabel(keys, mifare.KeyA), keyLabel(keys, mifare.KeyB))
	}
}

func keyLabel(t TrailerKeys, keyType mifare.KeyType) string {
	if k, ok := t.Key(keyType); ok {
		return k.String()
	}
	return "------------"
}

// Summarize counts found and failed outcomes.
func Summarize(outcomes []Outcome) (found, failed int) {
	for _, o := range outcomes {
		if o.Found {
			found++
		} else {
			failed++
		}
	}
	return found, failed
}
