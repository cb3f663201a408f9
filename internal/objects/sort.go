package objects

import (
	"bytes"
	"sort"
)

func sortEntries(entries []TreeEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return bytes.Compare(entries[i].Name, entries[j].Name) < 0
	})
}
