package repo

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/rsahwe/evs/internal/hash"
)

// Info is the persistent repository state: {head, stage}. It is its own
// top-level encoding (not an Object variant): the lockfile holds exactly
// this, canonically encoded.
type Info struct {
	Head  hash.Hash
	Stage hash.Hash
}

type wireInfo struct {
	_     struct{} `cbor:",toarray"`
	Head  []byte
	Stage []byte
}

var infoMode cbor.EncMode

func init() {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("repo: building canonical cbor encoder: %v", err))
	}
	infoMode = mode
}

func encodeInfo(info Info) ([]byte, error) {
	w := wireInfo{Head: append([]byte(nil), info.Head[:]...), Stage: append([]byte(nil), info.Stage[:]...)}
	data, err := infoMode.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("encode repository info: %w", err)
	}
	return data, nil
}

func decodeInfo(data []byte) (Info, error) {
	var w wireInfo
	if err := cbor.Unmarshal(data, &w); err != nil {
		return Info{}, fmt.Errorf("decode repository info: %w", err)
	}
	if len(w.Head) != hash.Size || len(w.Stage) != hash.Size {
		return Info{}, fmt.Errorf("decode repository info: malformed hash field")
	}
	var info Info
	copy(info.Head[:], w.Head)
	copy(info.Stage[:], w.Stage)
	return info, nil
}
