package state

import (
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// decodeApplicationState parses a document produced by CanonicalJSON back
// into an ApplicationState, using gjson rather than encoding/json so that
// reads stay symmetric with the sjson-built writer: both walk the document
// path by path instead of going through a host struct decoder.
func decodeApplicationState(raw []byte) (*ApplicationState, error) {
	doc := gjson.ParseBytes(raw)
	if !doc.Exists() {
		return nil, fmt.Errorf("empty or invalid state document")
	}

	st := NewApplicationState()
	st.Ledger = doc.Get("ledger").Uint()

	var parseErr error
	doc.Get("snapshots").ForEach(func(epochKey, val gjson.Result) bool {
		epoch, err := strconv.ParseUint(epochKey.String(), 10, 64)
		if err != nil {
			parseErr = fmt.Errorf("invalid snapshot epoch %q: %w", epochKey.String(), err)
			return false
		}
		snap := Snapshot{Hash: val.Get("hash").String()}
		if ls := val.Get("ledger_sequence"); ls.Exists() {
			v := ls.Uint()
			snap.LedgerSequence = &v
		}
		if th := val.Get("transaction_hash"); th.Exists() {
			v := th.String()
			snap.TransactionHash = &v
		}
		st.Snapshots[epoch] = snap
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	if tables := doc.Get("tables"); tables.Exists() {
		st.Tables = make(map[string]any)
		tables.ForEach(func(name, val gjson.Result) bool {
			st.Tables[name.String()] = val.Value()
			return true
		})
	}

	return st, nil
}
