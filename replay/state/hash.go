package state

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"

	"github.com/tidwall/sjson"
)

// CanonicalJSON serializes state under a pinned, portable ordering: keys
// sorted lexicographically (epochs rendered as decimal strings without
// leading zeros), numbers in decimal, arrays left in insertion order.
// Built with sjson.SetRaw in explicit sorted order rather than leaning on
// a host JSON encoder's map iteration, which spec.md §9 calls out as
// typically nondeterministic.
func (s *ApplicationState) CanonicalJSON() ([]byte, error) {
	doc := "{}"
	var err error
	doc, err = sjson.Set(doc, "ledger", s.Ledger)
	if err != nil {
		return nil, fmt.Errorf("set ledger: %w", err)
	}

	doc, err = sjson.SetRaw(doc, "snapshots", "{}")
	if err != nil {
		return nil, fmt.Errorf("init snapshots: %w", err)
	}
	for _, epoch := range sortedEpochs(s.Snapshots) {
		snap := s.Snapshots[epoch]
		path := fmt.Sprintf("snapshots.%d", epoch)
		doc, err = sjson.Set(doc, path+".hash", snap.Hash)
		if err != nil {
			return nil, fmt.Errorf("set snapshot %d hash: %w", epoch, err)
		}
		if snap.LedgerSequence != nil {
			doc, err = sjson.Set(doc, path+".ledger_sequence", *snap.LedgerSequence)
			if err != nil {
				return nil, fmt.Errorf("set snapshot %d ledger_sequence: %w", epoch, err)
			}
		}
		if snap.TransactionHash != nil {
			doc, err = sjson.Set(doc, path+".transaction_hash", *snap.TransactionHash)
			if err != nil {
				return nil, fmt.Errorf("set snapshot %d transaction_hash: %w", epoch, err)
			}
		}
	}

	if len(s.Tables) > 0 {
		doc, err = sjson.SetRaw(doc, "tables", "{}")
		if err != nil {
			return nil, fmt.Errorf("init tables: %w", err)
		}
		for _, name := range sortedTableNames(s.Tables) {
			doc, err = sjson.Set(doc, "tables."+name, s.Tables[name])
			if err != nil {
				return nil, fmt.Errorf("set table %q: %w", name, err)
			}
		}
	}

	return []byte(doc), nil
}

// ComputeHash returns the hex-encoded SHA-256 digest of CanonicalJSON.
// Deterministic across processes and architectures for the same event
// multiset, per spec.md §4.3.
func (s *ApplicationState) ComputeHash() (string, error) {
	canonical, err := s.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

func sortedEpochs(snapshots map[uint64]Snapshot) []uint64 {
	epochs := make([]uint64, 0, len(snapshots))
	for e := range snapshots {
		epochs = append(epochs, e)
	}
	sort.Slice(epochs, func(i, j int) bool {
		return strconv.FormatUint(epochs[i], 10) < strconv.FormatUint(epochs[j], 10)
	})
	return epochs
}

func sortedTableNames(tables map[string]any) []string {
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
