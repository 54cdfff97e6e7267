package filterlist

import (
	"fmt"
	"slices"

	"github.com/AdguardTeam/golibs/errors"
	"github.com/quiterss/adblock/rules"
)

// RuleStorage combines several rule lists and allows retrieving rules by their
// storage index.
//
// The storage index is an int64 value that actually consists of two int32
// values: the high one is the rule list identifier, and the low one is the
// offset of the rule inside of that list.  Lookup tables keep storage indexes
// instead of the rules themselves, and several storages may share the same
// lists without copying the rules.
type RuleStorage struct {
	// listsMap is a map with rule lists.  map key is the list ID.
	listsMap map[int]*RuleList

	// lists are the rule lists in the order they were added.
	lists []*RuleList
}

// NewRuleStorage creates a new instance of the RuleStorage and validates the
// list of rules specified.
func NewRuleStorage(lists ...*RuleList) (s *RuleStorage, err error) {
	listsMap := make(map[int]*RuleList, len(lists))
	for i, list := range lists {
		id := list.ID()
		if _, ok := listsMap[id]; ok {
			return nil, fmt.Errorf("list at index %d: id %d: %w", i, id, errors.ErrDuplicated)
		}

		listsMap[id] = list
	}

	return &RuleStorage{
		listsMap: listsMap,
		lists:    slices.Clone(lists),
	}, nil
}

// StorageIdx returns the storage index of the rule at offset in the list with
// the given ID.
func StorageIdx(listID, offset int) (idx int64) {
	return int64(listID)<<32 | int64(uint32(offset))
}

// SplitStorageIdx returns the list ID and the rule offset of the storage
// index.
func SplitStorageIdx(idx int64) (listID, offset int) {
	return int(idx >> 32), int(uint32(idx))
}

// Lists returns the rule lists of the storage.  The caller must not modify the
// returned slice.
func (s *RuleStorage) Lists() (lists []*RuleList) {
	return s.lists
}

// List returns the rule list with the given ID or nil if there is none.
func (s *RuleStorage) List(id int) (l *RuleList) {
	return s.listsMap[id]
}

// Len returns the total number of rules in the storage.
func (s *RuleStorage) Len() (n int) {
	for _, l := range s.lists {
		n += l.Len()
	}

	return n
}

// RetrieveRule looks for the filtering rule in this storage.  storageIdx is the
// lookup index built with [StorageIdx].
func (s *RuleStorage) RetrieveRule(storageIdx int64) (r rules.Rule, err error) {
	listID, offset := SplitStorageIdx(storageIdx)

	list, ok := s.listsMap[listID]
	if !ok {
		return nil, fmt.Errorf("list %d does not exist", listID)
	}

	return list.Rule(offset)
}

// RetrieveNetworkRule is a helper method that retrieves a network rule from the
// storage.  It returns a pointer to the rule or nil in any other case (not
// found or not a network rule).
func (s *RuleStorage) RetrieveNetworkRule(idx int64) (nr *rules.NetworkRule) {
	r, err := s.RetrieveRule(idx)
	if err != nil {
		return nil
	}

	nr, _ = r.(*rules.NetworkRule)

	return nr
}

// Merge returns a new storage with the lists of all storages.  The lists are
// shared, not copied.
func Merge(storages ...*RuleStorage) (s *RuleStorage, err error) {
	var lists []*RuleList
	for _, st := range storages {
		if st != nil {
			lists = append(lists, st.lists...)
		}
	}

	return NewRuleStorage(lists...)
}
