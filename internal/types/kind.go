// Package types provides type definitions for structured data used throughout the patchnotes system.
package types

import (
	"fmt"
	"sort"
)

// Kind identifies one of the four record kinds the system aggregates.
type Kind int

const (
	// KindBill is a congressional bill (api.congress.gov).
	KindBill Kind = iota
	// KindExecutiveOrder is a presidential executive order (federalregister.gov).
	KindExecutiveOrder
	// KindRule is a final rule (regulations.gov).
	KindRule
	// KindProposedRule is a proposed rule (regulations.gov).
	KindProposedRule

	numKinds
)

// KindInfo describes how a kind is stored, addressed and deduplicated.
type KindInfo struct {
	Kind Kind
	// Collection is the logical collection name records of this kind live in.
	Collection string
	// Selector is the name clients use to request this kind.
	Selector string
	// BookmarkType is the tag stored on user bookmarks.
	BookmarkType string
	// IdentityFields are the fields whose combined values identify a record.
	IdentityFields []string
	// DateField is the field range queries filter on.
	DateField string
}

// kindTable is indexed by Kind. Its length is fixed by numKinds, so adding a
// kind without a descriptor leaves a zero entry that TestKindTableComplete catches.
var kindTable = [numKinds]KindInfo{
	KindBill: {
		Kind:           KindBill,
		Collection:     "Congress_Bills",
		Selector:       "bills",
		BookmarkType:   "bill",
		IdentityFields: []string{"title", "action_text"},
		DateField:      "action_date",
	},
	KindExecutiveOrder: {
		Kind:           KindExecutiveOrder,
		Collection:     "Exec_Orders",
		Selector:       "execOrders",
		BookmarkType:   "order",
		IdentityFields: []string{"title", "signing_date"},
		DateField:      "signing_date",
	},
	KindRule: {
		Kind:           KindRule,
		Collection:     "Regulations",
		Selector:       "regulations",
		BookmarkType:   "regulation",
		IdentityFields: []string{"title", "docketId"},
		DateField:      "postedDate",
	},
	KindProposedRule: {
		Kind:           KindProposedRule,
		Collection:     "Proposed_Regulations",
		Selector:       "proposedRegulations",
		BookmarkType:   "proposed",
		IdentityFields: []string{"title", "docketId"},
		DateField:      "postedDate",
	},
}

// AllKinds returns every kind in declaration order.
func AllKinds() []Kind {
	kinds := make([]Kind, 0, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		kinds = append(kinds, k)
	}
	return kinds
}

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	return k >= 0 && k < numKinds
}

// Info returns the descriptor for k. It panics on an undeclared kind,
// which is always a programming error.
func (k Kind) Info() KindInfo {
	if !k.Valid() {
		panic(fmt.Sprintf("types: undeclared kind %d", int(k)))
	}
	return kindTable[k]
}

// String returns the selector name of the kind.
func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindTable[k].Selector
}

// MarshalText encodes the kind as its selector name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, &UnsupportedKindError{Value: k.String()}
	}
	return []byte(kindTable[k].Selector), nil
}

// UnmarshalText decodes a selector name or bookmark type.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind resolves a selector name ("bills") or a bookmark type ("bill").
func ParseKind(name string) (Kind, error) {
	for _, info := range kindTable {
		if info.Selector == name || info.BookmarkType == name {
			return info.Kind, nil
		}
	}
	return 0, &UnsupportedKindError{Value: name}
}

// KindBySelector resolves a selector name only.
func KindBySelector(selector string) (Kind, bool) {
	for _, info := range kindTable {
		if info.Selector == selector {
			return info.Kind, true
		}
	}
	return 0, false
}

// Selectors returns all selector names, sorted.
func Selectors() []string {
	names := make([]string, 0, numKinds)
	for _, info := range kindTable {
		names = append(names, info.Selector)
	}
	sort.Strings(names)
	return names
}
