package service

import (
	"fmt"
	"sort"
	"strings"

	"phantom-mask/internal/model"

	"github.com/shopspring/decimal"
)

type SearchKind string

const (
	SearchPharmacy SearchKind = "pharmacy"
	SearchMask     SearchKind = "mask"
)

func ParseSearchKind(s string) (SearchKind, error) {
	switch SearchKind(strings.ToLower(strings.TrimSpace(s))) {
	case SearchPharmacy:
		return SearchPharmacy, nil
	case SearchMask:
		return SearchMask, nil
	}
	return "", fmt.Errorf("%w: search kind must be pharmacy or mask, got %q", ErrInvalidArgument, s)
}

// MatchRank orders relevance tiers; lower is better
type MatchRank int

const (
	RankExact MatchRank = iota + 1
	RankPrefix
	RankSubstring
)

func (r MatchRank) String() string {
	switch r {
	case RankExact:
		return "exact"
	case RankPrefix:
		return "prefix"
	case RankSubstring:
		return "substring"
	}
	return "none"
}

func (r MatchRank) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

type SearchResult struct {
	Kind         SearchKind       `json:"kind"`
	ID           uint             `json:"id"`
	Name         string           `json:"name"`
	Rank         MatchRank        `json:"rank"`
	PharmacyID   uint             `json:"pharmacy_id,omitempty"`
	PharmacyName string           `json:"pharmacy_name,omitempty"`
	Price        *decimal.Decimal `json:"price,omitempty"`
}

// rankName compares case-insensitively. ok is false when name does not contain term at all.
func rankName(name, term string) (rank MatchRank, ok bool) {
	n := strings.ToLower(name)
	t := strings.ToLower(term)
	switch {
	case n == t:
		return RankExact, true
	case strings.HasPrefix(n, t):
		return RankPrefix, true
	case strings.Contains(n, t):
		return RankSubstring, true
	}
	return 0, false
}

func rankPharmacies(pharmacies []model.Pharmacy, term string) []SearchResult {
	results := []SearchResult{}
	for _, p := range pharmacies {
		rank, ok := rankName(p.Name, term)
		if !ok {
			continue
		}
		results = append(results, SearchResult{
			Kind: SearchPharmacy,
			ID:   p.ID,
			Name: p.Name,
			Rank: rank,
		})
	}
	sortResults(results)
	return results
}

func rankMasks(masks []model.Mask, term string) []SearchResult {
	results := []SearchResult{}
	for _, m := range masks {
		rank, ok := rankName(m.Name, term)
		if !ok {
			continue
		}
		price := m.Price
		result := SearchResult{
			Kind:       SearchMask,
			ID:         m.ID,
			Name:       m.Name,
			Rank:       rank,
			PharmacyID: m.PharmacyID,
			Price:      &price,
		}
		if m.Pharmacy != nil {
			result.PharmacyName = m.Pharmacy.Name
		}
		results = append(results, result)
	}
	sortResults(results)
	return results
}

// sortResults: rank tier, then name (case-insensitive, then exact bytes), then id
func sortResults(results []SearchResult) {
	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Rank != b.Rank {
			return a.Rank < b.Rank
		}
		la, lb := strings.ToLower(a.Name), strings.ToLower(b.Name)
		if la != lb {
			return la < lb
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	})
}
