// Package dup implements DuplicateEngine (§4.7): two-pass duplicate
// grouping (exact SHA-256, then perceptual Hamming-radius connected
// components), composite quality ranking within each group, and the
// navigation/marking operations the UI drives before committing marks to
// TrashManager.
package dup

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/barrulus/clepho/internal/hasher"
	"github.com/barrulus/clepho/internal/store"
)

// Weights configures the composite quality score (§4.7). Defaults favor
// resolution over raw file size over filename heuristics.
type Weights struct {
	Resolution float64
	SizeBytes  float64
	Name       float64
}

// DefaultWeights matches the teacher's general bias toward content over
// metadata: resolution dominates, size is a tiebreaker, filename bonus is
// a nudge, not a deciding factor.
var DefaultWeights = Weights{Resolution: 1.0, SizeBytes: 1e-6, Name: 1000}

// Group is a SimilarityGroup enriched with quality-ranked members, ready
// for the UI to navigate and mark.
type Group struct {
	ID      int64
	Kind    store.SimilarityGroupKind
	Members []Member // sorted best-first (index 0 = "keep")
}

// Member is one photo's rank within a Group.
type Member struct {
	Photo   store.PhotoQualityInput
	Score   float64
	Marked  bool // queued for deletion/trash
}

// Engine runs the two-pass grouping and exposes navigation/marking state.
type Engine struct {
	store   store.Store
	weights Weights
	logger  *slog.Logger

	groups []Group
}

// New returns an Engine reading photos and persisting groups through st.
func New(st store.Store, weights Weights, logger *slog.Logger) *Engine {
	if weights == (Weights{}) {
		weights = DefaultWeights
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: st, weights: weights, logger: logger}
}

// FindGroups runs both passes of §4.7, persists the resulting groups
// (replacing any previous run's groups, since SimilarityGroup rows are
// transient), and returns the quality-ranked result.
func (e *Engine) FindGroups(ctx context.Context, threshold int) ([]Group, error) {
	clamped := hasher.ClampThreshold(threshold)
	if clamped != threshold {
		e.logger.Warn("similarity_threshold out of range for a 64-bit perceptual hash, clamping",
			"configured", threshold, "clamped", clamped)
	}
	threshold = clamped

	photos, err := e.store.PhotosWithPerceptualHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("dup: list photos: %w", err)
	}

	if err := e.store.DeleteAllSimilarityGroups(ctx, store.SimilarityExact); err != nil {
		return nil, fmt.Errorf("dup: clear exact groups: %w", err)
	}
	if err := e.store.DeleteAllSimilarityGroups(ctx, store.SimilarityPerceptual); err != nil {
		return nil, fmt.Errorf("dup: clear perceptual groups: %w", err)
	}

	exactSets, exactMembers := exactGroups(photos)
	perceptualSets := perceptualGroups(photos, exactMembers, threshold)

	var groups []Group
	for _, set := range exactSets {
		g, err := e.persistGroup(ctx, store.SimilarityExact, set)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	for _, set := range perceptualSets {
		g, err := e.persistGroup(ctx, store.SimilarityPerceptual, set)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}

	e.groups = groups
	return groups, nil
}

func (e *Engine) persistGroup(ctx context.Context, kind store.SimilarityGroupKind, set []store.PhotoQualityInput) (Group, error) {
	ids := make([]int64, len(set))
	for i, p := range set {
		ids[i] = p.ID
	}
	id, err := e.store.CreateSimilarityGroup(ctx, kind, ids)
	if err != nil {
		return Group{}, fmt.Errorf("dup: persist %s group: %w", kind, err)
	}
	return Group{ID: id, Kind: kind, Members: rank(set, e.weights)}, nil
}

// exactGroups implements pass 1: GROUP BY sha256 HAVING count>1 over
// already-active photos (PhotosWithPerceptualHash already restricts to
// active rows). Returns the groups plus the set of photo ids consumed by
// an exact group of size > 1, so pass 2 can exclude them.
func exactGroups(photos []store.PhotoQualityInput) ([][]store.PhotoQualityInput, map[int64]bool) {
	bySHA := make(map[string][]store.PhotoQualityInput)
	for _, p := range photos {
		if p.SHA256 == "" {
			continue
		}
		bySHA[p.SHA256] = append(bySHA[p.SHA256], p)
	}

	var sets [][]store.PhotoQualityInput
	members := make(map[int64]bool)
	for _, set := range bySHA {
		if len(set) < 2 {
			continue
		}
		sets = append(sets, set)
		for _, p := range set {
			members[p.ID] = true
		}
	}
	return sets, members
}

// perceptualGroups implements pass 2: build an undirected graph over
// photos with a perceptual hash, excluding ones already in an exact
// group of size > 1, with an edge iff Hamming distance <= threshold.
// Connected components of size > 1 become groups; singletons are
// discarded.
func perceptualGroups(photos []store.PhotoQualityInput, exactMembers map[int64]bool, threshold int) [][]store.PhotoQualityInput {
	var candidates []store.PhotoQualityInput
	hashes := make(map[int64]uint64)
	for _, p := range photos {
		if exactMembers[p.ID] || p.PerceptualHash == "" {
			continue
		}
		h, err := parsePHash(p.PerceptualHash)
		if err != nil {
			continue
		}
		hashes[p.ID] = h
		candidates = append(candidates, p)
	}

	adjacency := make(map[int64][]int64, len(candidates))
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			a, b := candidates[i], candidates[j]
			if hasher.HammingDistance(hashes[a.ID], hashes[b.ID]) <= threshold {
				adjacency[a.ID] = append(adjacency[a.ID], b.ID)
				adjacency[b.ID] = append(adjacency[b.ID], a.ID)
			}
		}
	}

	byID := make(map[int64]store.PhotoQualityInput, len(candidates))
	for _, p := range candidates {
		byID[p.ID] = p
	}

	visited := make(map[int64]bool, len(candidates))
	var sets [][]store.PhotoQualityInput
	for _, p := range candidates {
		if visited[p.ID] {
			continue
		}
		component := bfsComponent(p.ID, adjacency, visited)
		if len(component) < 2 {
			continue
		}
		set := make([]store.PhotoQualityInput, len(component))
		for i, id := range component {
			set[i] = byID[id]
		}
		sets = append(sets, set)
	}
	return sets
}

func bfsComponent(start int64, adjacency map[int64][]int64, visited map[int64]bool) []int64 {
	queue := []int64{start}
	visited[start] = true
	var component []int64
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		component = append(component, id)
		for _, next := range adjacency[id] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return component
}

func parsePHash(hex string) (uint64, error) {
	return strconv.ParseUint(hex, 16, 64)
}

// rank scores and sorts a group's members best-first, per §4.7's
// composite score; ties break by ascending path.
func rank(photos []store.PhotoQualityInput, w Weights) []Member {
	members := make([]Member, len(photos))
	for i, p := range photos {
		members[i] = Member{Photo: p, Score: score(p, w)}
	}
	sort.SliceStable(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Photo.Path < members[j].Photo.Path
	})
	return members
}

func score(p store.PhotoQualityInput, w Weights) float64 {
	resolution := float64(p.Width) * float64(p.Height)
	return w.Resolution*resolution + w.SizeBytes*float64(p.SizeBytes) + w.Name*nameBonus(p.Path)
}

var cameraFilenamePattern = regexp.MustCompile(`(?i)^(img|dsc|dscn|dscf|p)[_-]?\d{3,}`)

var penalizedSuffixes = []string{"_copy", "_web", "_thumb", "(1)", "(2)", "-copy"}

// nameBonus rewards camera-style filenames (IMG_1234, DSC0001) and
// penalizes edited/duplicate-looking suffixes, after folding diacritics
// and case the way internal/facematch normalizes person names, so a
// photo's bonus doesn't depend on locale-specific casing or accents.
func nameBonus(path string) float64 {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	folded := foldName(base)

	var bonus float64
	if cameraFilenamePattern.MatchString(folded) {
		bonus += 1
	}
	for _, suffix := range penalizedSuffixes {
		if strings.HasSuffix(folded, suffix) {
			bonus -= 1
		}
	}
	return bonus
}

func foldName(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, s)
	if err != nil {
		return strings.ToLower(s)
	}
	return strings.ToLower(result)
}

// Groups returns the most recently computed groups, for UI navigation
// without recomputing.
func (e *Engine) Groups() []Group {
	return e.groups
}

// Navigate returns the member at (groupIdx, photoIdx), or false if out of
// range (§4.7: navigate within/between groups via an index pair).
func (e *Engine) Navigate(groupIdx, photoIdx int) (Member, bool) {
	if groupIdx < 0 || groupIdx >= len(e.groups) {
		return Member{}, false
	}
	members := e.groups[groupIdx].Members
	if photoIdx < 0 || photoIdx >= len(members) {
		return Member{}, false
	}
	return members[photoIdx], true
}

// ToggleMark flips the marked state of one member.
func (e *Engine) ToggleMark(groupIdx, photoIdx int) bool {
	if groupIdx < 0 || groupIdx >= len(e.groups) {
		return false
	}
	members := e.groups[groupIdx].Members
	if photoIdx < 0 || photoIdx >= len(members) {
		return false
	}
	members[photoIdx].Marked = !members[photoIdx].Marked
	return true
}

// AutoSelect marks every member of a group except the top-ranked "keep".
func (e *Engine) AutoSelect(groupIdx int) {
	if groupIdx < 0 || groupIdx >= len(e.groups) {
		return
	}
	members := e.groups[groupIdx].Members
	for i := range members {
		members[i].Marked = i != 0
	}
}

// ClearMarks unmarks every member of a group.
func (e *Engine) ClearMarks(groupIdx int) {
	if groupIdx < 0 || groupIdx >= len(e.groups) {
		return
	}
	members := e.groups[groupIdx].Members
	for i := range members {
		members[i].Marked = false
	}
}

// MarkedPhotoIDs collects every marked member's photo id across all
// groups, the input CommitMarks hands to TrashManager.
func (e *Engine) MarkedPhotoIDs() []int64 {
	var ids []int64
	for _, g := range e.groups {
		for _, m := range g.Members {
			if m.Marked {
				ids = append(ids, m.Photo.ID)
			}
		}
	}
	return ids
}
