package store

import (
	"sort"

	"vinylog/internal/models"
)

// MergeHistories unions local and remote play histories, deduplicated by id.
//
// An id present on both sides keeps the local copy. When the remote side
// contributes nothing new the local history is returned untouched, so merging
// a history with itself is the identity. Otherwise the union is sorted
// newest-DateListened-first; plays with a missing or unparseable date sort
// after all dated plays, and the sort is stable for equal or invalid dates.
func MergeHistories(local, remote []models.Play) []models.Play {
	if len(remote) == 0 {
		return local
	}
	if len(local) == 0 {
		return sortHistory(remote)
	}

	existing := make(map[string]struct{}, len(local))
	for _, play := range local {
		existing[play.ID] = struct{}{}
	}

	var toAdd []models.Play
	for _, play := range remote {
		if _, ok := existing[play.ID]; !ok {
			toAdd = append(toAdd, play)
		}
	}

	if len(toAdd) == 0 {
		return local
	}

	merged := make([]models.Play, 0, len(local)+len(toAdd))
	merged = append(merged, local...)
	merged = append(merged, toAdd...)
	return sortHistory(merged)
}

// sortHistory orders plays newest-first with undated plays last, stably.
func sortHistory(history []models.Play) []models.Play {
	sort.SliceStable(history, func(i, j int) bool {
		ti, iOK := history[i].ListenedTime()
		tj, jOK := history[j].ListenedTime()

		if !iOK {
			return false
		}
		if !jOK {
			return true
		}
		return ti.After(tj)
	})
	return history
}

// MergeStats reconciles the aggregate play count across devices.
//
// The larger TotalPlays wins; counts are never summed, which would double
// count plays that both devices already pushed.
func MergeStats(local, remote models.CartridgeStats) models.CartridgeStats {
	if remote.TotalPlays > local.TotalPlays {
		return remote
	}
	return local
}
