package content

import "sort"

// Diff computes the sync plan that converges the deployed listing to the
// desired one. Desired items missing from the deployed listing become
// creates; desired items whose deployed hash differs become updates, with
// the deployed version recorded as displaced; deployed items with no
// desired counterpart become deletes. Items with matching hashes are left
// alone. All plan lists are sorted by path.
func Diff(desired, deployed []ContentItem) *SyncPlan {
	deployedByPath := make(map[string]ContentItem, len(deployed))
	for _, item := range deployed {
		deployedByPath[item.Path] = item
	}

	plan := &SyncPlan{}
	desiredPaths := make(map[string]bool, len(desired))
	for _, item := range desired {
		desiredPaths[item.Path] = true

		current, exists := deployedByPath[item.Path]
		switch {
		case !exists:
			plan.Create = append(plan.Create, item)
		case current.ContentHash != item.ContentHash:
			plan.Update = append(plan.Update, item)
			plan.Displaced = append(plan.Displaced, current)
		}
	}

	for _, item := range deployed {
		if !desiredPaths[item.Path] {
			plan.Delete = append(plan.Delete, item)
		}
	}

	sortByPath(plan.Create)
	sortByPath(plan.Update)
	sortByPath(plan.Delete)
	sortByPath(plan.Displaced)
	return plan
}

func sortByPath(items []ContentItem) {
	sort.Slice(items, func(i, j int) bool { return items[i].Path < items[j].Path })
}
