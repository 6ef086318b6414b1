package notification

import (
	"context"
	"fmt"
)

// PreferenceResolver answers whether and how a user wants a category delivered.
type PreferenceResolver struct {
	store PreferenceStore
}

// NewPreferenceResolver creates a resolver over store.
func NewPreferenceResolver(store PreferenceStore) *PreferenceResolver {
	return &PreferenceResolver{store: store}
}

// Resolve returns the stored preference or DefaultPreference when none exists.
func (r *PreferenceResolver) Resolve(ctx context.Context, username, category string) (Preference, error) {
	pref, found, err := r.store.GetPreference(ctx, username, category)
	if err != nil {
		return Preference{}, fmt.Errorf("load preference %s/%s: %w", username, category, err)
	}
	if !found {
		return DefaultPreference, nil
	}
	if pref.Method == "" {
		pref.Method = DefaultPreference.Method
	}
	return pref, nil
}
