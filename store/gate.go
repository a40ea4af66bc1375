package store

import (
	"garantia-push/models"
)

// PermissionGate decides whether the notification permission prompt may be
// shown. The prompt appears at most once per installation; anything the gate
// cannot determine reads as "do not prompt".
type PermissionGate struct {
	store     *Store
	supported func() bool
}

func NewPermissionGate(s *Store, supported func() bool) *PermissionGate {
	return &PermissionGate{store: s, supported: supported}
}

// ShouldPrompt is true iff push is supported, the permission is still
// "default" and the user has never been asked. Storage failures return false:
// never prompt on ambiguous state.
func (g *PermissionGate) ShouldPrompt() bool {
	if g.supported == nil || !g.supported() {
		return false
	}
	permission, err := g.store.Permission()
	if err != nil || permission != models.PermissionDefault {
		return false
	}
	asked, err := g.store.Asked()
	if err != nil {
		return false
	}
	return !asked
}

// MarkAsked records that the prompt was shown. Best effort: a failed write
// only means the user may be asked again.
func (g *PermissionGate) MarkAsked() {
	_ = g.store.SetAsked(true)
}
