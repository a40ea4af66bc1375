// Package prompt implements the contract between the permission prompt UI
// and the subscription machinery. Whatever renders the prompt (a modal in the
// original, a terminal question in the agent) funnels the user's answer
// through Accept or Decline; the prompt is shown at most once per
// installation.
package prompt

import (
	"context"
	"log"

	"garantia-push/models"
	"garantia-push/platform"
	"garantia-push/store"
)

// Title and description shown to the user, taken from the application's
// permission modal.
const (
	Title       = "Notificaciones del navegador"
	Description = "¿Quieres activar las notificaciones (Web Push) para recibir avisos cuando otro usuario te envíe un mensaje (compartir un RMA, cliente, producto, etc.)? Podrás recibirlas aunque cierres el navegador."
)

type Registrar func(ctx context.Context) error

type Prompt struct {
	gate     *store.PermissionGate
	perms    platform.Permissions
	register Registrar
}

func New(gate *store.PermissionGate, perms platform.Permissions, register Registrar) *Prompt {
	return &Prompt{gate: gate, perms: perms, register: register}
}

// ShouldShow re-checks the gate. Callers must consult it immediately before
// rendering: an ensure run may race with a dismissal that already marked the
// prompt as asked.
func (p *Prompt) ShouldShow() bool {
	return p.gate.ShouldPrompt()
}

// Accept handles the affirmative answer: request the platform permission if
// it is still undecided, mark the prompt as asked regardless of the outcome,
// and register the subscription when the request ended in granted.
func (p *Prompt) Accept(ctx context.Context) {
	if p.perms.Permission() == models.PermissionDefault {
		if _, err := p.perms.Request(ctx); err != nil {
			log.Printf("⚠️ Permission request failed: %v", err)
		}
	}
	p.gate.MarkAsked()
	if p.perms.Permission() == models.PermissionGranted {
		if err := p.register(ctx); err != nil {
			log.Printf("⚠️ Push registration after permission grant failed: %v", err)
		}
	}
}

// Decline handles "not now", clicking outside the modal or pressing Escape:
// the prompt is marked as asked and no permission request is ever issued.
func (p *Prompt) Decline() {
	p.gate.MarkAsked()
}
