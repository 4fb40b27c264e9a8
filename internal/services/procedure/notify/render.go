package notify

import (
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/firmdesk/firmdesk/internal/services/procedure/domain"
)

// Renderer builds localized notification copy.
type Renderer struct {
	printer *message.Printer
}

// NewRenderer builds a renderer for the base locale.
func NewRenderer() *Renderer {
	return &Renderer{printer: message.NewPrinter(language.AmericanEnglish)}
}

// RunCreated renders the subject and body for one run-creation
// notification: procedure, target, due date, roster, and the recipient's
// own actions.
func (r *Renderer) RunCreated(job domain.RecipientNotification) (subject, body string) {
	subject = r.printer.Sprintf("You have been assigned to %s for %s", job.ProcedureName, job.TargetEntityID)

	var b strings.Builder
	b.WriteString(r.printer.Sprintf("The procedure %s was started for %s.", job.ProcedureName, job.TargetEntityID))
	b.WriteString("\n")
	if job.DueDate != nil {
		b.WriteString(r.printer.Sprintf("Due date: %s", job.DueDate.Format("January 2, 2006")))
		b.WriteString("\n")
	}
	if len(job.TeamMembers) > 0 {
		b.WriteString(r.printer.Sprintf("Team: %s", strings.Join(job.TeamMembers, ", ")))
		b.WriteString("\n")
	}
	if len(job.ActionNames) > 0 {
		b.WriteString(r.printer.Sprintf("Your actions:"))
		b.WriteString("\n")
		for _, action := range job.ActionNames {
			b.WriteString("  - ")
			b.WriteString(action)
			b.WriteString("\n")
		}
	}
	return subject, b.String()
}
