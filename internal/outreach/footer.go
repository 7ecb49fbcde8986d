package outreach

import (
	"fmt"
	"strings"
)

// Sender is the identity shown in the signature and compliance footer.
type Sender struct {
	Name    string
	Email   string
	Address string
}

// Signature returns the closing appended to every body.
func (s Sender) Signature() string {
	return "\n\nBest regards,\n" + s.Name
}

// Footer returns the compliance block: sender identity and an opt-out
// mechanism. It depends only on the sender.
func (s Sender) Footer() string {
	identity := s.Name
	if addr := strings.TrimSpace(s.Address); addr != "" {
		identity += " · " + addr
	}
	return fmt.Sprintf("\n\n---\n%s\nTo unsubscribe, reply with \"unsubscribe\" or email mailto:%s?subject=Unsubscribe",
		identity, s.Email)
}
