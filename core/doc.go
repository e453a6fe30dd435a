// Package core contains the helpdesk integration domain: platform credentials,
// connections, tickets, the OAuth state guard, and the orchestration that
// connects a profile to a platform and syncs its tickets. Store, platform and
// transport adapters depend on this package; core must not depend on them.
package core
