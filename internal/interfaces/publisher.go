package interfaces

import "context"

// Publisher pushes generated HTML to a reachable hosting endpoint.
//
// Provision creates the hosting resource for a subdomain slug. The remote
// side does not guarantee idempotency: calling Provision twice for the same
// slug is a caller error, so the orchestrator provisions only on the first
// generation of a project.
type Publisher interface {
	// Provision creates the hosting resource (subdomain / virtual host)
	// for the given slug.
	Provision(ctx context.Context, slug string) error

	// Publish ensures the remote directory for the slug exists and
	// overwrites the artifact at its well-known path (<slug>/index.html).
	Publish(ctx context.Context, slug string, html []byte) error
}
