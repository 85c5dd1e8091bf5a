// Package store owns policy entities and enforces the policy status machine.
//
// The Store is the only component allowed to create or mutate a Policy. Every
// mutation runs under a per-policy lock, is validated, is written through the
// configured Persister, and only then becomes visible to readers. A failed
// write leaves the stored entity untouched.
//
// # Basic Usage
//
//	s := store.New(store.WithPersister(backend))
//	if err := s.Load(ctx, backend); err != nil {
//	    return err
//	}
//
//	p, err := s.Create(ctx, store.Draft{
//	    Name: "PII-Retention",
//	    Type: governance.PolicyTypeRetention,
//	})
//
//	p, err = s.Transition(ctx, p.ID, governance.StatusPendingApproval)
//
// # Listing
//
// List returns only ACTIVE policies unless the filter names explicit statuses
// or sets IncludeInactive. Free-text matching is case-folded and Unicode
// normalized so "straße" matches "STRASSE".
//
// # Thread Safety
//
// Reads take a shared lock and return copies. Writes to one policy id are
// serialized; writes to different ids proceed in parallel.
package store
