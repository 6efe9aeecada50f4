// Package principaltest mints verified principals for tests.
package principaltest

import (
	"testing"

	"github.com/Shivanand-hulikatti/venue-ticketing/internal/principal"
)

var auth = principal.NewAuthenticator("principaltest", 0)

// New returns a verified principal for id, failing the test on error.
func New(t testing.TB, id principal.ID) principal.Principal {
	t.Helper()
	token, err := auth.Issue(id)
	if err != nil {
		t.Fatalf("issue token for %q: %v", id, err)
	}
	p, err := auth.Verify(token)
	if err != nil {
		t.Fatalf("verify token for %q: %v", id, err)
	}
	return p
}
