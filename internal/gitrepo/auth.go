package gitrepo

import (
	"errors"

	"github.com/go-git/go-git/v5/plumbing/transport"
	"github.com/go-git/go-git/v5/plumbing/transport/http"
)

// storerErrStop is a sentinel returned from commit-log ForEach callbacks to
// stop iteration early once the caller's requested depth is reached.
var storerErrStop = errors.New("gitrepo: stop iteration")

// tokenAuth builds an HTTP basic-auth method from an OAuth bearer token, the
// convention GitHub/GitLab/Bitbucket all accept for token-based clone auth.
func tokenAuth(token string) transport.AuthMethod {
	return &http.BasicAuth{Username: "x-access-token", Password: token}
}
