package services

import "github.com/vkarpenko/filevault/internal/server/models"

// Session is the capability produced by authenticating a token. Pipelines
// take it explicitly: the acting principal's private key is reachable only
// through a session, is used for a single wrap/unwrap, and is never cached
// process-wide.
type Session struct {
	Principal *models.Principal
}
