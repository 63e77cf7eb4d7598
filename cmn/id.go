package cmn

import (
	"math/rand"

	"github.com/google/uuid"
	"github.com/teris-io/shortid"
)

// Alphabet for generating short ids, mirroring the teacher's
// uuidABC — avoids characters that are awkward in URLs or logs.
const idABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

var sid *shortid.Shortid

func init() {
	// Seed is process-local: two processes generating ids concurrently only
	// need low collision probability, not global uniqueness guarantees.
	sid = shortid.MustNew(1, idABC, uint64(rand.Int63()))
}

// GenUUID returns a fresh random UUID, used as the default Document.Etag
// when a PUT does not carry one (spec: "etag defaults to a fresh UUID").
func GenUUID() string {
	return uuid.New().String()
}

// GenShortID returns a short, human-readable id, used where a fresh etag is
// not called for literally — e.g. suggesting a lock owner token to a CLI
// user who didn't supply one.
func GenShortID() string {
	return sid.MustGenerate()
}
